// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package acq

import (
	"context"
	"math"
	"sync/atomic"
	"time"
)

// RateWindow is the period over which the transmission rate is measured.
const RateWindow = 5 * time.Second

// Status qualifies the measured transmission rate.
type Status uint8

const (
	StatusUnknown Status = iota
	StatusGood
	StatusFair
	StatusBad
)

func (st Status) String() string {
	switch st {
	case StatusGood:
		return "good"
	case StatusFair:
		return "fair"
	case StatusBad:
		return "bad signal"
	}
	return "unknown"
}

// RateMonitor measures the rate of received packets over fixed windows.
type RateMonitor struct {
	n    atomic.Int64
	freq atomic.Uint32 // float32 bits, packets per second
	res  atomic.Uint32 // float32 bits, milliseconds between packets
}

// Tick registers a received packet.
func (rm *RateMonitor) Tick() { rm.n.Add(1) }

// Frequency returns the rate measured over the last full window, in Hz.
func (rm *RateMonitor) Frequency() float32 {
	return math.Float32frombits(rm.freq.Load())
}

// Resolution returns the mean time between packets over the last full
// window, in milliseconds.
// It is +Inf when no packet was received.
func (rm *RateMonitor) Resolution() float32 {
	return math.Float32frombits(rm.res.Load())
}

// Status compares the measured rate with the nominal sampling rate.
func (rm *RateMonitor) Status(rate float32) Status {
	freq := rm.Frequency()
	switch {
	case freq == 0:
		return StatusUnknown
	case freq >= rate:
		return StatusGood
	case freq >= rate-2:
		return StatusFair
	default:
		return StatusBad
	}
}

// Run updates the measurement at the end of every window, until the
// context is done.
func (rm *RateMonitor) Run(ctx context.Context) error {
	tck := time.NewTicker(RateWindow)
	defer tck.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tck.C:
			rm.roll(RateWindow)
		}
	}
}

func (rm *RateMonitor) roll(win time.Duration) {
	var (
		n    = rm.n.Swap(0)
		ms   = float32(win.Milliseconds())
		freq = float32(n) / (ms / 1000)
		res  = float32(math.Inf(+1))
	)
	if n > 0 {
		res = ms / float32(n)
	}
	rm.freq.Store(math.Float32bits(freq))
	rm.res.Store(math.Float32bits(res))
}
