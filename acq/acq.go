// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package acq turns the packets of a Traumschreiber device into
// calibrated samples, with loss accounting.
//
// A Session owns the whole decoding state: the transport loss tracker,
// the adaptive encoding table, the device configuration and the
// transmission rate monitor. Decoded samples are pushed to live sinks
// (plots, casts) and appended to the current recording, if any.
package acq // import "github.com/go-lpc/traum/acq"

import (
	"context"
	"time"

	"github.com/go-lpc/traum/packet"
)

// Sample is one decoded sample of all channels.
type Sample struct {
	Arrival      time.Time // wall-clock arrival time
	Index        int64     // position in the stream, lost packets included
	SamplingTime float32   // expected time, in ms: Index times Interval
	Interval     float32   // nominal sampling interval, in ms

	SeqID         int
	InternalLoss  int
	TransportLoss int
	Adaptive      bool    // sample follows an encoding update
	Rate          float32 // measured transmission rate, in Hz

	Shifts [packet.NumChannels]int     // adaptive encoding bit-shifts
	Values [packet.NumChannels]float32 // in µV
}

// Gaps returns the number of packets lost right before this sample.
// Negative loss counters do not contribute.
func (smp Sample) Gaps() int {
	n := 0
	if smp.InternalLoss > 0 {
		n += smp.InternalLoss
	}
	if smp.TransportLoss > 0 {
		n += smp.TransportLoss
	}
	return n
}

// Sink receives live samples.
// Push must not block.
type Sink interface {
	Push(smp Sample)
}

// Runner is implemented by sinks that need a running loop.
type Runner interface {
	Run(ctx context.Context) error
}

// Recording is an in-progress recording session.
type Recording interface {
	// Append queues a sample for persistence. It may block when the
	// storage is slower than the device.
	Append(smp Sample) error

	// End flushes all queued samples, seals the recording under the
	// provided tag and returns the name of the persisted file.
	End(ctx context.Context, tag string, cfg packet.Config) (string, error)

	// Discard stops the recording and removes its data.
	Discard() error
}

// Stats holds the counters of a decoding session.
type Stats struct {
	Packets  int64 // channel data packets
	Samples  int64 // samples delivered to sinks
	Dropped  int64 // unrecognized packets
	Configs  int64 // configuration packets
	Encoding int64 // encoding updates
}
