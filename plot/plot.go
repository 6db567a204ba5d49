// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package plot maintains the rolling buffers displayed by live views.
package plot // import "github.com/go-lpc/traum/plot"

import (
	"math"

	"github.com/gammazero/deque"
	"github.com/go-lpc/traum/acq"
	"github.com/go-lpc/traum/packet"
)

const (
	// DefaultWindow is the default visible time span, in ms.
	DefaultWindow = 8000

	offsetUnit = 40
)

// Point is a plotted (time, value) pair.
type Point struct {
	T float32 // ms
	V float32 // µV, display offset included
}

// Offsets computes the vertical display offsets of all channels so that
// shown channels do not overlap.
// A channel is shifted by 40*2^(s+1) per shown channel below it, where s
// is the bit-shift of the last shown channel below.
func Offsets(shifts [packet.NumChannels]int, shown [packet.NumChannels]bool) [packet.NumChannels]float32 {
	var (
		o     [packet.NumChannels]float32
		sigma float32
		below float32
	)
	for ch := range o {
		o[ch] = offsetUnit * sigma * below
		if shown[ch] {
			sigma = float32(math.Ldexp(1, shifts[ch]+1))
			below++
		}
	}
	return o
}

// Buffer holds the most recent points of every channel.
// Buffer is not safe for concurrent use.
type Buffer struct {
	window float32
	shown  [packet.NumChannels]bool
	n      int64 // plotted samples, gaps included

	chans [packet.NumChannels]deque.Deque[Point]
	offs  [packet.NumChannels]float32
}

// NewBuffer creates a buffer keeping window milliseconds of data.
// All channels are shown.
func NewBuffer(window float32) *Buffer {
	if window <= 0 {
		window = DefaultWindow
	}
	buf := &Buffer{window: window}
	for i := range buf.shown {
		buf.shown[i] = true
	}
	return buf
}

// Show selects the channels taken into account for display offsets.
func (buf *Buffer) Show(shown [packet.NumChannels]bool) {
	buf.shown = shown
}

// Cap returns the maximum number of points kept per channel for the
// provided sampling interval, in ms.
func (buf *Buffer) Cap(interval float32) int {
	if interval <= 0 {
		return 0
	}
	return int(buf.window / interval)
}

// Len returns the number of points currently held per channel.
func (buf *Buffer) Len() int {
	return buf.chans[0].Len()
}

// Append adds a batch of samples.
// Lost packets are represented by NaN points, so the time axis stays
// aligned with the device clock.
func (buf *Buffer) Append(batch []acq.Sample) {
	if len(batch) == 0 {
		return
	}

	nan := float32(math.NaN())
	for _, smp := range batch {
		buf.offs = Offsets(smp.Shifts, buf.shown)
		for i := 0; i < smp.Gaps(); i++ {
			buf.n++
			t := float32(buf.n) * smp.Interval
			for ch := range buf.chans {
				buf.chans[ch].PushBack(Point{T: t, V: nan})
			}
		}
		buf.n++
		t := float32(buf.n) * smp.Interval
		for ch := range buf.chans {
			buf.chans[ch].PushBack(Point{T: t, V: smp.Values[ch] + buf.offs[ch]})
		}
	}

	limit := buf.Cap(batch[len(batch)-1].Interval)
	for ch := range buf.chans {
		q := &buf.chans[ch]
		for q.Len() > limit {
			q.PopFront()
		}
	}
}

// Snapshot returns an immutable copy of the buffer content.
func (buf *Buffer) Snapshot() Snapshot {
	snap := Snapshot{Offsets: buf.offs}
	for ch := range buf.chans {
		q := &buf.chans[ch]
		pts := make([]Point, q.Len())
		for i := range pts {
			pts[i] = q.At(i)
		}
		snap.Channels[ch] = pts
	}
	return snap
}

// Snapshot is a frozen view of a Buffer, handed to renderers.
type Snapshot struct {
	Channels [packet.NumChannels][]Point
	Offsets  [packet.NumChannels]float32
}

// Len returns the number of points per channel.
func (snap Snapshot) Len() int {
	return len(snap.Channels[0])
}
