// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package acq

// LossTracker derives the transport loss from the 4-bit sequence ids
// embedded in channel data packets.
type LossTracker struct {
	n    int64 // packets seen since last reset
	last int   // last sequence id
}

// Reset forgets the baseline: the next update yields zero loss.
func (lt *LossTracker) Reset() {
	lt.n = 0
	lt.last = 0
}

// Update registers the sequence id of a new packet and returns the number
// of sequence slots missed since the previous one.
//
// Equal consecutive ids yield -1.
func (lt *LossTracker) Update(id int) int {
	loss := 0
	if lt.n > 0 {
		switch p := lt.last; {
		case p > id:
			loss = (15 - p) + id
		default:
			loss = (id - 1) - p
		}
	}
	lt.last = id
	lt.n++
	return loss
}

// Last returns the last registered sequence id.
func (lt *LossTracker) Last() int { return lt.last }
