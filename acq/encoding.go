// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package acq

import (
	"github.com/go-lpc/traum/packet"
)

// EncodingState tracks the adaptive bit-shift of every channel.
type EncodingState struct {
	shifts  [packet.NumChannels]int
	pending bool
}

// Apply records a new bit-shift for a channel and marks the next sample
// as adaptively encoded.
// Out of range channels only raise the flag.
func (es *EncodingState) Apply(ch, shift int) {
	if 0 <= ch && ch < len(es.shifts) {
		es.shifts[ch] = shift
	}
	es.pending = true
}

// Shift returns the current bit-shift of a channel.
func (es *EncodingState) Shift(ch int) int {
	if ch < 0 || ch >= len(es.shifts) {
		return 0
	}
	return es.shifts[ch]
}

// Shifts returns a copy of the bit-shift table.
func (es *EncodingState) Shifts() [packet.NumChannels]int {
	return es.shifts
}

// Flag returns whether the current sample follows an encoding update,
// and clears it.
func (es *EncodingState) Flag() bool {
	v := es.pending
	es.pending = false
	return v
}
