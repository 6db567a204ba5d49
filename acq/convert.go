// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package acq

import (
	"fmt"

	"github.com/go-lpc/traum/packet"
)

// ToMicroVolts converts a raw ADC count into microvolts.
// A non-positive gain is treated as 1.
func ToMicroVolts(raw int32, gain float32) float32 {
	if gain <= 0 {
		gain = 1
	}
	return float32(raw) * 5 / 4 * 298 / (1000 * gain)
}

// Convert converts the raw ADC counts of all channels into microvolts.
func Convert(raw [packet.NumChannels]int32, gain float32) [packet.NumChannels]float32 {
	var o [packet.NumChannels]float32
	for i, v := range raw {
		o[i] = ToMicroVolts(v, gain)
	}
	return o
}

// FormatReadout formats a channel value for a numeric display.
func FormatReadout(v float32) string {
	if v >= 1000 || v <= -1000 {
		return fmt.Sprintf("%.1fmV", v/1000)
	}
	return fmt.Sprintf("%.0fμV", v)
}
