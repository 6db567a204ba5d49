// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package acq

import (
	"math"
	"testing"

	"github.com/go-lpc/traum/packet"
)

func TestToMicroVolts(t *testing.T) {
	for _, gain := range []float32{1, 2, 4, 8, 0.5, 24} {
		for _, raw := range []int32{0, 1, -1, 42, -4096, 32767, -32768, 1 << 20} {
			var (
				got  = ToMicroVolts(raw, gain)
				want = float64(raw) * 1.25 * 298 / (1000 * float64(gain))
			)
			if diff := math.Abs(float64(got) - want); diff > 1e-4*math.Max(1, math.Abs(want)) {
				t.Fatalf("invalid conversion of %d (gain=%v): got=%v, want=%v", raw, gain, got, want)
			}
			if got != ToMicroVolts(raw, gain) {
				t.Fatalf("conversion is not reproducible")
			}
		}
	}

	if got, want := ToMicroVolts(1000, 0), ToMicroVolts(1000, 1); got != want {
		t.Fatalf("invalid zero-gain conversion: got=%v, want=%v", got, want)
	}
	if got, want := ToMicroVolts(1000, 1), float32(372.5); got != want {
		t.Fatalf("invalid conversion: got=%v, want=%v", got, want)
	}
}

func TestConvert(t *testing.T) {
	var raw [packet.NumChannels]int32
	for i := range raw {
		raw[i] = int32(i * 100)
	}
	got := Convert(raw, 2)
	for i, v := range got {
		if want := ToMicroVolts(raw[i], 2); v != want {
			t.Fatalf("invalid ch[%d]: got=%v, want=%v", i, v, want)
		}
	}
}

func TestFormatReadout(t *testing.T) {
	for _, tc := range []struct {
		v    float32
		want string
	}{
		{0, "0μV"},
		{12.4, "12μV"},
		{-999.4, "-999μV"},
		{1000, "1.0mV"},
		{-1000, "-1.0mV"},
		{2345.6, "2.3mV"},
	} {
		t.Run(tc.want, func(t *testing.T) {
			if got, want := FormatReadout(tc.v), tc.want; got != want {
				t.Fatalf("invalid readout: got=%q, want=%q", got, want)
			}
		})
	}
}
