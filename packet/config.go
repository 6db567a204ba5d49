// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package packet

import (
	"fmt"
	"strings"
)

// Config is the structured form of the 8-byte device configuration.
//
// Layout:
//
//	byte0: gain(2)|bits(2)|running-average(1)|send-on-one-char(1)|generate-data(1)|rate(1)
//	byte1: reserved
//	byte2: o1-highpass(4)|iir-highpass(4)
//	byte3: lowpass(4)|filter-50Hz(4)
//	byte4: bitshift-min(4)|bitshift-max(4)
//	byte5: encoding-safety-factor(4)|reserved(4)
//	byte6-7: battery status
type Config struct {
	Gain             uint8 // amplifier gain code
	Bits             uint8 // bits-per-channel code
	RunningAverage   bool
	SendOnOneChar    bool
	GenerateData     bool
	TransmissionRate uint8 // 0: 500/3 Hz, 1: 500/2 Hz

	O1Highpass  uint8
	IIRHighpass uint8
	Lowpass     uint8
	Filter50Hz  uint8
	BitshiftMin uint8
	BitshiftMax uint8

	SafetyFactor uint8  // encoding safety factor
	Battery      uint16 // battery status, as reported by the device
}

var (
	gains = [4]float32{1, 2, 4, 8}
	bits  = [4]int{10, 14, 16, 10} // code 3 falls back to 10 bits
	rates = [2]float32{500.0 / 3, 500.0 / 2}
)

// DefaultConfig returns the configuration a device holds after a reset.
func DefaultConfig() Config {
	return Config{
		Gain:             0,
		Bits:             2,
		RunningAverage:   true,
		TransmissionRate: 1,
		O1Highpass:       0,
		IIRHighpass:      1,
		Lowpass:          1,
		Filter50Hz:       1,
		BitshiftMin:      0,
		BitshiftMax:      15,
		SafetyFactor:     8,
	}
}

// GainFactor returns the amplifier gain selected by the gain code.
func (cfg Config) GainFactor() float32 {
	return gains[cfg.Gain&0x3]
}

// BitsPerChannel returns the number of bits used to encode a channel value.
func (cfg Config) BitsPerChannel() int {
	return bits[cfg.Bits&0x3]
}

// SamplingRate returns the nominal sampling rate in Hz.
func (cfg Config) SamplingRate() float32 {
	return rates[cfg.TransmissionRate&0x1]
}

// Interval returns the nominal sampling interval in milliseconds.
func (cfg Config) Interval() float32 {
	return 1000 / cfg.SamplingRate()
}

// MarshalBinary encodes the configuration into its 8-byte layout.
// Fields are masked to their bit width; no range check is performed.
func (cfg Config) MarshalBinary() ([]byte, error) {
	raw := cfg.encode()
	return raw[:], nil
}

// UnmarshalBinary decodes the configuration from its 8-byte layout.
func (cfg *Config) UnmarshalBinary(p []byte) error {
	if len(p) != ConfigSize {
		return fmt.Errorf("packet: invalid config size (got=%d, want=%d)", len(p), ConfigSize)
	}
	var raw [ConfigSize]byte
	copy(raw[:], p)
	cfg.decode(raw)
	return nil
}

func (cfg Config) encode() [ConfigSize]byte {
	var p [ConfigSize]byte
	p[0] = (cfg.Gain&0x3)<<6 |
		(cfg.Bits&0x3)<<4 |
		bit(cfg.RunningAverage)<<3 |
		bit(cfg.SendOnOneChar)<<2 |
		bit(cfg.GenerateData)<<1 |
		cfg.TransmissionRate&0x1
	p[1] = 0 // reserved
	p[2] = nibbles(cfg.O1Highpass, cfg.IIRHighpass)
	p[3] = nibbles(cfg.Lowpass, cfg.Filter50Hz)
	p[4] = nibbles(cfg.BitshiftMin, cfg.BitshiftMax)
	p[5] = (cfg.SafetyFactor & 0xf) << 4
	p[6] = byte(cfg.Battery >> 8)
	p[7] = byte(cfg.Battery)
	return p
}

func (cfg *Config) decode(p [ConfigSize]byte) {
	cfg.Gain = p[0] >> 6
	cfg.Bits = (p[0] & 0x30) >> 4
	cfg.RunningAverage = p[0]&0x8 != 0
	cfg.SendOnOneChar = p[0]&0x4 != 0
	cfg.GenerateData = p[0]&0x2 != 0
	cfg.TransmissionRate = p[0] & 0x1
	cfg.O1Highpass = p[2] >> 4
	cfg.IIRHighpass = p[2] & 0xf
	cfg.Lowpass = p[3] >> 4
	cfg.Filter50Hz = p[3] & 0xf
	cfg.BitshiftMin = p[4] >> 4
	cfg.BitshiftMax = p[4] & 0xf
	cfg.SafetyFactor = p[5] >> 4
	cfg.Battery = uint16(p[6])<<8 + uint16(p[7])
}

// Packet returns the configuration as a Configuration packet.
func (cfg Config) Packet() Configuration {
	return Configuration{Bytes: cfg.encode()}
}

// Validate checks that all fields fit their bit width.
func (cfg Config) Validate() error {
	for _, f := range []struct {
		name string
		v    uint8
		max  uint8
	}{
		{"gain", cfg.Gain, 0x3},
		{"bits", cfg.Bits, 0x3},
		{"rate", cfg.TransmissionRate, 0x1},
		{"o1-highpass", cfg.O1Highpass, 0xf},
		{"iir-highpass", cfg.IIRHighpass, 0xf},
		{"lowpass", cfg.Lowpass, 0xf},
		{"filter-50hz", cfg.Filter50Hz, 0xf},
		{"bitshift-min", cfg.BitshiftMin, 0xf},
		{"bitshift-max", cfg.BitshiftMax, 0xf},
		{"safety-factor", cfg.SafetyFactor, 0xf},
	} {
		if f.v > f.max {
			return fmt.Errorf("packet: invalid %s value %d (max=%d)", f.name, f.v, f.max)
		}
	}
	if cfg.BitshiftMin > cfg.BitshiftMax {
		return fmt.Errorf(
			"packet: invalid bitshift range [%d, %d]",
			cfg.BitshiftMin, cfg.BitshiftMax,
		)
	}
	return nil
}

func (cfg Config) String() string {
	o := new(strings.Builder)
	fmt.Fprintf(o, "gain:          %d (x%g)\n", cfg.Gain, cfg.GainFactor())
	fmt.Fprintf(o, "bits:          %d (%d bits)\n", cfg.Bits, cfg.BitsPerChannel())
	fmt.Fprintf(o, "running-avg:   %v\n", cfg.RunningAverage)
	fmt.Fprintf(o, "one-char:      %v\n", cfg.SendOnOneChar)
	fmt.Fprintf(o, "generate-data: %v\n", cfg.GenerateData)
	fmt.Fprintf(o, "rate:          %d (%.2f Hz)\n", cfg.TransmissionRate, cfg.SamplingRate())
	fmt.Fprintf(o, "o1-highpass:   %d\n", cfg.O1Highpass)
	fmt.Fprintf(o, "iir-highpass:  %d\n", cfg.IIRHighpass)
	fmt.Fprintf(o, "lowpass:       %d\n", cfg.Lowpass)
	fmt.Fprintf(o, "filter-50hz:   %d\n", cfg.Filter50Hz)
	fmt.Fprintf(o, "bitshift:      [%d, %d]\n", cfg.BitshiftMin, cfg.BitshiftMax)
	fmt.Fprintf(o, "safety-factor: %d\n", cfg.SafetyFactor)
	fmt.Fprintf(o, "battery:       %d\n", cfg.Battery)
	return o.String()
}

func bit(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}

func nibbles(hi, lo uint8) uint8 {
	return (hi&0xf)<<4 | lo&0xf
}
