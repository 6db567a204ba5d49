// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package packet decodes the integer packets sent by a Traumschreiber
// EEG device.
//
// A packet is classified by its length and first element:
//   - 8 elements: a Configuration packet,
//   - 2 elements starting with 0xC0DE: an EncodingUpdate packet,
//   - 24 elements: ChannelData without header,
//   - 26 elements: ChannelData with a {sequence id, internal loss} header.
package packet // import "github.com/go-lpc/traum/packet"

import (
	"fmt"
)

const (
	NumChannels = 24     // number of EEG channels
	CodeMarker  = 0xC0DE // first element of an encoding update packet
	ConfigSize  = 8      // size of a configuration packet

	headerSize = 2
	codeSize   = 2
	seqRing    = 16 // sequence ids are a 4-bit ring counter
)

// Kind describes the type of a packet.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindConfig
	KindEncoding
	KindData
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindEncoding:
		return "encoding"
	case KindData:
		return "data"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Packet is a decoded device packet.
type Packet interface {
	Kind() Kind
}

// Configuration carries the 8-byte device configuration.
type Configuration struct {
	Bytes [ConfigSize]byte
}

func (Configuration) Kind() Kind { return KindConfig }

// Config returns the structured view of the configuration bytes.
func (p Configuration) Config() Config {
	var cfg Config
	cfg.decode(p.Bytes)
	return cfg
}

// EncodingUpdate signals a new bit-shift exponent for a channel.
type EncodingUpdate struct {
	Channel int
	Shift   int
}

func (EncodingUpdate) Kind() Kind { return KindEncoding }

// ChannelData holds the raw ADC counts of one sample of all channels.
type ChannelData struct {
	HasHeader    bool
	SeqID        int // sequence id, in [0, 16)
	InternalLoss int // packets lost inside the device, as reported by the firmware
	Raw          [NumChannels]int32
}

func (ChannelData) Kind() Kind { return KindData }

var (
	_ Packet = (*Configuration)(nil)
	_ Packet = (*EncodingUpdate)(nil)
	_ Packet = (*ChannelData)(nil)
)
