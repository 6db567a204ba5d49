// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package packet

import (
	"golang.org/x/xerrors"
)

// ErrUnrecognized is returned when a packet matches none of the known shapes.
var ErrUnrecognized = xerrors.New("packet: unrecognized packet")

// Decode classifies and decodes a raw packet.
// Configuration packets are checked first, so that an 8-element packet
// is never mistaken for channel data.
func Decode(raw []int32) (Packet, error) {
	switch n := len(raw); {
	case n == ConfigSize:
		var p Configuration
		for i, v := range raw {
			p.Bytes[i] = byte(v)
		}
		return p, nil

	case n == codeSize && raw[0] == CodeMarker:
		return EncodingUpdate{Channel: 0, Shift: int(raw[1])}, nil

	case n == NumChannels:
		var p ChannelData
		copy(p.Raw[:], raw)
		return p, nil

	case n == NumChannels+headerSize:
		p := ChannelData{
			HasHeader:    true,
			SeqID:        int(raw[0]),
			InternalLoss: int(raw[1]),
		}
		copy(p.Raw[:], raw[headerSize:])
		return p, nil
	}

	return nil, xerrors.Errorf("packet: invalid packet length %d: %w", len(raw), ErrUnrecognized)
}

// Encode returns the raw integer form of a packet, as the device sends it.
func Encode(p Packet) []int32 {
	switch p := p.(type) {
	case Configuration:
		raw := make([]int32, ConfigSize)
		for i, v := range p.Bytes {
			raw[i] = int32(v)
		}
		return raw
	case EncodingUpdate:
		return []int32{CodeMarker, int32(p.Shift)}
	case ChannelData:
		if !p.HasHeader {
			raw := make([]int32, NumChannels)
			copy(raw, p.Raw[:])
			return raw
		}
		raw := make([]int32, headerSize+NumChannels)
		raw[0] = int32(p.SeqID % seqRing)
		raw[1] = int32(p.InternalLoss)
		copy(raw[headerSize:], p.Raw[:])
		return raw
	}
	return nil
}
