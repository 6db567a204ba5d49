// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ble connects to a Traumschreiber device over Bluetooth Low
// Energy and turns its GATT notifications into raw packets.
package ble // import "github.com/go-lpc/traum/ble"

import (
	"encoding/binary"
	"fmt"

	"github.com/go-lpc/traum/packet"
	"github.com/google/uuid"
	"tinygo.org/x/bluetooth"
)

const (
	ServiceID = "00000ee6-0000-1000-8000-00805f9b34fb"
	ConfigID  = "0000ecc0-0000-1000-8000-00805f9b34fb"
	CodeID    = "0000c0de-0000-1000-8000-00805f9b34fb"
)

// DataIDs are the identifiers of the channel data characteristics.
var DataIDs = []string{
	"0000ee60-0000-1000-8000-00805f9b34fb",
	"0000ee61-0000-1000-8000-00805f9b34fb",
	"0000ee62-0000-1000-8000-00805f9b34fb",
}

var (
	serviceUUID = bluetooth.NewUUID(uuid.MustParse(ServiceID))
	configUUID  = bluetooth.NewUUID(uuid.MustParse(ConfigID))
	codeUUID    = bluetooth.NewUUID(uuid.MustParse(CodeID))
	dataUUIDs   = func() []bluetooth.UUID {
		ids := make([]bluetooth.UUID, len(DataIDs))
		for i, id := range DataIDs {
			ids[i] = bluetooth.NewUUID(uuid.MustParse(id))
		}
		return ids
	}()
)

// Unpack converts a channel data notification into a raw packet of
// big-endian signed 16-bit words.
func Unpack(buf []byte) []int32 {
	raw := make([]int32, len(buf)/2)
	for i := range raw {
		raw[i] = int32(int16(binary.BigEndian.Uint16(buf[2*i:])))
	}
	return raw
}

// UnpackCode converts a code notification into an encoding update packet.
// The notification holds the signed bit-shift of channel 0.
func UnpackCode(buf []byte) ([]int32, error) {
	if len(buf) < 1 {
		return nil, fmt.Errorf("ble: empty code notification")
	}
	return []int32{packet.CodeMarker, int32(int8(buf[0]))}, nil
}

// UnpackConfig converts the content of the config characteristic into a
// configuration packet.
func UnpackConfig(buf []byte) ([]int32, error) {
	if len(buf) != packet.ConfigSize {
		return nil, fmt.Errorf(
			"ble: invalid config size (got=%d, want=%d)",
			len(buf), packet.ConfigSize,
		)
	}
	raw := make([]int32, len(buf))
	for i, v := range buf {
		raw[i] = int32(v)
	}
	return raw, nil
}
