// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package acq

import (
	"fmt"

	"github.com/go-lpc/traum/packet"
)

// Event is a transport event handled by a Session.
type Event interface {
	event()
}

// Connected is sent when the link to the device is established.
type Connected struct {
	Addr string
}

// Disconnected is sent when the link to the device is lost.
type Disconnected struct {
	Err error
}

// ServicesDiscovered is sent when the device characteristics are ready
// and notifications are enabled.
type ServicesDiscovered struct{}

// DataAvailable carries a decoded device packet.
type DataAvailable struct {
	Packet packet.Packet
}

func (Connected) event()          {}
func (Disconnected) event()       {}
func (ServicesDiscovered) event() {}
func (DataAvailable) event()      {}

// NewData decodes a raw packet into a DataAvailable event.
func NewData(raw []int32) (Event, error) {
	p, err := packet.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("acq: could not decode packet: %w", err)
	}
	return DataAvailable{Packet: p}, nil
}

var (
	_ Event = (*Connected)(nil)
	_ Event = (*Disconnected)(nil)
	_ Event = (*ServicesDiscovered)(nil)
	_ Event = (*DataAvailable)(nil)
)
