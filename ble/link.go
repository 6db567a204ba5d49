// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ble

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/traum/packet"
	"tinygo.org/x/bluetooth"
)

// Link is a connection to a Traumschreiber device.
type Link struct {
	addr string
	msg  log.MsgStream

	data []bluetooth.DeviceCharacteristic
	cfg  bluetooth.DeviceCharacteristic
	code bluetooth.DeviceCharacteristic

	disconnect func() error
}

// Dial scans for the device with the provided address, connects to it
// and discovers its Traumschreiber service.
func Dial(ctx context.Context, addr string, msg log.MsgStream) (*Link, error) {
	if msg == nil {
		msg = log.NewMsgStream("ble", log.LvlInfo, os.Stdout)
	}

	adapter := bluetooth.DefaultAdapter
	err := adapter.Enable()
	if err != nil {
		return nil, fmt.Errorf("ble: could not enable adapter: %w", err)
	}

	msg.Infof("scanning for %q...", addr)
	found := make(chan bluetooth.ScanResult, 1)
	errc := make(chan error, 1)
	go func() {
		errc <- adapter.Scan(func(adapter *bluetooth.Adapter, res bluetooth.ScanResult) {
			if !strings.EqualFold(res.Address.String(), addr) {
				return
			}
			_ = adapter.StopScan()
			select {
			case found <- res:
			default:
			}
		})
	}()

	var res bluetooth.ScanResult
	select {
	case <-ctx.Done():
		_ = adapter.StopScan()
		return nil, fmt.Errorf("ble: could not find %q: %w", addr, ctx.Err())
	case err := <-errc:
		if err == nil {
			err = fmt.Errorf("scan stopped")
		}
		return nil, fmt.Errorf("ble: could not scan for %q: %w", addr, err)
	case res = <-found:
	}

	dev, err := adapter.Connect(res.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("ble: could not connect to %q: %w", addr, err)
	}
	msg.Infof("connected to %q (rssi=%d)", addr, res.RSSI)

	link := &Link{
		addr:       addr,
		msg:        msg,
		disconnect: dev.Disconnect,
	}

	srvs, err := dev.DiscoverServices([]bluetooth.UUID{serviceUUID})
	if err != nil {
		_ = link.Close()
		return nil, fmt.Errorf("ble: could not discover service %s on %q: %w", ServiceID, addr, err)
	}
	if len(srvs) == 0 {
		_ = link.Close()
		return nil, fmt.Errorf("ble: no service %s on %q", ServiceID, addr)
	}

	ids := append([]bluetooth.UUID{configUUID, codeUUID}, dataUUIDs...)
	chars, err := srvs[0].DiscoverCharacteristics(ids)
	if err != nil {
		_ = link.Close()
		return nil, fmt.Errorf("ble: could not discover characteristics on %q: %w", addr, err)
	}

	var ok struct{ cfg, code bool }
	for _, c := range chars {
		switch c.UUID() {
		case configUUID:
			link.cfg = c
			ok.cfg = true
		case codeUUID:
			link.code = c
			ok.code = true
		default:
			link.data = append(link.data, c)
		}
	}
	if !ok.cfg || !ok.code || len(link.data) != len(dataUUIDs) {
		_ = link.Close()
		return nil, fmt.Errorf(
			"ble: missing characteristics on %q (config=%v, code=%v, data=%d)",
			addr, ok.cfg, ok.code, len(link.data),
		)
	}

	return link, nil
}

// Addr returns the address of the connected device.
func (link *Link) Addr() string { return link.addr }

// Run enables notifications and hands every received packet to f until
// the context is done.
// The current device configuration is handed first.
// f may be called concurrently from several notification handlers.
func (link *Link) Run(ctx context.Context, f func(raw []int32)) error {
	cfg, err := link.readConfig()
	if err != nil {
		return err
	}
	f(cfg)

	err = link.code.EnableNotifications(func(buf []byte) {
		raw, err := UnpackCode(buf)
		if err != nil {
			link.msg.Warnf("%+v", err)
			return
		}
		f(raw)
	})
	if err != nil {
		return fmt.Errorf("ble: could not enable code notifications: %w", err)
	}

	for i, c := range link.data {
		err = c.EnableNotifications(func(buf []byte) {
			f(Unpack(buf))
		})
		if err != nil {
			return fmt.Errorf("ble: could not enable data notifications %d: %w", i, err)
		}
	}
	link.msg.Infof("notifications enabled")

	<-ctx.Done()

	for _, c := range append([]bluetooth.DeviceCharacteristic{link.code}, link.data...) {
		_ = c.EnableNotifications(nil)
	}
	return nil
}

func (link *Link) readConfig() ([]int32, error) {
	buf := make([]byte, packet.ConfigSize)
	n, err := link.cfg.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("ble: could not read config: %w", err)
	}
	return UnpackConfig(buf[:n])
}

// ReadConfig reads the device configuration.
func (link *Link) ReadConfig() (packet.Config, error) {
	raw, err := link.readConfig()
	if err != nil {
		return packet.Config{}, err
	}
	p, err := packet.Decode(raw)
	if err != nil {
		return packet.Config{}, fmt.Errorf("ble: could not decode config: %w", err)
	}
	return p.(packet.Configuration).Config(), nil
}

// WriteConfig sends a new configuration to the device.
func (link *Link) WriteConfig(cfg packet.Config) error {
	buf, err := cfg.MarshalBinary()
	if err != nil {
		return fmt.Errorf("ble: could not encode config: %w", err)
	}
	_, err = link.cfg.WriteWithoutResponse(buf)
	if err != nil {
		return fmt.Errorf("ble: could not write config: %w", err)
	}
	return nil
}

// Close disconnects from the device.
func (link *Link) Close() error {
	if link.disconnect == nil {
		return nil
	}
	err := link.disconnect()
	link.disconnect = nil
	if err != nil {
		return fmt.Errorf("ble: could not disconnect from %q: %w", link.addr, err)
	}
	return nil
}
