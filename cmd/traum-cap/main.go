// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// traum-cap connects to a Traumschreiber device and writes its raw
// packets to a capture file.
//
// Usage: traum-cap [OPTIONS]
//
// Example:
//
//	$> traum-cap -addr=f0:de:ad:be:ef:00 -o capture.raw -dur=1m
package main // import "github.com/go-lpc/traum/cmd/traum-cap"

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	tlog "github.com/go-daq/tdaq/log"
	"github.com/go-lpc/traum/ble"
	"github.com/go-lpc/traum/server"
)

func main() {
	log.SetPrefix("traum-cap: ")
	log.SetFlags(0)

	var (
		addr  = flag.String("addr", "", "address of the device to connect to")
		oname = flag.String("o", "capture.raw", "path to output capture file")
		dur   = flag.Duration("dur", 0, "capture duration (0: until interrupted)")
		cfg   = flag.String("cfg", "", "path to device configuration file to apply")
	)

	flag.Usage = func() {
		fmt.Printf(`traum-cap connects to a Traumschreiber device and writes its raw packets to a capture file.

Usage: traum-cap [OPTIONS]

Example:

 $> traum-cap -addr=f0:de:ad:be:ef:00 -o capture.raw -dur=1m

Options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if *addr == "" {
		flag.Usage()
		log.Fatalf("missing device address")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *dur > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *dur)
		defer cancel()
	}

	err := xmain(ctx, *addr, *oname, *cfg)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func xmain(ctx context.Context, addr, oname, cfgname string) error {
	msg := tlog.NewMsgStream("traum-cap", tlog.LvlInfo, os.Stdout)

	link, err := ble.Dial(ctx, addr, msg)
	if err != nil {
		return fmt.Errorf("could not connect to device: %w", err)
	}
	defer link.Close()

	if cfgname != "" {
		cfg, err := server.ReadConfig(cfgname)
		if err != nil {
			return fmt.Errorf("could not read config: %w", err)
		}
		err = link.WriteConfig(cfg)
		if err != nil {
			return fmt.Errorf("could not configure device: %w", err)
		}
	}

	f, err := os.Create(oname)
	if err != nil {
		return fmt.Errorf("could not create capture file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	tee := server.NewTee(link, w)

	tck := time.NewTicker(5 * time.Second)
	defer tck.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-tck.C:
				msg.Infof("captured %d packets", tee.Len())
			}
		}
	}()

	err = tee.Run(ctx, func([]int32) {})
	if err != nil {
		return fmt.Errorf("could not capture packets: %w", err)
	}

	err = w.Flush()
	if err != nil {
		return fmt.Errorf("could not flush capture file: %w", err)
	}

	err = f.Close()
	if err != nil {
		return fmt.Errorf("could not close capture file: %w", err)
	}

	msg.Infof("captured %d packets into %q", tee.Len(), oname)
	return nil
}
