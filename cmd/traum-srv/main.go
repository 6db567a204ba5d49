// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command traum-srv starts a TDAQ server decoding Traumschreiber packets.
//
// Packets are read from a BLE device, replayed from a raw capture file or
// generated by a simulator.
//
// Example:
//
//	$> traum-srv -src=ble -ble-addr=f0:de:ad:be:ef:00 -dir=/data/sessions -id traum-srv
//	$> traum-srv -src=file -file=capture.raw -id traum-srv
package main // import "github.com/go-lpc/traum/cmd/traum-srv"

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	tlog "github.com/go-daq/tdaq/log"
	"github.com/go-lpc/traum"
	"github.com/go-lpc/traum/acq"
	"github.com/go-lpc/traum/ble"
	"github.com/go-lpc/traum/internal/alert"
	"github.com/go-lpc/traum/packet"
	"github.com/go-lpc/traum/plot"
	"github.com/go-lpc/traum/server"
	"github.com/go-lpc/traum/session"
)

func main() {
	var (
		src     = flag.String("src", "sim", "packet source (sim|file|ble)")
		addr    = flag.String("ble-addr", "", "BLE address of the device (src=ble)")
		fname   = flag.String("file", "", "raw capture file to replay (src=file)")
		dir     = flag.String("dir", "/data/sessions", "directory of session files")
		user    = flag.String("user", session.DefaultUser, "user name written in session trailers")
		uid     = flag.String("uid", session.DefaultUserID, "user id written in session trailers")
		warmup  = flag.Int("warmup", 0, "number of samples discarded after notifications are enabled")
		capture = flag.String("capture", "", "raw capture file to write incoming packets to")
		view    = flag.Duration("plot", 0, "period of the live view summary (0: disabled)")
	)

	cmd := flags.New()

	msg := tlog.NewMsgStream(cmd.Name, cmd.Level, os.Stdout)
	if vers, _ := traum.Version(); vers != "" {
		msg.Infof("traum version: %s", vers)
	}

	dev, err := newSource(*src, *addr, *fname, msg)
	if err != nil {
		log.Panicf("could not create packet source: %+v", err)
	}
	if c, ok := dev.(interface{ Close() error }); ok {
		defer c.Close()
	}

	if *capture != "" {
		f, err := os.Create(*capture)
		if err != nil {
			log.Panicf("could not create capture file: %+v", err)
		}
		defer f.Close()
		dev = server.NewTee(dev, f)
	}

	rec := session.NewRecorder(
		*dir,
		session.WithUser(*user, *uid),
		session.WithLogger(msg),
		session.WithAlerter(alert.FromEnv(cmd.Name)),
	)

	opts := []acq.Option{
		acq.WithLogger(msg),
		acq.WithWarmup(*warmup),
	}
	if *view > 0 {
		th := plot.NewThrottle(
			plot.NewBuffer(plot.DefaultWindow),
			summary(msg),
			plot.WithPeriod(*view),
			plot.WithLogger(msg),
		)
		opts = append(opts, acq.WithSink(th))
	}

	srv := server.New(cmd.Name, dev, rec, opts...)

	daq := tdaq.New(cmd, os.Stdout)
	daq.CmdHandle("/config", srv.OnConfig)
	daq.CmdHandle("/init", srv.OnInit)
	daq.CmdHandle("/reset", srv.OnReset)
	daq.CmdHandle("/start", srv.OnStart)
	daq.CmdHandle("/stop", srv.OnStop)
	daq.CmdHandle("/quit", srv.OnQuit)

	daq.OutputHandle("/samples", srv.Samples)

	daq.RunHandle(srv.Run)

	err = daq.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}

func newSource(kind, addr, fname string, msg tlog.MsgStream) (server.Source, error) {
	switch kind {
	case "sim":
		return server.NewSimulator(packet.DefaultConfig(), time.Now().UnixNano()), nil
	case "file":
		if fname == "" {
			return nil, fmt.Errorf("missing capture file name")
		}
		return server.Replay{Name: fname, Realtime: true}, nil
	case "ble":
		if addr == "" {
			return nil, fmt.Errorf("missing device address")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return ble.Dial(ctx, addr, msg)
	default:
		return nil, fmt.Errorf("unknown packet source %q", kind)
	}
}

// summary returns a renderer logging the last values of the first channels.
func summary(msg tlog.MsgStream) plot.RenderFunc {
	return func(ctx context.Context, snap plot.Snapshot) error {
		n := snap.Len()
		if n == 0 {
			return nil
		}
		var vs [packet.NumChannels]float32
		for ch, pts := range snap.Channels {
			p := pts[len(pts)-1]
			vs[ch] = p.V - snap.Offsets[ch]
		}
		msg.Infof("t=%.0fms points=%d ch1=%s ch2=%s ch3=%s ch4=%s",
			snap.Channels[0][n-1].T, n,
			acq.FormatReadout(vs[0]), acq.FormatReadout(vs[1]),
			acq.FormatReadout(vs[2]), acq.FormatReadout(vs[3]),
		)
		return nil
	}
}
