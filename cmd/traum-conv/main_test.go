// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/traum/internal/rawlog"
	"github.com/go-lpc/traum/packet"
	"github.com/go-lpc/traum/session"
)

func TestConvert(t *testing.T) {
	var (
		dir   = t.TempDir()
		fname = filepath.Join(dir, "capture.raw")
		beg   = time.Date(2020, 6, 7, 8, 9, 10, 0, time.UTC)
		msg   = log.NewMsgStream("test", log.LvlError, io.Discard)
	)

	f, err := os.Create(fname)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var (
		enc  = rawlog.NewEncoder(f)
		raws = [][]int32{packet.Encode(packet.DefaultConfig().Packet())}
	)
	for _, seq := range []int{0, 1, 2, 5, 6} {
		p := packet.ChannelData{HasHeader: true, SeqID: seq}
		p.Raw[0] = int32(100 * seq)
		raws = append(raws, packet.Encode(p))
	}
	raws = append(raws, []int32{1, 2, 3})

	for i, raw := range raws {
		err := enc.Encode(rawlog.Record{
			Time: beg.Add(time.Duration(i) * 4 * time.Millisecond),
			Data: raw,
		})
		if err != nil {
			t.Fatalf("could not encode record %d: %+v", i, err)
		}
	}
	err = f.Close()
	if err != nil {
		t.Fatal(err)
	}

	odir := filepath.Join(dir, "sessions")
	oname, err := process(fname, odir, "conv", "bob", "42", 0, msg)
	if err != nil {
		t.Fatalf("could not convert capture: %+v", err)
	}

	want := filepath.Join(odir, session.FinalName(beg.Add(24*time.Millisecond), "conv"))
	if oname != want {
		t.Fatalf("invalid output name: got=%q, want=%q", oname, want)
	}

	sf, err := session.ReadFile(oname)
	if err != nil {
		t.Fatalf("could not read session: %+v", err)
	}

	// 5 samples and 2 gap rows for the 2 lost packets.
	if got, want := len(sf.Rows), 7; got != want {
		t.Fatalf("invalid number of rows: got=%d, want=%d", got, want)
	}
	if got, want := sf.Info.Duration, int64(24); got != want {
		t.Fatalf("invalid duration: got=%d, want=%d", got, want)
	}
	if got, want := sf.Info.Username, "bob"; got != want {
		t.Fatalf("invalid user: got=%q, want=%q", got, want)
	}
	if !sf.Rows[3].IsGap() || !sf.Rows[4].IsGap() {
		t.Fatalf("missing gap rows: %+v", sf.Rows[3:5])
	}
	if got, want := sf.Rows[5].TransportLoss, 2; got != want {
		t.Fatalf("invalid transport loss: got=%d, want=%d", got, want)
	}

	_, err = process(filepath.Join(dir, "missing.raw"), odir, "conv", "bob", "42", 0, msg)
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestConvertEmpty(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "empty.raw")
	err := os.WriteFile(fname, nil, 0644)
	if err != nil {
		t.Fatal(err)
	}

	msg := log.NewMsgStream("test", log.LvlError, io.Discard)
	_, err = process(fname, t.TempDir(), "conv", "bob", "42", 0, msg)
	if err == nil {
		t.Fatalf("expected an error")
	}
}
