// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/traum/acq"
	"github.com/go-lpc/traum/packet"
	"github.com/go-lpc/traum/session"
)

func TestStat(t *testing.T) {
	var (
		beg = time.Date(2020, 6, 7, 8, 9, 10, 0, time.UTC)
		rec = session.NewRecorder(t.TempDir(),
			session.WithUser("bob", "42"),
			session.WithLogger(log.NewMsgStream("test", log.LvlError, io.Discard)),
			session.WithClock(func() time.Time { return beg.Add(time.Second) }),
		)
	)

	h, err := rec.Start(beg)
	if err != nil {
		t.Fatalf("could not start recording: %+v", err)
	}
	for i := 0; i < 10; i++ {
		smp := acq.Sample{
			Arrival:  beg.Add(time.Duration(i) * 4 * time.Millisecond),
			Interval: 4,
			SeqID:    i,
			Rate:     250,
		}
		for j := range smp.Values {
			smp.Values[j] = float32(i % 2)
		}
		if i == 5 {
			smp.TransportLoss = 2
			smp.InternalLoss = 1
		}
		err = h.Append(smp)
		if err != nil {
			t.Fatalf("could not append sample: %+v", err)
		}
	}
	fname, err := h.End(context.Background(), "stat", packet.DefaultConfig())
	if err != nil {
		t.Fatalf("could not end recording: %+v", err)
	}

	out := new(strings.Builder)
	err = process(out, fname, true)
	if err != nil {
		t.Fatalf("could not process session: %+v", err)
	}

	for _, want := range []string{
		"user:      bob (42)\n",
		"tag:       stat\n",
		"shape:     13x24\n",
		"duration:  1000 ms (08:09:10.000 - 08:09:11.000)\n",
		"sampling:  250 Hz, 16 bits\n",
		"samples:           10\n",
		"gaps:               3 (23.08%)\n",
		"bt-loss:            2\n",
		"int-loss:           1\n",
		"bursts:             1 (mean=3.00)\n",
		"rate:      250.00 Hz",
		"ch1  mean=      +0.500µV",
		"ch24 mean=      +0.500µV",
	} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("missing %q in output:\n%s", want, out.String())
		}
	}
}
