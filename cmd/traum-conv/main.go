// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// traum-conv decodes raw Traumschreiber capture files into session files.
//
// Usage: traum-conv [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//	$> traum-conv -o ./sessions -tag=rest ./testdata/capture.raw
//	traum-conv: ./testdata/capture.raw -> sessions/20200706080912_rest.csv
package main // import "github.com/go-lpc/traum/cmd/traum-conv"

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	tlog "github.com/go-daq/tdaq/log"
	"github.com/go-lpc/traum/acq"
	"github.com/go-lpc/traum/internal/mmap"
	"github.com/go-lpc/traum/internal/rawlog"
	"github.com/go-lpc/traum/session"
)

func main() {
	log.SetPrefix("traum-conv: ")
	log.SetFlags(0)

	var (
		odir   = flag.String("o", ".", "output directory for session files")
		tag    = flag.String("tag", session.DefaultTag, "session tag")
		user   = flag.String("user", session.DefaultUser, "user name")
		uid    = flag.String("uid", session.DefaultUserID, "user identifier")
		warmup = flag.Int("warmup", 0, "number of samples to discard at the beginning of the capture")
	)

	flag.Usage = func() {
		fmt.Printf(`traum-conv decodes raw Traumschreiber capture files into session files.

Usage: traum-conv [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

Example:

 $> traum-conv -o ./sessions -tag=rest ./testdata/capture.raw

Options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		log.Fatalf("missing path to input capture file")
	}

	msg := tlog.NewMsgStream("traum-conv", tlog.LvlInfo, os.Stderr)
	for _, fname := range flag.Args() {
		oname, err := process(fname, *odir, *tag, *user, *uid, *warmup, msg)
		if err != nil {
			log.Fatalf("could not convert file %q: %+v", fname, err)
		}
		log.Printf("%s -> %s", fname, oname)
	}
}

func process(fname, odir, tag, user, uid string, warmup int, msg tlog.MsgStream) (string, error) {
	h, err := mmap.Open(fname)
	if err != nil {
		return "", fmt.Errorf("could not open capture: %w", err)
	}
	defer h.Close()

	var (
		dec = rawlog.NewDecoder(h.Reader())
		rec rawlog.Record
		now time.Time
	)

	err = dec.Decode(&rec)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("empty capture file %q", fname)
		}
		return "", fmt.Errorf("could not decode first record: %w", err)
	}
	now = rec.Time

	var (
		clock = func() time.Time { return now }
		store = session.NewRecorder(
			odir,
			session.WithUser(user, uid),
			session.WithLogger(msg),
			session.WithClock(clock),
		)
		sess = acq.New(
			acq.WithLogger(msg),
			acq.WithClock(clock),
			acq.WithRecorder(store.Open),
			acq.WithWarmup(warmup),
		)
	)

	// a capture starts right after notifications were enabled.
	err = sess.Handle(acq.ServicesDiscovered{})
	if err != nil {
		return "", fmt.Errorf("could not reset session: %w", err)
	}

	err = sess.StartRecording()
	if err != nil {
		return "", fmt.Errorf("could not start recording: %w", err)
	}

	for n := 1; ; n++ {
		sess.Feed(rec.Data)
		err = dec.Decode(&rec)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			_ = sess.DiscardRecording()
			return "", fmt.Errorf("could not decode record %d: %w", n, err)
		}
		now = rec.Time
	}

	oname, err := sess.StopRecording(context.Background(), tag)
	if err != nil {
		return "", fmt.Errorf("could not store session: %w", err)
	}

	st := sess.Stats()
	if st.Dropped > 0 {
		msg.Warnf("dropped %d unrecognized packet(s)", st.Dropped)
	}
	return oname, nil
}
