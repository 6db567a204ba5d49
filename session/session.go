// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package session records decoded EEG samples to CSV files.
//
// A recording is written to a temporary file named
// <yyyyddMM_HH-mm-ss>_recording.temp while in progress. When the recording
// ends, a trailer with the session metadata is appended and the file is
// renamed to <yyyyddMMHHmmss>_<tag>.csv.
package session // import "github.com/go-lpc/traum/session"

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/traum/acq"
	"github.com/go-lpc/traum/packet"
)

const (
	tempLayout  = "20060201_15-04-05"
	finalLayout = "20060201150405"
	clockLayout = "15:04:05.000"

	tempSuffix = "_recording.temp"
	finalExt   = ".csv"

	DefaultUser   = "user"
	DefaultUserID = "12345678"
	DefaultTag    = "default"

	// Unit is the physical unit of recorded channel values.
	Unit = "µV"

	defaultQueue = 1024
)

// ErrClosed is returned when appending to a finished recording.
var ErrClosed = errors.New("session: recording closed")

// Header returns the column names of a session file.
func Header() []string {
	cols := make([]string, 0, nCols)
	cols = append(cols, "time", "sampling_time")
	for i := 0; i < packet.NumChannels; i++ {
		cols = append(cols, "ch"+strconv.Itoa(i+1))
	}
	return append(cols,
		"pkgid", "pkgloss_bluetooth", "pkgloss_internal", "transmission_rate",
	)
}

const nCols = 2 + packet.NumChannels + 4

// Alerter notifies an operator of a problem needing attention.
type Alerter interface {
	Alert(subject, body string) error
}

// Recorder creates recordings in a directory.
type Recorder struct {
	dir    string
	user   string
	userID string
	queue  int
	msg    log.MsgStream
	alert  Alerter
	now    func() time.Time
}

type Option func(*Recorder)

// WithUser sets the user name and identifier written in trailers.
func WithUser(name, id string) Option {
	return func(rec *Recorder) {
		rec.user = name
		rec.userID = id
	}
}

// WithQueue sets the number of samples buffered between the decoder
// and the file writer.
func WithQueue(n int) Option {
	return func(rec *Recorder) {
		rec.queue = n
	}
}

// WithLogger sets the message stream of the recorder.
func WithLogger(msg log.MsgStream) Option {
	return func(rec *Recorder) {
		rec.msg = msg
	}
}

// WithAlerter sets the alerter notified when a recording can not be
// finalized.
func WithAlerter(a Alerter) Option {
	return func(rec *Recorder) {
		rec.alert = a
	}
}

// WithClock sets the wall-clock used to seal recordings.
func WithClock(now func() time.Time) Option {
	return func(rec *Recorder) {
		rec.now = now
	}
}

// NewRecorder creates a recorder writing session files under dir.
func NewRecorder(dir string, opts ...Option) *Recorder {
	rec := &Recorder{
		dir:    dir,
		user:   DefaultUser,
		userID: DefaultUserID,
		queue:  defaultQueue,
		msg:    log.NewMsgStream("session", log.LvlInfo, os.Stdout),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(rec)
	}
	if rec.queue <= 0 {
		rec.queue = 1
	}
	return rec
}

// Dir returns the directory holding the session files.
func (rec *Recorder) Dir() string { return rec.dir }

// Start creates a new recording.
func (rec *Recorder) Start(now time.Time) (*Handle, error) {
	err := os.MkdirAll(rec.dir, 0755)
	if err != nil {
		return nil, fmt.Errorf("session: could not create sessions dir: %w", err)
	}

	fname := filepath.Join(rec.dir, TempName(now))
	f, err := os.Create(fname)
	if err != nil {
		return nil, fmt.Errorf("session: could not create recording file: %w", err)
	}

	h := newHandle(rec, f, now)
	err = h.w.Write(Header())
	if err == nil {
		h.w.Flush()
		err = h.w.Error()
	}
	if err != nil {
		_ = f.Close()
		_ = os.Remove(fname)
		return nil, fmt.Errorf("session: could not write header: %w", err)
	}

	go h.loop()
	rec.msg.Debugf("recording to %q", fname)
	return h, nil
}

// Open creates a new recording. Open can be used with acq.WithRecorder.
func (rec *Recorder) Open(now time.Time) (acq.Recording, error) {
	h, err := rec.Start(now)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// TempName returns the name of the file of a recording in progress.
func TempName(start time.Time) string {
	return start.Format(tempLayout) + tempSuffix
}

// FinalName returns the name of a sealed session file.
func FinalName(end time.Time, tag string) string {
	if tag == "" {
		tag = DefaultTag
	}
	tag = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, tag)
	return end.Format(finalLayout) + "_" + tag + finalExt
}

// Sweep removes the temporary files of recordings that were never
// finalized, and returns the number of removed files.
func Sweep(dir string) (int, error) {
	fnames, err := filepath.Glob(filepath.Join(dir, "*.temp"))
	if err != nil {
		return 0, fmt.Errorf("session: could not list temp files: %w", err)
	}

	n := 0
	for _, fname := range fnames {
		err := os.Remove(fname)
		if err != nil {
			return n, fmt.Errorf("session: could not remove temp file %q: %w", fname, err)
		}
		n++
	}
	return n, nil
}
