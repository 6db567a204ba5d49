// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package acq

import (
	"time"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/traum/packet"
)

type Option func(*Session)

// WithLogger sets the message stream used by the session.
func WithLogger(msg log.MsgStream) Option {
	return func(s *Session) {
		s.msg = msg
	}
}

// WithConfig sets the device configuration assumed until the device
// sends its own.
func WithConfig(cfg packet.Config) Option {
	return func(s *Session) {
		s.cfg = cfg
	}
}

// WithSink adds live sample sinks.
func WithSink(sinks ...Sink) Option {
	return func(s *Session) {
		s.sinks = append(s.sinks, sinks...)
	}
}

// WithRecorder sets the function used to open new recordings.
func WithRecorder(open func(start time.Time) (Recording, error)) Option {
	return func(s *Session) {
		s.open = open
	}
}

// WithClock sets the wall-clock used to timestamp samples.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// WithWarmup sets the number of samples discarded each time
// notifications are enabled.
func WithWarmup(n int) Option {
	return func(s *Session) {
		s.warmup = n
	}
}
