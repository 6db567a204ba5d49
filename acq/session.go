// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package acq

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/traum/packet"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNotRecording = errors.New("acq: no recording in progress")
	ErrRecording    = errors.New("acq: recording already in progress")
	errNoRecorder   = errors.New("acq: no recorder")
)

// Session decodes the packets of one device.
//
// Events are handled in arrival order. Sinks and the current recording
// only ever see immutable samples.
type Session struct {
	mu  sync.Mutex
	msg log.MsgStream
	now func() time.Time

	cfg  packet.Config
	loss LossTracker
	enc  EncodingState
	rate RateMonitor

	sinks []Sink
	open  func(time.Time) (Recording, error)
	rec   Recording

	warmup int
	skip   int
	index  int64
	conn   bool
	stats  Stats
}

// New creates a new decoding session.
func New(opts ...Option) *Session {
	s := &Session{
		msg: log.NewMsgStream("acq", log.LvlInfo, os.Stdout),
		now: time.Now,
		cfg: packet.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.skip = s.warmup
	return s
}

// Run handles the events sent on evts until the channel is closed or the
// context is done.
// Sinks implementing Runner and the transmission rate monitor are run
// alongside.
func (s *Session) Run(ctx context.Context, evts <-chan Event) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		return s.rate.Run(ctx)
	})
	for _, sink := range s.sinks {
		r, ok := sink.(Runner)
		if !ok {
			continue
		}
		grp.Go(func() error {
			return r.Run(ctx)
		})
	}
	grp.Go(func() error {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return nil
			case evt, ok := <-evts:
				if !ok {
					return nil
				}
				err := s.Handle(evt)
				if err != nil {
					s.msg.Errorf("could not handle event %T: %+v", evt, err)
				}
			}
		}
	})

	err := grp.Wait()
	if err != nil {
		return fmt.Errorf("acq: could not run session: %w", err)
	}
	return nil
}

// Feed decodes a raw packet and handles it.
// Unrecognized packets are logged and dropped.
func (s *Session) Feed(raw []int32) {
	evt, err := NewData(raw)
	if err != nil {
		s.mu.Lock()
		s.stats.Dropped++
		s.mu.Unlock()
		s.msg.Warnf("dropping packet: %+v", err)
		return
	}
	err = s.Handle(evt)
	if err != nil {
		s.msg.Errorf("could not handle packet: %+v", err)
	}
}

// Handle processes one transport event.
func (s *Session) Handle(evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch evt := evt.(type) {
	case Connected:
		s.conn = true
		s.msg.Infof("connected to %q", evt.Addr)
	case Disconnected:
		s.conn = false
		if evt.Err != nil {
			s.msg.Warnf("disconnected: %+v", evt.Err)
			return nil
		}
		s.msg.Infof("disconnected")
	case ServicesDiscovered:
		s.loss.Reset()
		s.skip = s.warmup
		s.msg.Infof("notifications enabled")
	case DataAvailable:
		return s.process(evt.Packet)
	default:
		return fmt.Errorf("acq: unknown event type %T", evt)
	}
	return nil
}

func (s *Session) process(p packet.Packet) error {
	switch p := p.(type) {
	case packet.Configuration:
		s.cfg = p.Config()
		s.stats.Configs++
		s.msg.Debugf(
			"config: gain=%v bits=%d rate=%.2fHz battery=%d",
			s.cfg.GainFactor(), s.cfg.BitsPerChannel(),
			s.cfg.SamplingRate(), s.cfg.Battery,
		)
	case packet.EncodingUpdate:
		s.enc.Apply(p.Channel, p.Shift)
		s.stats.Encoding++
	case packet.ChannelData:
		s.sample(p)
	case nil:
		return fmt.Errorf("acq: nil packet")
	default:
		return fmt.Errorf("acq: unknown packet type %T", p)
	}
	return nil
}

func (s *Session) sample(p packet.ChannelData) {
	s.rate.Tick()
	s.stats.Packets++

	bt := 0
	if p.HasHeader {
		bt = s.loss.Update(p.SeqID)
	}

	if s.skip > 0 {
		s.skip--
		return
	}

	smp := Sample{
		Arrival:       s.now(),
		Interval:      s.cfg.Interval(),
		SeqID:         p.SeqID,
		InternalLoss:  p.InternalLoss,
		TransportLoss: bt,
		Adaptive:      s.enc.Flag(),
		Rate:          s.rate.Frequency(),
		Shifts:        s.enc.Shifts(),
		Values:        Convert(p.Raw, s.cfg.GainFactor()),
	}
	s.index += int64(smp.Gaps())
	smp.Index = s.index
	smp.SamplingTime = float32(smp.Index) * smp.Interval
	s.index++

	for _, sink := range s.sinks {
		sink.Push(smp)
	}
	s.stats.Samples++

	if s.rec == nil {
		return
	}
	err := s.rec.Append(smp)
	if err != nil {
		s.msg.Errorf("could not record sample %d: %+v", smp.Index, err)
	}
}

// Reset forgets the transport loss baseline.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loss.Reset()
}

// Config returns the current device configuration.
func (s *Session) Config() packet.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Shift returns the current bit-shift of a channel.
func (s *Session) Shift(ch int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Shift(ch)
}

// Stats returns the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Connected returns whether the device link is up.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Rate returns the transmission rate monitor.
func (s *Session) Rate() *RateMonitor {
	return &s.rate
}

// Recording returns whether a recording is in progress.
func (s *Session) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec != nil
}

// StartRecording opens a new recording.
// The transport loss baseline is reset, so the first recorded sample
// carries no transport loss.
func (s *Session) StartRecording() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open == nil {
		return errNoRecorder
	}
	if s.rec != nil {
		return ErrRecording
	}

	rec, err := s.open(s.now())
	if err != nil {
		return fmt.Errorf("acq: could not start recording: %w", err)
	}
	s.rec = rec
	s.loss.Reset()
	s.msg.Infof("recording started")
	return nil
}

// StopRecording flushes and seals the current recording under the
// provided tag, and returns the name of the persisted file.
func (s *Session) StopRecording(ctx context.Context, tag string) (string, error) {
	rec, cfg := s.detach()
	if rec == nil {
		return "", ErrNotRecording
	}

	fname, err := rec.End(ctx, tag, cfg)
	if err != nil {
		return fname, fmt.Errorf("acq: could not stop recording: %w", err)
	}
	s.msg.Infof("recording stored as %q", fname)
	return fname, nil
}

// DiscardRecording stops the current recording and drops its data.
func (s *Session) DiscardRecording() error {
	rec, _ := s.detach()
	if rec == nil {
		return ErrNotRecording
	}

	err := rec.Discard()
	if err != nil {
		return fmt.Errorf("acq: could not discard recording: %w", err)
	}
	s.msg.Infof("recording discarded")
	return nil
}

func (s *Session) detach() (Recording, packet.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.rec
	s.rec = nil
	return rec, s.cfg
}
