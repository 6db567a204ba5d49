// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package plot

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/traum/acq"
)

// DefaultPeriod is the minimum time between two rendered frames (25 FPS).
const DefaultPeriod = 40 * time.Millisecond

// RenderFunc draws a snapshot.
// It should return as soon as ctx is done: a render still in flight when
// the next frame is due gets cancelled.
type RenderFunc func(ctx context.Context, snap Snapshot) error

// Throttle collects live samples and renders them at a bounded rate.
type Throttle struct {
	mu      sync.Mutex
	pending []acq.Sample

	buf    *Buffer
	period time.Duration
	render RenderFunc
	msg    log.MsgStream
}

type Option func(*Throttle)

// WithPeriod sets the minimum time between two rendered frames.
func WithPeriod(d time.Duration) Option {
	return func(th *Throttle) {
		th.period = d
	}
}

// WithLogger sets the message stream used to report render errors.
func WithLogger(msg log.MsgStream) Option {
	return func(th *Throttle) {
		th.msg = msg
	}
}

// NewThrottle creates a throttle feeding buf and rendering its snapshots.
func NewThrottle(buf *Buffer, render RenderFunc, opts ...Option) *Throttle {
	th := &Throttle{
		buf:    buf,
		period: DefaultPeriod,
		render: render,
		msg:    log.NewMsgStream("plot", log.LvlInfo, os.Stdout),
	}
	for _, opt := range opts {
		opt(th)
	}
	return th
}

// Push queues a sample for the next frame. Push never blocks on rendering.
func (th *Throttle) Push(smp acq.Sample) {
	th.mu.Lock()
	th.pending = append(th.pending, smp)
	th.mu.Unlock()
}

// Run renders a new frame every period, as long as new samples arrived,
// until the context is done.
func (th *Throttle) Run(ctx context.Context) error {
	tck := time.NewTicker(th.period)
	defer tck.Stop()

	var (
		wg     sync.WaitGroup
		cancel = func() {}
	)
	defer func() {
		cancel()
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tck.C:
			if !th.flush() {
				continue
			}
			snap := th.buf.Snapshot()

			cancel()
			var rctx context.Context
			rctx, cancel = context.WithCancel(ctx)

			wg.Add(1)
			go func() {
				defer wg.Done()
				err := th.render(rctx, snap)
				if err != nil && !errors.Is(err, context.Canceled) {
					th.msg.Errorf("could not render frame: %+v", err)
				}
			}()
		}
	}
}

func (th *Throttle) flush() bool {
	th.mu.Lock()
	batch := th.pending
	th.pending = nil
	th.mu.Unlock()

	if len(batch) == 0 {
		return false
	}
	th.buf.Append(batch)
	return true
}

var (
	_ acq.Sink   = (*Throttle)(nil)
	_ acq.Runner = (*Throttle)(nil)
)
