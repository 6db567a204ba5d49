// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-lpc/traum/internal/rawlog"
	"github.com/go-lpc/traum/packet"
)

// Tee is a source writing every packet of an underlying source to a raw
// capture stream before handing it on.
type Tee struct {
	src Source
	now func() time.Time

	mu  sync.Mutex
	enc *rawlog.Encoder
	n   int
	err error
}

// NewTee returns a source capturing the packets of src into w.
func NewTee(src Source, w io.Writer) *Tee {
	return &Tee{
		src: src,
		now: time.Now,
		enc: rawlog.NewEncoder(w),
	}
}

// Run hands the packets of the underlying source to f, once captured.
// Capture errors stop the recording of the stream but not the stream
// itself; they are reported at the end of the run.
func (tee *Tee) Run(ctx context.Context, f func(raw []int32)) error {
	err := tee.src.Run(ctx, func(raw []int32) {
		tee.write(raw)
		f(raw)
	})
	if err != nil {
		return err
	}
	return tee.Err()
}

func (tee *Tee) write(raw []int32) {
	tee.mu.Lock()
	defer tee.mu.Unlock()
	if tee.err != nil {
		return
	}
	err := tee.enc.Encode(rawlog.Record{Time: tee.now(), Data: raw})
	if err != nil {
		tee.err = fmt.Errorf("could not capture packet %d: %w", tee.n, err)
		return
	}
	tee.n++
}

// Len returns the number of captured packets.
func (tee *Tee) Len() int {
	tee.mu.Lock()
	defer tee.mu.Unlock()
	return tee.n
}

// Err returns the first capture error, if any.
func (tee *Tee) Err() error {
	tee.mu.Lock()
	defer tee.mu.Unlock()
	return tee.err
}

// WriteConfig forwards the configuration to the underlying source, when
// it can be configured.
func (tee *Tee) WriteConfig(cfg packet.Config) error {
	dev, ok := tee.src.(Configurer)
	if !ok {
		return nil
	}
	return dev.WriteConfig(cfg)
}
