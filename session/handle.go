// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package session

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/go-lpc/traum/acq"
	"github.com/go-lpc/traum/packet"
	"github.com/google/uuid"
)

// Handle is an in-progress recording.
//
// Samples are queued to a bounded channel drained by a writer goroutine:
// Append blocks when the queue is full, samples are never dropped.
type Handle struct {
	rec   *Recorder
	fname string
	f     *os.File
	w     *csv.Writer

	mu      sync.Mutex
	closed  bool
	drained bool // writer exited
	dropped bool // finalization given up, writer closes the file
	rows    chan acq.Sample
	done    chan struct{}

	// owned by the writer goroutine until done is closed.
	start time.Time // recording start
	t0    time.Time // arrival of the first stored row
	n     int64     // stored rows
	buf   []string
}

func newHandle(rec *Recorder, f *os.File, start time.Time) *Handle {
	return &Handle{
		rec:   rec,
		fname: f.Name(),
		f:     f,
		w:     csv.NewWriter(f),
		rows:  make(chan acq.Sample, rec.queue),
		done:  make(chan struct{}),
		start: start,
		buf:   make([]string, nCols),
	}
}

// Name returns the name of the temporary file of the recording.
func (h *Handle) Name() string { return h.fname }

// Append queues a sample for persistence.
func (h *Handle) Append(smp acq.Sample) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	h.rows <- smp
	return nil
}

func (h *Handle) loop() {
	defer close(h.done)
	defer h.exit()
	for smp := range h.rows {
		h.write(smp)
		if len(h.rows) == 0 {
			h.w.Flush()
			if err := h.w.Error(); err != nil {
				h.rec.msg.Errorf("could not flush %q: %+v", h.fname, err)
			}
		}
	}
	h.w.Flush()
}

// exit marks the writer as done and closes the file when finalization
// was already given up.
func (h *Handle) exit() {
	h.mu.Lock()
	h.drained = true
	dropped := h.dropped
	h.mu.Unlock()
	if dropped {
		_ = h.f.Close()
	}
}

// drop gives up finalization. The file is closed by whoever of the
// writer and drop comes last.
func (h *Handle) drop() {
	h.mu.Lock()
	h.dropped = true
	drained := h.drained
	h.mu.Unlock()
	if drained {
		_ = h.f.Close()
	}
}

// write stores a sample, preceded by one NaN row per lost packet.
// Loss counters are only attributed to the real row.
func (h *Handle) write(smp acq.Sample) {
	var nan [packet.NumChannels]float32
	for i := range nan {
		nan[i] = float32(math.NaN())
	}
	for i := 0; i < smp.Gaps(); i++ {
		h.writeRow(smp, &nan, 0, 0)
	}
	h.writeRow(smp, &smp.Values, smp.TransportLoss, smp.InternalLoss)
}

func (h *Handle) writeRow(smp acq.Sample, vs *[packet.NumChannels]float32, bt, internal int) {
	if h.n == 0 {
		h.t0 = smp.Arrival
	}
	var (
		row = h.buf
		ms  = smp.Arrival.Sub(h.t0).Milliseconds()
	)
	row[0] = strconv.FormatInt(ms, 10)
	row[1] = formatF32(smp.Interval * float32(h.n))
	for i, v := range vs {
		row[2+i] = formatF32(v)
	}
	i := 2 + packet.NumChannels
	row[i+0] = strconv.Itoa(smp.SeqID)
	row[i+1] = strconv.Itoa(bt)
	row[i+2] = strconv.Itoa(internal)
	row[i+3] = formatF32(smp.Rate)

	err := h.w.Write(row)
	if err != nil {
		h.rec.msg.Errorf("could not write row %d to %q: %+v", h.n, h.fname, err)
		return
	}
	h.n++
}

// close stops accepting samples and waits for the writer to drain the queue.
func (h *Handle) close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	h.closed = true
	close(h.rows)
	h.mu.Unlock()

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("session: could not flush %q: %w", h.fname, ctx.Err())
	}
}

// End flushes all queued samples, appends the session trailer and
// renames the temporary file to its final name.
// If the rename fails, the temporary file is left on disk and the
// alerter, if any, is notified.
func (h *Handle) End(ctx context.Context, tag string, cfg packet.Config) (string, error) {
	err := h.close(ctx)
	switch {
	case errors.Is(err, ErrClosed):
		return "", err
	case err != nil:
		h.drop()
		return "", h.fail(err)
	}

	if tag == "" {
		tag = DefaultTag
	}

	end := h.rec.now()
	info := Info{
		Username:       h.rec.user,
		UserID:         h.rec.userID,
		SessionID:      uuid.NewString(),
		Tag:            tag,
		Date:           end.Format(finalLayout),
		Rows:           h.n,
		Columns:        packet.NumChannels,
		Duration:       end.Sub(h.start).Milliseconds(),
		Start:          h.start.Format(clockLayout),
		End:            end.Format(clockLayout),
		SamplingRate:   cfg.SamplingRate(),
		BitsPerChannel: cfg.BitsPerChannel(),
		Unit:           Unit,
		StartStamp:     h.start.UnixMilli(),
		EndStamp:       end.UnixMilli(),
	}

	_ = h.w.Write(trailerLabels)
	_ = h.w.Write(info.record())
	h.w.Flush()
	err = h.w.Error()
	if err != nil {
		_ = h.f.Close()
		return "", h.fail(fmt.Errorf("session: could not write trailer: %w", err))
	}

	err = h.f.Close()
	if err != nil {
		return "", h.fail(fmt.Errorf("session: could not close %q: %w", h.fname, err))
	}

	fname := filepath.Join(h.rec.dir, FinalName(end, tag))
	err = os.Rename(h.fname, fname)
	if err != nil {
		return "", h.fail(fmt.Errorf("session: could not store recording: %w", err))
	}

	return fname, nil
}

func (h *Handle) fail(err error) error {
	h.rec.msg.Errorf("recording %q left on disk: %+v", h.fname, err)
	if h.rec.alert == nil {
		return err
	}
	aerr := h.rec.alert.Alert(
		"could not store recording",
		fmt.Sprintf("recording %q could not be stored:\n%+v\n", h.fname, err),
	)
	if aerr != nil {
		h.rec.msg.Errorf("could not send alert: %+v", aerr)
	}
	return err
}

// Discard stops the recording and removes its temporary file.
func (h *Handle) Discard() error {
	err := h.close(context.Background())
	if err != nil {
		return err
	}

	_ = h.f.Close()
	err = os.Remove(h.fname)
	if err != nil {
		return fmt.Errorf("session: could not remove %q: %w", h.fname, err)
	}
	return nil
}

func formatF32(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}

var (
	_ acq.Recording = (*Handle)(nil)
)
