// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/traum/acq"
	"github.com/go-lpc/traum/internal/rawlog"
	"github.com/go-lpc/traum/packet"
	"github.com/go-lpc/traum/session"
)

func newTestContext(ctx context.Context) tdaq.Context {
	return tdaq.Context{
		Ctx: ctx,
		Msg: log.NewMsgStream("test", log.LvlError, io.Discard),
	}
}

func newTestServer(t *testing.T, src Source) *Server {
	t.Helper()
	msg := log.NewMsgStream("test", log.LvlError, io.Discard)
	rec := session.NewRecorder(t.TempDir(), session.WithLogger(msg))
	return New("test", src, rec, acq.WithLogger(msg))
}

func strFrame(t *testing.T, s string) tdaq.Frame {
	t.Helper()
	buf := new(bytes.Buffer)
	enc := tdaq.NewEncoder(buf)
	enc.WriteStr(s)
	if err := enc.Err(); err != nil {
		t.Fatalf("could not encode frame: %+v", err)
	}
	return tdaq.Frame{Body: buf.Bytes()}
}

func TestParseConfig(t *testing.T) {
	for _, tc := range []struct {
		name string
		str  string
		want packet.Config
		err  bool
	}{
		{
			name: "default",
			str:  "290001110f800000",
			want: packet.DefaultConfig(),
		},
		{
			name: "spaces",
			str:  "29 00 01 11\n0f 80 00 00\n",
			want: packet.DefaultConfig(),
		},
		{
			name: "battery",
			str:  "290001110f800102",
			want: func() packet.Config {
				cfg := packet.DefaultConfig()
				cfg.Battery = 0x0102
				return cfg
			}(),
		},
		{
			name: "not-hex",
			str:  "zz",
			err:  true,
		},
		{
			name: "short",
			str:  "2900",
			err:  true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseConfig(tc.str)
			switch {
			case err != nil && !tc.err:
				t.Fatalf("could not parse config: %+v", err)
			case err == nil && tc.err:
				t.Fatalf("expected an error")
			case err != nil:
				return
			}
			if got != tc.want {
				t.Fatalf("invalid config:\ngot= %+v\nwant=%+v", got, tc.want)
			}
		})
	}
}

func TestMarshalSample(t *testing.T) {
	smp := acq.Sample{SeqID: 7, SamplingTime: 12}
	for i := range smp.Values {
		smp.Values[i] = float32(i) + 0.5
	}

	raw, err := MarshalSample(smp)
	if err != nil {
		t.Fatalf("could not marshal sample: %+v", err)
	}

	var got map[string]float64
	err = json.Unmarshal(raw, &got)
	if err != nil {
		t.Fatalf("could not unmarshal sample: %+v", err)
	}

	if got, want := len(got), packet.NumChannels+2; got != want {
		t.Fatalf("invalid number of keys: got=%d, want=%d", got, want)
	}
	if got["pkg"] != 7 || got["time"] != 12 {
		t.Fatalf("invalid sample header: %v", got)
	}
	if got["1"] != 0.5 || got["24"] != 23.5 {
		t.Fatalf("invalid sample values: %v", got)
	}
}

func TestServerRun(t *testing.T) {
	const n = 50
	src := NewSimulator(packet.DefaultConfig(), 1234)
	src.N = n
	src.Tick = 0

	var (
		srv  = newTestServer(t, src)
		ctx  = newTestContext(context.Background())
		resp tdaq.Frame
	)

	for _, tc := range []struct {
		name string
		f    func(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error
	}{
		{"/init", srv.OnInit},
		{"/config", srv.OnConfig},
		{"/start", srv.OnStart},
	} {
		err := tc.f(ctx, &resp, tdaq.Frame{})
		if err != nil {
			t.Fatalf("could not run %s: %+v", tc.name, err)
		}
	}

	err := srv.Run(ctx)
	if err != nil {
		t.Fatalf("could not run server: %+v", err)
	}

	err = srv.OnStop(ctx, &resp, strFrame(t, "sim"))
	if err != nil {
		t.Fatalf("could not run /stop: %+v", err)
	}

	fname := tdaq.NewDecoder(bytes.NewReader(resp.Body)).ReadStr()
	if got, want := filepath.Ext(fname), ".csv"; got != want {
		t.Fatalf("invalid session file %q", fname)
	}

	f, err := session.ReadFile(fname)
	if err != nil {
		t.Fatalf("could not read session file: %+v", err)
	}
	if got, want := len(f.Rows), n; got != want {
		t.Fatalf("invalid number of rows: got=%d, want=%d", got, want)
	}
	if got, want := f.Info.Tag, "sim"; got != want {
		t.Fatalf("invalid tag: got=%q, want=%q", got, want)
	}
	for i, row := range f.Rows {
		if got, want := row.PkgID, i%16; got != want {
			t.Fatalf("row %d: invalid pkg id: got=%d, want=%d", i, got, want)
		}
		if row.TransportLoss != 0 || row.InternalLoss != 0 {
			t.Fatalf("row %d: invalid loss: %+v", i, row)
		}
	}

	st := srv.Session().Stats()
	if st.Packets != n || st.Configs != 2 || st.Dropped != 0 {
		t.Fatalf("invalid stats: %+v", st)
	}

	err = srv.OnStop(ctx, &resp, tdaq.Frame{})
	if !errors.Is(err, acq.ErrNotRecording) {
		t.Fatalf("invalid /stop error: %+v", err)
	}
}

func TestServerLoss(t *testing.T) {
	const n = 100
	src := NewSimulator(packet.DefaultConfig(), 42)
	src.N = n
	src.Tick = 0
	src.Loss = 0.2

	var (
		srv  = newTestServer(t, src)
		ctx  = newTestContext(context.Background())
		resp tdaq.Frame
	)

	err := srv.OnStart(ctx, &resp, tdaq.Frame{})
	if err != nil {
		t.Fatalf("could not run /start: %+v", err)
	}

	err = srv.Run(ctx)
	if err != nil {
		t.Fatalf("could not run server: %+v", err)
	}

	err = srv.OnStop(ctx, &resp, tdaq.Frame{})
	if err != nil {
		t.Fatalf("could not run /stop: %+v", err)
	}
	fname := tdaq.NewDecoder(bytes.NewReader(resp.Body)).ReadStr()

	f, err := session.ReadFile(fname)
	if err != nil {
		t.Fatalf("could not read session file: %+v", err)
	}

	var nreal, gaps, loss int
	for _, row := range f.Rows {
		if row.IsGap() {
			gaps++
			continue
		}
		nreal++
		loss += row.TransportLoss
	}
	if loss == 0 {
		t.Fatalf("no transport loss recorded")
	}
	if gaps != loss {
		t.Fatalf("invalid number of gap rows: got=%d, want=%d", gaps, loss)
	}
	if got, want := int64(nreal), srv.Session().Stats().Samples; got != want {
		t.Fatalf("invalid number of samples: got=%d, want=%d", got, want)
	}
	if nreal >= n {
		t.Fatalf("invalid number of samples: got=%d, want<%d", nreal, n)
	}
}

func TestServerReset(t *testing.T) {
	var (
		srv  = newTestServer(t, NewSimulator(packet.DefaultConfig(), 1))
		ctx  = newTestContext(context.Background())
		resp tdaq.Frame
	)

	tmp := filepath.Join(srv.rec.Dir(), session.TempName(time.Now().Add(-time.Hour)))
	err := os.WriteFile(tmp, nil, 0644)
	if err != nil {
		t.Fatalf("could not create stale recording: %+v", err)
	}

	err = srv.OnInit(ctx, &resp, tdaq.Frame{})
	if err != nil {
		t.Fatalf("could not run /init: %+v", err)
	}
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Fatalf("stale recording was not removed: %+v", err)
	}

	err = srv.OnStart(ctx, &resp, tdaq.Frame{})
	if err != nil {
		t.Fatalf("could not run /start: %+v", err)
	}
	if !srv.Session().Recording() {
		t.Fatalf("session should be recording")
	}

	err = srv.OnReset(ctx, &resp, tdaq.Frame{})
	if err != nil {
		t.Fatalf("could not run /reset: %+v", err)
	}
	if srv.Session().Recording() {
		t.Fatalf("session should not be recording")
	}

	fnames, err := filepath.Glob(filepath.Join(srv.rec.Dir(), "*"))
	if err != nil {
		t.Fatalf("could not list sessions dir: %+v", err)
	}
	if len(fnames) != 0 {
		t.Fatalf("invalid sessions dir content: %q", fnames)
	}

	err = srv.OnQuit(ctx, &resp, tdaq.Frame{})
	if err != nil {
		t.Fatalf("could not run /quit: %+v", err)
	}
}

func TestServerConfigFile(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "cfg.hex")
	err := os.WriteFile(fname, []byte("e9 00 01 11 0f 80 00 00\n"), 0644)
	if err != nil {
		t.Fatalf("could not create config file: %+v", err)
	}

	var (
		srv  = newTestServer(t, NewSimulator(packet.DefaultConfig(), 1))
		ctx  = newTestContext(context.Background())
		resp tdaq.Frame
	)
	err = srv.OnConfig(ctx, &resp, strFrame(t, fname))
	if err != nil {
		t.Fatalf("could not run /config: %+v", err)
	}

	cfg := srv.Session().Config()
	if got, want := cfg.GainFactor(), float32(8); got != want {
		t.Fatalf("invalid gain: got=%v, want=%v", got, want)
	}

	err = srv.OnConfig(ctx, &resp, strFrame(t, fname+".missing"))
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestSamplesOutput(t *testing.T) {
	srv := newTestServer(t, NewSimulator(packet.DefaultConfig(), 1))
	srv.Push(acq.Sample{SeqID: 3})

	var dst tdaq.Frame
	err := srv.Samples(newTestContext(context.Background()), &dst)
	if err != nil {
		t.Fatalf("could not read sample: %+v", err)
	}
	var got map[string]float64
	err = json.Unmarshal(dst.Body, &got)
	if err != nil {
		t.Fatalf("could not decode sample: %+v", err)
	}
	if got["pkg"] != 3 {
		t.Fatalf("invalid sample: %v", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = srv.Samples(newTestContext(ctx), &dst)
	if err != nil || dst.Body != nil {
		t.Fatalf("invalid cancelled output: body=%v, err=%+v", dst.Body, err)
	}
}

func TestReplay(t *testing.T) {
	var (
		want [][]int32
		sim  = NewSimulator(packet.DefaultConfig(), 1)
	)
	sim.N = 20
	sim.Tick = 0
	err := sim.Run(context.Background(), func(raw []int32) {
		want = append(want, raw)
	})
	if err != nil {
		t.Fatalf("could not run simulator: %+v", err)
	}
	want = append(want, []int32{1, 2, 3}) // unrecognized packets are kept as-is

	fname := filepath.Join(t.TempDir(), "capture.raw")
	f, err := os.Create(fname)
	if err != nil {
		t.Fatalf("could not create capture: %+v", err)
	}
	enc := rawlog.NewEncoder(f)
	beg := time.Now()
	for i, raw := range want {
		err := enc.Encode(rawlog.Record{
			Time: beg.Add(time.Duration(i) * time.Microsecond),
			Data: raw,
		})
		if err != nil {
			t.Fatalf("could not encode record %d: %+v", i, err)
		}
	}
	err = f.Close()
	if err != nil {
		t.Fatalf("could not close capture: %+v", err)
	}

	var got [][]int32
	err = Replay{Name: fname, Realtime: true}.Run(context.Background(), func(raw []int32) {
		got = append(got, append([]int32(nil), raw...))
	})
	if err != nil {
		t.Fatalf("could not replay capture: %+v", err)
	}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid replayed packets:\ngot= %v\nwant=%v", got, want)
	}
}

type failWriter struct{}

func (failWriter) Write(p []byte) (int, error) { return 0, io.ErrShortWrite }

func TestTee(t *testing.T) {
	var (
		buf  = new(bytes.Buffer)
		sim  = NewSimulator(packet.DefaultConfig(), 2)
		tee  = NewTee(sim, buf)
		want [][]int32
	)
	sim.N = 10
	sim.Tick = 0

	err := tee.Run(context.Background(), func(raw []int32) {
		want = append(want, append([]int32(nil), raw...))
	})
	if err != nil {
		t.Fatalf("could not run tee: %+v", err)
	}
	if got, want := tee.Len(), 11; got != want {
		t.Fatalf("invalid number of captured packets: got=%d, want=%d", got, want)
	}

	var (
		dec = rawlog.NewDecoder(buf)
		got [][]int32
	)
	for {
		var rec rawlog.Record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("could not decode capture: %+v", err)
		}
		got = append(got, rec.Data)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid captured packets:\ngot= %v\nwant=%v", got, want)
	}

	if err := tee.WriteConfig(packet.DefaultConfig()); err != nil {
		t.Fatalf("could not forward config: %+v", err)
	}
}

func TestTeeError(t *testing.T) {
	sim := NewSimulator(packet.DefaultConfig(), 2)
	sim.N = 3
	sim.Tick = 0

	var (
		tee = NewTee(sim, failWriter{})
		n   = 0
	)
	err := tee.Run(context.Background(), func(raw []int32) { n++ })
	if err == nil {
		t.Fatalf("expected a capture error")
	}
	if !errors.Is(err, io.ErrShortWrite) {
		t.Fatalf("invalid error: %+v", err)
	}
	if got, want := n, 4; got != want {
		t.Fatalf("packets should still flow: got=%d, want=%d", got, want)
	}
	if got, want := tee.Len(), 0; got != want {
		t.Fatalf("invalid number of captured packets: got=%d, want=%d", got, want)
	}
}
