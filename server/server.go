// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package server exposes a Traumschreiber decoding session as a TDAQ
// run-control node.
package server // import "github.com/go-lpc/traum/server"

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/go-daq/tdaq"
	"github.com/go-lpc/traum/acq"
	"github.com/go-lpc/traum/packet"
	"github.com/go-lpc/traum/session"
	"golang.org/x/sync/errgroup"
)

// Source produces raw device packets.
// Run hands every packet to f until the source is exhausted or the
// context is done.
type Source interface {
	Run(ctx context.Context, f func(raw []int32)) error
}

// Configurer is implemented by sources that can reconfigure the device.
type Configurer interface {
	WriteConfig(cfg packet.Config) error
}

// Server is a TDAQ node decoding the packets of a source.
type Server struct {
	name string
	src  Source
	rec  *session.Recorder
	sess *acq.Session

	mu    sync.Mutex
	cfg   packet.Config
	fname string // last stored session file

	samples chan acq.Sample
}

// New creates a new server decoding the packets of src and recording
// sessions with rec.
func New(name string, src Source, rec *session.Recorder, opts ...acq.Option) *Server {
	srv := &Server{
		name:    name,
		src:     src,
		rec:     rec,
		cfg:     packet.DefaultConfig(),
		samples: make(chan acq.Sample, 1024),
	}
	opts = append([]acq.Option{
		acq.WithSink(srv),
		acq.WithRecorder(rec.Open),
	}, opts...)
	srv.sess = acq.New(opts...)
	return srv
}

// Session returns the decoding session of the server.
func (srv *Server) Session() *acq.Session { return srv.sess }

// Push implements acq.Sink.
// Samples are dropped when no client drains the /samples output.
func (srv *Server) Push(smp acq.Sample) {
	select {
	case srv.samples <- smp:
	default:
	}
}

// OnConfig loads the device configuration from the file named in the
// request, or the default configuration when none is given.
func (srv *Server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")

	fname := ""
	if len(req.Body) != 0 {
		dec := tdaq.NewDecoder(bytes.NewReader(req.Body))
		fname = dec.ReadStr()
		if err := dec.Err(); err != nil {
			return fmt.Errorf("could not decode /config request: %w", err)
		}
	}

	cfg := packet.DefaultConfig()
	if fname != "" {
		var err error
		cfg, err = ReadConfig(fname)
		if err != nil {
			ctx.Msg.Errorf("could not read config: %+v", err)
			return fmt.Errorf("could not read config: %w", err)
		}
	}

	if dev, ok := srv.src.(Configurer); ok {
		err := dev.WriteConfig(cfg)
		if err != nil {
			ctx.Msg.Errorf("could not configure device: %+v", err)
			return fmt.Errorf("could not configure device: %w", err)
		}
	}

	srv.mu.Lock()
	srv.cfg = cfg
	srv.mu.Unlock()

	err := srv.sess.Handle(acq.DataAvailable{Packet: cfg.Packet()})
	if err != nil {
		return fmt.Errorf("could not apply config: %w", err)
	}
	ctx.Msg.Infof("config: gain=%v bits=%d rate=%vHz",
		cfg.GainFactor(), cfg.BitsPerChannel(), cfg.SamplingRate(),
	)
	return nil
}

// OnInit removes the leftovers of recordings that were never finalized.
func (srv *Server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	n, err := session.Sweep(srv.rec.Dir())
	if err != nil {
		ctx.Msg.Errorf("could not sweep sessions dir: %+v", err)
		return fmt.Errorf("could not sweep sessions dir: %w", err)
	}
	if n > 0 {
		ctx.Msg.Warnf("removed %d unfinished recording(s)", n)
	}
	srv.sess.Reset()
	return nil
}

// OnReset drops the current recording, if any, and forgets the loss
// accounting baseline.
func (srv *Server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	if srv.sess.Recording() {
		err := srv.sess.DiscardRecording()
		if err != nil {
			ctx.Msg.Errorf("could not discard recording: %+v", err)
			return fmt.Errorf("could not discard recording: %w", err)
		}
	}
	srv.sess.Reset()
	return nil
}

// OnStart starts a new recording.
func (srv *Server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	err := srv.sess.StartRecording()
	if err != nil {
		ctx.Msg.Errorf("could not start recording: %+v", err)
		return fmt.Errorf("could not start recording: %w", err)
	}
	return nil
}

// OnStop seals the current recording under the tag held by the request
// and replies with the name of the stored session file.
func (srv *Server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /stop command...")

	tag := ""
	if len(req.Body) != 0 {
		dec := tdaq.NewDecoder(bytes.NewReader(req.Body))
		tag = dec.ReadStr()
		if err := dec.Err(); err != nil {
			return fmt.Errorf("could not decode /stop request: %w", err)
		}
	}

	fname, err := srv.sess.StopRecording(ctx.Ctx, tag)
	if err != nil {
		ctx.Msg.Errorf("could not stop recording: %+v", err)
		return fmt.Errorf("could not stop recording: %w", err)
	}

	srv.mu.Lock()
	srv.fname = fname
	srv.mu.Unlock()

	buf := new(bytes.Buffer)
	enc := tdaq.NewEncoder(buf)
	enc.WriteStr(fname)
	if err := enc.Err(); err != nil {
		return fmt.Errorf("could not encode /stop reply: %w", err)
	}
	resp.Body = buf.Bytes()

	st := srv.sess.Stats()
	ctx.Msg.Infof("stored %q (packets=%d, samples=%d, dropped=%d)",
		fname, st.Packets, st.Samples, st.Dropped,
	)
	return nil
}

// OnQuit discards the current recording, if any.
func (srv *Server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	if srv.sess.Recording() {
		ctx.Msg.Warnf("discarding unfinished recording")
		err := srv.sess.DiscardRecording()
		if err != nil {
			return fmt.Errorf("could not discard recording: %w", err)
		}
	}
	return nil
}

// Samples is the /samples output handler.
// Each frame holds one sample, encoded as JSON.
func (srv *Server) Samples(ctx tdaq.Context, dst *tdaq.Frame) error {
	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case smp := <-srv.samples:
		raw, err := MarshalSample(smp)
		if err != nil {
			return fmt.Errorf("could not encode sample: %w", err)
		}
		dst.Body = raw
	}
	return nil
}

// Run decodes the packets of the source until it is exhausted or the
// run is stopped.
func (srv *Server) Run(ctx tdaq.Context) error {
	var (
		evts     = make(chan acq.Event, 1024)
		grp, gtx = errgroup.WithContext(ctx.Ctx)
	)

	send := func(evt acq.Event) {
		select {
		case evts <- evt:
		case <-gtx.Done():
		}
	}

	grp.Go(func() error {
		return srv.sess.Run(gtx, evts)
	})
	grp.Go(func() error {
		defer close(evts)
		send(acq.Connected{Addr: srv.name})
		send(acq.ServicesDiscovered{})
		err := srv.src.Run(gtx, func(raw []int32) {
			evt, err := acq.NewData(raw)
			if err != nil {
				srv.sess.Feed(raw) // logs and accounts for the dropped packet.
				return
			}
			send(evt)
		})
		send(acq.Disconnected{Err: err})
		if err != nil {
			return fmt.Errorf("could not run source: %w", err)
		}
		return nil
	})

	err := grp.Wait()
	if err != nil {
		ctx.Msg.Errorf("could not run: %+v", err)
		return err
	}
	return nil
}

// MarshalSample encodes a sample as a JSON object with the sequence id
// under "pkg", the sampling time under "time" and the channel values
// under "1" to "24".
func MarshalSample(smp acq.Sample) ([]byte, error) {
	obj := make(map[string]interface{}, packet.NumChannels+2)
	obj["pkg"] = smp.SeqID
	obj["time"] = smp.SamplingTime
	for i, v := range smp.Values {
		obj[strconv.Itoa(i+1)] = v
	}
	return json.Marshal(obj)
}

// ReadConfig reads a device configuration stored as 8 hex-encoded bytes.
func ReadConfig(fname string) (packet.Config, error) {
	raw, err := os.ReadFile(fname)
	if err != nil {
		return packet.Config{}, fmt.Errorf("could not read config file: %w", err)
	}
	return ParseConfig(string(raw))
}

// ParseConfig decodes a device configuration from its hex representation.
// Whitespace is ignored.
func ParseConfig(s string) (packet.Config, error) {
	s = strings.Join(strings.Fields(s), "")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return packet.Config{}, fmt.Errorf("could not decode config %q: %w", s, err)
	}

	var cfg packet.Config
	err = cfg.UnmarshalBinary(raw)
	if err != nil {
		return cfg, err
	}
	err = cfg.Validate()
	if err != nil {
		return cfg, err
	}
	return cfg, nil
}
