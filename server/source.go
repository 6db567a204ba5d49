// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"time"

	"github.com/go-lpc/traum/internal/mmap"
	"github.com/go-lpc/traum/internal/rawlog"
	"github.com/go-lpc/traum/packet"
)

// Replay is a source reading packets from a raw capture file.
type Replay struct {
	Name     string // name of the capture file
	Realtime bool   // whether to replay packets at their recorded pace
}

// Run hands the packets of the capture file to f.
func (src Replay) Run(ctx context.Context, f func(raw []int32)) error {
	h, err := mmap.Open(src.Name)
	if err != nil {
		return fmt.Errorf("could not open capture: %w", err)
	}
	defer h.Close()

	var (
		dec  = rawlog.NewDecoder(h.Reader())
		rec  rawlog.Record
		prev time.Time
	)
	for {
		err := dec.Decode(&rec)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("could not decode capture %q: %w", src.Name, err)
		}

		if src.Realtime && !prev.IsZero() {
			dt := rec.Time.Sub(prev)
			if dt > 0 {
				tmr := time.NewTimer(dt)
				select {
				case <-ctx.Done():
					tmr.Stop()
					return nil
				case <-tmr.C:
				}
			}
		}
		prev = rec.Time

		select {
		case <-ctx.Done():
			return nil
		default:
		}
		f(rec.Data)
	}
}

// Simulator is a source generating synthetic EEG packets.
type Simulator struct {
	Config packet.Config
	Seed   int64
	Loss   float64 // probability to drop a packet on the transport
	N      int     // number of data packets to generate; 0 means unbounded
	Tick   time.Duration
}

// NewSimulator returns a simulator generating packets at the sampling
// rate of cfg.
func NewSimulator(cfg packet.Config, seed int64) *Simulator {
	return &Simulator{
		Config: cfg,
		Seed:   seed,
		Tick:   time.Duration(float64(time.Millisecond) * float64(cfg.Interval())),
	}
}

// Run hands the configuration packet then the generated data packets to f.
func (src *Simulator) Run(ctx context.Context, f func(raw []int32)) error {
	var (
		rnd  = rand.New(rand.NewSource(src.Seed))
		amp  = math.Ldexp(1, src.Config.BitsPerChannel()-4)
		tck  *time.Ticker
		tick <-chan time.Time
	)
	if src.Tick > 0 {
		tck = time.NewTicker(src.Tick)
		defer tck.Stop()
		tick = tck.C
	}

	f(packet.Encode(src.Config.Packet()))

	for i := 0; src.N <= 0 || i < src.N; i++ {
		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		} else {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
		}

		if src.Loss > 0 && rnd.Float64() < src.Loss {
			continue
		}

		p := packet.ChannelData{
			HasHeader: true,
			SeqID:     i % 16,
		}
		t := float64(i) * float64(src.Config.Interval()) / 1000
		for ch := range p.Raw {
			// alpha waves, slightly shifted per channel, plus noise.
			v := amp * math.Sin(2*math.Pi*10*t+float64(ch)*math.Pi/12)
			v += amp / 10 * rnd.NormFloat64()
			p.Raw[ch] = int32(v)
		}
		f(packet.Encode(p))
	}
	return nil
}
