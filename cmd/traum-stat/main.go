// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// traum-stat displays the metadata and statistics of session files.
//
// Usage: traum-stat [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//	$> traum-stat ./sessions/20200706080912_rest.csv
//	=== ./sessions/20200706080912_rest.csv ===
//	user:      user (12345678)
//	session:   2b4d5ef9-8a4c-4d8b-9d43-5d4cd6e9d1a0
//	tag:       rest
//	shape:     1000x24
//	[...]
package main // import "github.com/go-lpc/traum/cmd/traum-stat"

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"

	"github.com/go-lpc/traum/packet"
	"github.com/go-lpc/traum/session"
	"go-hep.org/x/hep/hbook"
)

func main() {
	log.SetPrefix("traum-stat: ")
	log.SetFlags(0)

	chans := flag.Bool("ch", false, "display per-channel statistics")

	flag.Usage = func() {
		fmt.Printf(`traum-stat displays the metadata and statistics of session files.

Usage: traum-stat [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

Options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		log.Fatalf("missing path to input session file")
	}

	for _, fname := range flag.Args() {
		err := process(os.Stdout, fname, *chans)
		if err != nil {
			log.Fatalf("could not process file %q: %+v", fname, err)
		}
	}
}

type stats struct {
	rows     int
	gaps     int
	bt       int // transport loss
	internal int // internal loss

	loss  *hbook.H1D // distribution of the number of packets lost in a row
	rates *hbook.H1D // distribution of the measured transmission rate
	chans [packet.NumChannels]*hbook.H1D
}

func newStats(f *session.File) *stats {
	st := &stats{
		loss:  hbook.NewH1D(16, 0, 16),
		rates: hbook.NewH1D(100, 0, 500),
	}

	var lo, hi [packet.NumChannels]float64
	for i := range lo {
		lo[i] = math.Inf(+1)
		hi[i] = math.Inf(-1)
	}
	for _, row := range f.Rows {
		if row.IsGap() {
			continue
		}
		for i, v := range row.Values {
			lo[i] = math.Min(lo[i], float64(v))
			hi[i] = math.Max(hi[i], float64(v))
		}
	}
	for i := range st.chans {
		if lo[i] > hi[i] {
			lo[i], hi[i] = 0, 1
		}
		if lo[i] == hi[i] {
			hi[i] = lo[i] + 1
		}
		// extend the upper edge so the maximum falls inside the last bin.
		st.chans[i] = hbook.NewH1D(100, lo[i], math.Nextafter(hi[i], math.Inf(+1)))
	}

	for _, row := range f.Rows {
		st.rows++
		if row.IsGap() {
			st.gaps++
			continue
		}
		st.bt += max0(row.TransportLoss)
		st.internal += max0(row.InternalLoss)
		if n := max0(row.TransportLoss) + max0(row.InternalLoss); n > 0 {
			st.loss.Fill(float64(n), 1)
		}
		st.rates.Fill(float64(row.Rate), 1)
		for i, v := range row.Values {
			st.chans[i].Fill(float64(v), 1)
		}
	}
	return st
}

func max0(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func process(w io.Writer, fname string, chans bool) error {
	wbuf := bufio.NewWriter(w)
	defer wbuf.Flush()

	f, err := session.ReadFile(fname)
	if err != nil {
		return fmt.Errorf("could not read session: %w", err)
	}

	var (
		info = f.Info
		st   = newStats(f)
	)

	fmt.Fprintf(wbuf, "=== %s ===\n", fname)
	fmt.Fprintf(wbuf, "user:      %s (%s)\n", info.Username, info.UserID)
	fmt.Fprintf(wbuf, "session:   %s\n", info.SessionID)
	fmt.Fprintf(wbuf, "tag:       %s\n", info.Tag)
	fmt.Fprintf(wbuf, "date:      %s\n", info.Date)
	fmt.Fprintf(wbuf, "shape:     %dx%d\n", info.Rows, info.Columns)
	fmt.Fprintf(wbuf, "duration:  %d ms (%s - %s)\n", info.Duration, info.Start, info.End)
	fmt.Fprintf(wbuf, "sampling:  %v Hz, %d bits\n", info.SamplingRate, info.BitsPerChannel)
	fmt.Fprintf(wbuf, "unit:      %s\n", info.Unit)

	if int64(st.rows) != info.Rows {
		fmt.Fprintf(wbuf, "WARNING: trailer announces %d rows, file holds %d\n", info.Rows, st.rows)
	}

	fmt.Fprintf(wbuf, "samples:   % 10d\n", st.rows-st.gaps)
	fmt.Fprintf(wbuf, "gaps:      % 10d (%.2f%%)\n", st.gaps, percent(st.gaps, st.rows))
	fmt.Fprintf(wbuf, "bt-loss:   % 10d\n", st.bt)
	fmt.Fprintf(wbuf, "int-loss:  % 10d\n", st.internal)
	fmt.Fprintf(wbuf, "bursts:    % 10d (mean=%.2f)\n", st.loss.Entries(), mean(st.loss))
	fmt.Fprintf(wbuf, "rate:      %.2f Hz (rms=%.2f)\n", mean(st.rates), stddev(st.rates))

	if !chans {
		return nil
	}
	for i, h := range st.chans {
		fmt.Fprintf(wbuf, "ch%-2d mean=%+12.3f%s rms=%12.3f%s\n",
			i+1, mean(h), info.Unit, stddev(h), info.Unit,
		)
	}
	return nil
}

func percent(n, tot int) float64 {
	if tot == 0 {
		return 0
	}
	return 100 * float64(n) / float64(tot)
}

func mean(h *hbook.H1D) float64 {
	if h.Entries() == 0 {
		return 0
	}
	return h.XMean()
}

func stddev(h *hbook.H1D) float64 {
	if h.Entries() < 2 {
		return 0
	}
	return h.XStdDev()
}
