// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// traum-dump decodes and displays raw Traumschreiber capture files.
//
// Usage: traum-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//	$> traum-dump ./testdata/capture.raw
//	=== record 0 (2020-06-07T08:09:10.000Z) ===
//	config: gain=1 bits=16 rate=250Hz battery=0
//	=== record 1 (2020-06-07T08:09:10.004Z) ===
//	data: seq=0 loss=0 [12 -3 4 ...]
//	=== record 2 (2020-06-07T08:09:10.008Z) ===
//	encoding: ch=0 shift=2
//	[...]
package main // import "github.com/go-lpc/traum/cmd/traum-dump"

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-lpc/traum/internal/rawlog"
	"github.com/go-lpc/traum/packet"
)

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func main() {
	log.SetPrefix("traum-dump: ")
	log.SetFlags(0)

	summary := flag.Bool("s", false, "only display a summary of each file")

	flag.Usage = func() {
		fmt.Printf(`traum-dump decodes and displays raw Traumschreiber capture files.

Usage: traum-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

Example:

 $> traum-dump ./testdata/capture.raw
 === record 0 (2020-06-07T08:09:10.000Z) ===
 config: gain=1 bits=16 rate=250Hz battery=0
 === record 1 (2020-06-07T08:09:10.004Z) ===
 data: seq=0 loss=0 [12 -3 4 ...]
 [...]

Options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		log.Fatalf("missing path to input capture file")
	}

	for _, fname := range flag.Args() {
		err := process(os.Stdout, fname, *summary)
		if err != nil {
			log.Fatalf("could not dump file %q: %+v", fname, err)
		}
	}
}

func process(w io.Writer, fname string, summary bool) error {
	wbuf := bufio.NewWriter(w)
	defer wbuf.Flush()

	f, err := os.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open %q: %w", fname, err)
	}
	defer f.Close()

	var (
		dec   = rawlog.NewDecoder(bufio.NewReader(f))
		rec   rawlog.Record
		kinds = make(map[packet.Kind]int)
		n     = 0
	)
loop:
	for ; ; n++ {
		err := dec.Decode(&rec)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break loop
			}
			return fmt.Errorf("could not decode record %d: %w", n, err)
		}

		p, err := packet.Decode(rec.Data)
		if err != nil {
			kinds[packet.KindUnknown]++
		} else {
			kinds[p.Kind()]++
		}
		if summary {
			continue
		}

		fmt.Fprintf(wbuf, "=== record %d (%s) ===\n", n, rec.Time.Format(timeLayout))
		switch p := p.(type) {
		case packet.Configuration:
			cfg := p.Config()
			fmt.Fprintf(wbuf, "config: gain=%v bits=%d rate=%vHz battery=%d\n",
				cfg.GainFactor(), cfg.BitsPerChannel(), cfg.SamplingRate(), cfg.Battery,
			)
		case packet.EncodingUpdate:
			fmt.Fprintf(wbuf, "encoding: ch=%d shift=%d\n", p.Channel, p.Shift)
		case packet.ChannelData:
			if p.HasHeader {
				fmt.Fprintf(wbuf, "data: seq=%d loss=%d %v\n", p.SeqID, p.InternalLoss, p.Raw)
			} else {
				fmt.Fprintf(wbuf, "data: %v\n", p.Raw)
			}
		default:
			fmt.Fprintf(wbuf, "unrecognized (n=%d): %v\n", len(rec.Data), rec.Data)
		}
	}

	fmt.Fprintf(wbuf, "=== %s ===\n", fname)
	fmt.Fprintf(wbuf, "records:      % 10d\n", n)
	fmt.Fprintf(wbuf, "config:       % 10d\n", kinds[packet.KindConfig])
	fmt.Fprintf(wbuf, "encoding:     % 10d\n", kinds[packet.KindEncoding])
	fmt.Fprintf(wbuf, "data:         % 10d\n", kinds[packet.KindData])
	fmt.Fprintf(wbuf, "unrecognized: % 10d\n", kinds[packet.KindUnknown])

	return nil
}
