// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// traum-sql inspects and feeds the catalog of recorded sessions.
//
// Usage: traum-sql [OPTIONS]
//
// Example:
//
//	$> traum-sql -n 5
//	$> traum-sql -index /data/sessions
//	$> traum-sql -watch /data/sessions
package main // import "github.com/go-lpc/traum/cmd/traum-sql"

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"text/tabwriter"

	tlog "github.com/go-daq/tdaq/log"
	"github.com/go-lpc/traum/catalog"
)

func main() {
	log.SetPrefix("traum-sql: ")
	log.SetFlags(0)

	var (
		dbname = flag.String("db", "traum", "name of the catalog database")
		n      = flag.Int("n", 10, "number of sessions to display")
		index  = flag.String("index", "", "directory of session files to index")
		watch  = flag.String("watch", "", "directory of session files to watch and index")
	)

	flag.Usage = func() {
		fmt.Printf(`traum-sql inspects and feeds the catalog of recorded sessions.

Usage: traum-sql [OPTIONS]

Example:

 $> traum-sql -n 5
 $> traum-sql -index /data/sessions
 $> traum-sql -watch /data/sessions

Options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	db, err := catalog.Open(*dbname)
	if err != nil {
		log.Fatalf("could not open catalog db: %+v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	msg := tlog.NewMsgStream("traum-sql", tlog.LvlInfo, os.Stdout)

	switch {
	case *index != "":
		n, err := catalog.NewIndexer(db, *index, msg).Scan(ctx)
		if err != nil {
			log.Fatalf("could not index %q (indexed=%d): %+v", *index, n, err)
		}
		log.Printf("indexed %d session(s)", n)

	case *watch != "":
		idx := catalog.NewIndexer(db, *watch, msg)
		n, err := idx.Scan(ctx)
		if err != nil {
			log.Fatalf("could not index %q (indexed=%d): %+v", *watch, n, err)
		}
		err = idx.Run(ctx)
		if err != nil {
			log.Fatalf("could not watch %q: %+v", *watch, err)
		}

	default:
		entries, err := db.Sessions(ctx, *n)
		if err != nil {
			log.Fatalf("could not retrieve sessions: %+v", err)
		}
		err = display(os.Stdout, entries)
		if err != nil {
			log.Fatalf("could not display sessions: %+v", err)
		}
	}
}

func display(w io.Writer, entries []catalog.Entry) error {
	o := tabwriter.NewWriter(w, 0, 8, 1, ' ', 0)
	fmt.Fprintf(o, "start\tuser\ttag\trows\tduration\trate\tbits\tfile\n")
	for _, e := range entries {
		fmt.Fprintf(o, "%s\t%s (%s)\t%s\t%d\t%v\t%.2f\t%d\t%s\n",
			e.Start.Format("2006-01-02 15:04:05"),
			e.Username, e.UserID, e.Tag, e.Rows, e.Duration,
			e.SamplingRate, e.Bits, e.File,
		)
	}
	err := o.Flush()
	if err != nil {
		return fmt.Errorf("could not flush sessions table: %w", err)
	}
	return nil
}
