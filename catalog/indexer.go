// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/traum/session"
)

// Indexer inserts the session files of a directory into the catalog.
type Indexer struct {
	db  *DB
	dir string
	msg log.MsgStream
}

// NewIndexer creates an indexer for the session files under dir.
func NewIndexer(db *DB, dir string, msg log.MsgStream) *Indexer {
	if msg == nil {
		msg = log.NewMsgStream("catalog", log.LvlInfo, os.Stdout)
	}
	return &Indexer{db: db, dir: dir, msg: msg}
}

// Scan indexes all the session files already present and returns the
// number of indexed files.
func (idx *Indexer) Scan(ctx context.Context) (int, error) {
	fnames, err := filepath.Glob(filepath.Join(idx.dir, "*.csv"))
	if err != nil {
		return 0, fmt.Errorf("catalog: could not list session files: %w", err)
	}

	n := 0
	for _, fname := range fnames {
		err := idx.index(ctx, fname)
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Run watches the session directory and indexes finalized session files
// as they appear, until the context is done.
func (idx *Indexer) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("catalog: could not create file watcher: %w", err)
	}
	defer watcher.Close()

	err = watcher.Add(idx.dir)
	if err != nil {
		return fmt.Errorf("catalog: could not watch %q: %w", idx.dir, err)
	}
	idx.msg.Infof("watching %q", idx.dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// sessions are renamed into place once sealed.
			if !evt.Has(fsnotify.Create) || !isSession(evt.Name) {
				continue
			}
			err := idx.index(ctx, evt.Name)
			if err != nil {
				idx.msg.Errorf("%+v", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			idx.msg.Warnf("watcher error: %+v", err)
		}
	}
}

func (idx *Indexer) index(ctx context.Context, fname string) error {
	f, err := os.Open(fname)
	if err != nil {
		return fmt.Errorf("catalog: could not open %q: %w", fname, err)
	}
	defer f.Close()

	info, err := session.ReadInfo(f)
	if err != nil {
		return fmt.Errorf("catalog: could not read session %q: %w", fname, err)
	}

	err = idx.db.Insert(ctx, fname, info)
	if err != nil {
		return err
	}
	idx.msg.Infof("indexed %q (session=%s)", filepath.Base(fname), info.SessionID)
	return nil
}

func isSession(fname string) bool {
	return strings.HasSuffix(fname, ".csv")
}
