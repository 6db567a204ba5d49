// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package catalog indexes finalized recording sessions in a database.
package catalog // import "github.com/go-lpc/traum/catalog"

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-lpc/traum/session"
	_ "github.com/go-sql-driver/mysql"
)

const (
	host = "localhost"
)

var (
	usr = "username"
	pwd = "s3cr3t"

	drvName = "mysql"
)

// Entry is a catalogued session.
type Entry struct {
	SessionID    string
	File         string
	Username     string
	UserID       string
	Tag          string
	Rows         int64
	Duration     time.Duration
	SamplingRate float64 // Hz
	Bits         int
	Start        time.Time
	End          time.Time
}

// DB exposes convenience methods to store and retrieve sessions from the
// catalog database.
type DB struct {
	db   *sql.DB
	name string // name of the catalog database
}

// Open opens a connection to the catalog database dbname.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("catalog: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(db string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s", usr, pwd, host, db)
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("catalog: could not ping %q db: %w", dbname, err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// Insert stores the metadata of a finalized session file.
func (db *DB) Insert(ctx context.Context, fname string, info session.Info) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := db.db.ExecContext(
		ctx,
		`INSERT INTO sessions
			(session_id, fname, username, user_id, tag, nrows, duration_ms,
			 sampling_rate, bits, start_ts, end_ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		info.SessionID, filepath.Base(fname), info.Username, info.UserID,
		info.Tag, info.Rows, info.Duration,
		float64(info.SamplingRate), info.BitsPerChannel,
		info.StartStamp, info.EndStamp,
	)
	if err != nil {
		return fmt.Errorf("catalog: could not insert session %q: %w", info.SessionID, err)
	}
	return nil
}

const selectSessions = `SELECT
	session_id, fname, username, user_id, tag, nrows, duration_ms,
	sampling_rate, bits, start_ts, end_ts
FROM sessions ORDER BY start_ts DESC`

// Sessions returns the n most recent sessions.
func (db *DB) Sessions(ctx context.Context, n int) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := db.db.QueryContext(ctx, selectSessions+" LIMIT ?", n)
	if err != nil {
		return nil, fmt.Errorf("catalog: could not query sessions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e     Entry
			dur   int64
			start int64
			end   int64
		)
		err = rows.Scan(
			&e.SessionID, &e.File, &e.Username, &e.UserID, &e.Tag,
			&e.Rows, &dur, &e.SamplingRate, &e.Bits, &start, &end,
		)
		if err != nil {
			return nil, fmt.Errorf("catalog: could not get session values: %w", err)
		}
		e.Duration = time.Duration(dur) * time.Millisecond
		e.Start = time.UnixMilli(start).UTC()
		e.End = time.UnixMilli(end).UTC()
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: could not scan db for sessions: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("catalog: context error while retrieving sessions: %w", err)
	}

	return entries, nil
}

// LastSession returns the most recent session.
func (db *DB) LastSession(ctx context.Context) (Entry, error) {
	entries, err := db.Sessions(ctx, 1)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, fmt.Errorf("catalog: no session in %q db", db.name)
	}
	return entries[0], nil
}
