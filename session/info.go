// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package session

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-lpc/traum/packet"
)

var trailerLabels = []string{
	"Username", "User ID", "Session ID", "Session Tag", "Date",
	"Shape (rows x columns)", "Duration (ms)", "Starting Time", "Ending Time",
	"Sampling Rate", "Bits per Channel", "measurement unit",
	"Starting Timestamp", "Ending Timestamp",
}

// Info describes a sealed session.
type Info struct {
	Username       string
	UserID         string
	SessionID      string
	Tag            string
	Date           string // yyyyddMMHHmmss
	Rows           int64
	Columns        int
	Duration       int64 // ms
	Start          string
	End            string
	SamplingRate   float32 // Hz
	BitsPerChannel int
	Unit           string
	StartStamp     int64 // ms since epoch
	EndStamp       int64 // ms since epoch
}

func (info Info) record() []string {
	return []string{
		info.Username,
		info.UserID,
		info.SessionID,
		info.Tag,
		info.Date,
		fmt.Sprintf("%dx%d", info.Rows, info.Columns),
		strconv.FormatInt(info.Duration, 10),
		info.Start,
		info.End,
		formatF32(info.SamplingRate),
		strconv.Itoa(info.BitsPerChannel),
		info.Unit,
		strconv.FormatInt(info.StartStamp, 10),
		strconv.FormatInt(info.EndStamp, 10),
	}
}

func (info *Info) decode(rec []string) error {
	if len(rec) != len(trailerLabels) {
		return fmt.Errorf(
			"session: invalid trailer (got=%d fields, want=%d)",
			len(rec), len(trailerLabels),
		)
	}

	var err error
	info.Username = rec[0]
	info.UserID = rec[1]
	info.SessionID = rec[2]
	info.Tag = rec[3]
	info.Date = rec[4]

	shape := strings.SplitN(rec[5], "x", 2)
	if len(shape) != 2 {
		return fmt.Errorf("session: invalid shape %q", rec[5])
	}
	info.Rows, err = strconv.ParseInt(shape[0], 10, 64)
	if err != nil {
		return fmt.Errorf("session: invalid number of rows %q: %w", shape[0], err)
	}
	info.Columns, err = strconv.Atoi(shape[1])
	if err != nil {
		return fmt.Errorf("session: invalid number of columns %q: %w", shape[1], err)
	}
	info.Duration, err = strconv.ParseInt(rec[6], 10, 64)
	if err != nil {
		return fmt.Errorf("session: invalid duration %q: %w", rec[6], err)
	}
	info.Start = rec[7]
	info.End = rec[8]
	rate, err := strconv.ParseFloat(rec[9], 32)
	if err != nil {
		return fmt.Errorf("session: invalid sampling rate %q: %w", rec[9], err)
	}
	info.SamplingRate = float32(rate)
	info.BitsPerChannel, err = strconv.Atoi(rec[10])
	if err != nil {
		return fmt.Errorf("session: invalid bits per channel %q: %w", rec[10], err)
	}
	info.Unit = rec[11]
	info.StartStamp, err = strconv.ParseInt(rec[12], 10, 64)
	if err != nil {
		return fmt.Errorf("session: invalid start timestamp %q: %w", rec[12], err)
	}
	info.EndStamp, err = strconv.ParseInt(rec[13], 10, 64)
	if err != nil {
		return fmt.Errorf("session: invalid end timestamp %q: %w", rec[13], err)
	}
	return nil
}

// Row is one data row of a session file.
type Row struct {
	Time          int64   // ms since the first row
	SamplingTime  float32 // ms
	Values        [packet.NumChannels]float32
	PkgID         int
	TransportLoss int
	InternalLoss  int
	Rate          float32 // Hz
}

// IsGap returns whether the row stands for a lost packet.
func (row Row) IsGap() bool {
	v := row.Values[0]
	return v != v
}

func (row *Row) decode(rec []string) error {
	if len(rec) != nCols {
		return fmt.Errorf("session: invalid row (got=%d fields, want=%d)", len(rec), nCols)
	}

	var err error
	row.Time, err = strconv.ParseInt(rec[0], 10, 64)
	if err != nil {
		return fmt.Errorf("session: invalid time %q: %w", rec[0], err)
	}
	row.SamplingTime, err = parseF32(rec[1])
	if err != nil {
		return fmt.Errorf("session: invalid sampling time %q: %w", rec[1], err)
	}
	for i := range row.Values {
		row.Values[i], err = parseF32(rec[2+i])
		if err != nil {
			return fmt.Errorf("session: invalid ch%d value %q: %w", i+1, rec[2+i], err)
		}
	}
	i := 2 + packet.NumChannels
	for j, dst := range []*int{&row.PkgID, &row.TransportLoss, &row.InternalLoss} {
		*dst, err = strconv.Atoi(rec[i+j])
		if err != nil {
			return fmt.Errorf("session: invalid %s value %q: %w", Header()[i+j], rec[i+j], err)
		}
	}
	row.Rate, err = parseF32(rec[i+3])
	if err != nil {
		return fmt.Errorf("session: invalid transmission rate %q: %w", rec[i+3], err)
	}
	return nil
}

// File is the decoded content of a session file.
type File struct {
	Info Info
	Rows []Row
}

// ReadInfo decodes the trailer of a session file, skipping over rows.
func ReadInfo(r io.Reader) (Info, error) {
	var info Info
	err := read(r, &info, func(Row) {})
	return info, err
}

// Read decodes a whole session file.
func Read(r io.Reader) (*File, error) {
	var f File
	err := read(r, &f.Info, func(row Row) {
		f.Rows = append(f.Rows, row)
	})
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ReadFile decodes the named session file.
func ReadFile(fname string) (*File, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("session: could not open %q: %w", fname, err)
	}
	defer f.Close()

	return Read(f)
}

func read(r io.Reader, info *Info, f func(Row)) error {
	rr := csv.NewReader(r)
	rr.FieldsPerRecord = -1
	rr.ReuseRecord = true

	hdr, err := rr.Read()
	if err != nil {
		return fmt.Errorf("session: could not read header: %w", err)
	}
	if len(hdr) != nCols || hdr[0] != "time" {
		return fmt.Errorf("session: invalid header %q", strings.Join(hdr, ","))
	}

	for i := 0; ; i++ {
		rec, err := rr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("session: missing trailer: %w", io.ErrUnexpectedEOF)
			}
			return fmt.Errorf("session: could not read row %d: %w", i, err)
		}
		if rec[0] == trailerLabels[0] {
			break
		}
		var row Row
		err = row.decode(rec)
		if err != nil {
			return fmt.Errorf("session: could not decode row %d: %w", i, err)
		}
		f(row)
	}

	rec, err := rr.Read()
	if err != nil {
		return fmt.Errorf("session: could not read trailer: %w", err)
	}
	return info.decode(rec)
}

func parseF32(s string) (float32, error) {
	v, err := strconv.ParseFloat(s, 32)
	return float32(v), err
}
