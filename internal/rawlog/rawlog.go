// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rawlog reads and writes streams of raw device notifications.
//
// Each record is laid out as:
//
//	0xb0 | time (u64, ns since epoch) | n (u8) | n x i32 | 0xa0 | crc16 (u16)
//
// All integers are big-endian. The CRC-16 covers every preceding byte
// of the record.
package rawlog // import "github.com/go-lpc/traum/internal/rawlog"

import (
	"encoding/binary"
	"io"
	"math"
	"time"

	"github.com/go-lpc/traum/internal/crc16"
	"golang.org/x/xerrors"
)

const (
	recHeader  = 0xb0
	recTrailer = 0xa0

	// MaxWords is the maximum number of words in a record.
	MaxWords = math.MaxUint8
)

// Record is a raw notification, with its arrival time.
type Record struct {
	Time time.Time
	Data []int32
}

// Encoder writes records to an output stream.
type Encoder struct {
	w   io.Writer
	buf []byte
	err error
	crc crc16.Hash16
}

// NewEncoder returns a new Encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{
		w:   w,
		buf: make([]byte, 8),
		crc: crc16.New(nil),
	}
}

// Encode writes a record to the stream.
func (enc *Encoder) Encode(rec Record) error {
	if len(rec.Data) > MaxWords {
		return xerrors.Errorf(
			"rawlog: record too large (words=%d, max=%d)",
			len(rec.Data), MaxWords,
		)
	}
	if enc.err != nil {
		return enc.err
	}

	enc.crc.Reset()
	enc.writeU8(recHeader)
	enc.writeU64(uint64(rec.Time.UnixNano()))
	enc.writeU8(uint8(len(rec.Data)))
	for _, v := range rec.Data {
		enc.writeU32(uint32(v))
	}
	enc.writeU8(recTrailer)
	enc.writeU16(enc.crc.Sum16())

	if enc.err != nil {
		return xerrors.Errorf("rawlog: could not write record: %w", enc.err)
	}
	return nil
}

func (enc *Encoder) write(p []byte) {
	if enc.err != nil {
		return
	}
	_, enc.err = enc.w.Write(p)
	_, _ = enc.crc.Write(p) // can not fail.
}

func (enc *Encoder) writeU8(v uint8) {
	enc.buf[0] = v
	enc.write(enc.buf[:1])
}

func (enc *Encoder) writeU16(v uint16) {
	binary.BigEndian.PutUint16(enc.buf[:2], v)
	enc.write(enc.buf[:2])
}

func (enc *Encoder) writeU32(v uint32) {
	binary.BigEndian.PutUint32(enc.buf[:4], v)
	enc.write(enc.buf[:4])
}

func (enc *Encoder) writeU64(v uint64) {
	binary.BigEndian.PutUint64(enc.buf[:8], v)
	enc.write(enc.buf[:8])
}

// Decoder reads and validates records from an input stream.
type Decoder struct {
	r   io.Reader
	buf []byte
	err error
	crc crc16.Hash16
}

// NewDecoder returns a new Decoder that reads from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:   r,
		buf: make([]byte, 8),
		crc: crc16.New(nil),
	}
}

// Decode reads the next record from the stream.
// Decode returns io.EOF when the stream ends on a record boundary.
func (dec *Decoder) Decode(rec *Record) error {
	dec.crc.Reset()

	v := dec.readU8()
	if dec.err != nil {
		if xerrors.Is(dec.err, io.EOF) {
			return io.EOF
		}
		return xerrors.Errorf("rawlog: could not read record header: %w", dec.err)
	}
	if v != recHeader {
		return xerrors.Errorf("rawlog: invalid record header marker (got=0x%x)", v)
	}

	var (
		ns = dec.readU64()
		n  = int(dec.readU8())
	)
	if rec.Data == nil || cap(rec.Data) < n {
		rec.Data = make([]int32, n)
	}
	rec.Data = rec.Data[:n]
	for i := range rec.Data {
		rec.Data[i] = int32(dec.readU32())
	}
	v = dec.readU8()
	if dec.err != nil {
		if xerrors.Is(dec.err, io.EOF) {
			dec.err = io.ErrUnexpectedEOF
		}
		return xerrors.Errorf("rawlog: could not read record: %w", dec.err)
	}
	if v != recTrailer {
		return xerrors.Errorf("rawlog: invalid record trailer marker (got=0x%x)", v)
	}

	var (
		comp = dec.crc.Sum16()
		recv = dec.readU16()
	)
	if dec.err != nil {
		if xerrors.Is(dec.err, io.EOF) {
			dec.err = io.ErrUnexpectedEOF
		}
		return xerrors.Errorf("rawlog: could not read CRC-16: %w", dec.err)
	}
	if comp != recv {
		return xerrors.Errorf(
			"rawlog: inconsistent CRC: recv=0x%04x comp=0x%04x",
			recv, comp,
		)
	}

	rec.Time = time.Unix(0, int64(ns)).UTC()
	return nil
}

func (dec *Decoder) load(n int) {
	if dec.err != nil {
		return
	}
	_, dec.err = io.ReadFull(dec.r, dec.buf[:n])
	if dec.err == nil {
		_, _ = dec.crc.Write(dec.buf[:n])
	}
}

func (dec *Decoder) readU8() uint8 {
	dec.load(1)
	return dec.buf[0]
}

func (dec *Decoder) readU16() uint16 {
	dec.load(2)
	return binary.BigEndian.Uint16(dec.buf[:2])
}

func (dec *Decoder) readU32() uint32 {
	dec.load(4)
	return binary.BigEndian.Uint32(dec.buf[:4])
}

func (dec *Decoder) readU64() uint64 {
	dec.load(8)
	return binary.BigEndian.Uint64(dec.buf[:8])
}
