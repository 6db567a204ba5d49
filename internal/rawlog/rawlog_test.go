// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rawlog

import (
	"bytes"
	"io"
	"reflect"
	"testing"
	"time"

	"golang.org/x/xerrors"
)

func TestCodec(t *testing.T) {
	var (
		beg  = time.Date(2020, 6, 7, 8, 9, 10, 11, time.UTC)
		recs = []Record{
			{Time: beg, Data: []int32{0xC0DE, -3}},
			{Time: beg.Add(time.Millisecond), Data: []int32{0x29, 0, 1, 0x11, 0x0f, 8, 1, 2}},
			{Time: beg.Add(2 * time.Millisecond), Data: make([]int32, 26)},
			{Time: beg.Add(3 * time.Millisecond), Data: []int32{}},
			{Time: beg.Add(4 * time.Millisecond), Data: []int32{-1 << 31, 1<<31 - 1}},
		}
		buf = new(bytes.Buffer)
		enc = NewEncoder(buf)
	)
	for i := range recs[2].Data {
		recs[2].Data[i] = int32(i*1000 - 5000)
	}

	for i, rec := range recs {
		err := enc.Encode(rec)
		if err != nil {
			t.Fatalf("could not encode record %d: %+v", i, err)
		}
	}

	dec := NewDecoder(buf)
	for i, want := range recs {
		var got Record
		err := dec.Decode(&got)
		if err != nil {
			t.Fatalf("could not decode record %d: %+v", i, err)
		}
		if !got.Time.Equal(want.Time) {
			t.Fatalf("record %d: invalid time: got=%v, want=%v", i, got.Time, want.Time)
		}
		if !reflect.DeepEqual(got.Data, want.Data) {
			t.Fatalf("record %d: invalid data:\ngot= %v\nwant=%v", i, got.Data, want.Data)
		}
	}

	var rec Record
	err := dec.Decode(&rec)
	if err != io.EOF {
		t.Fatalf("invalid end of stream error: %+v", err)
	}
}

func TestEncodeTooLarge(t *testing.T) {
	enc := NewEncoder(io.Discard)
	err := enc.Encode(Record{Data: make([]int32, MaxWords+1)})
	if err == nil {
		t.Fatalf("expected an error")
	}
	const want = "rawlog: record too large (words=256, max=255)"
	if got := err.Error(); got != want {
		t.Fatalf("invalid error:\ngot= %q\nwant=%q", got, want)
	}
}

func TestDecodeErrors(t *testing.T) {
	buf := new(bytes.Buffer)
	err := NewEncoder(buf).Encode(Record{
		Time: time.Unix(1, 0),
		Data: []int32{1, 2, 3},
	})
	if err != nil {
		t.Fatalf("could not encode record: %+v", err)
	}
	raw := buf.Bytes()

	for _, tc := range []struct {
		name string
		raw  func() []byte
		want error
		msg  string
	}{
		{
			name: "bad-header",
			raw: func() []byte {
				p := append([]byte(nil), raw...)
				p[0] = 0xff
				return p
			},
			msg: "rawlog: invalid record header marker (got=0xff)",
		},
		{
			name: "bad-trailer",
			raw: func() []byte {
				p := append([]byte(nil), raw...)
				p[len(p)-3] = 0xff
				return p
			},
			msg: "rawlog: invalid record trailer marker (got=0xff)",
		},
		{
			name: "bad-crc",
			raw: func() []byte {
				p := append([]byte(nil), raw...)
				p[12] ^= 0x01
				return p
			},
		},
		{
			name: "truncated-body",
			raw:  func() []byte { return raw[:12] },
			want: io.ErrUnexpectedEOF,
		},
		{
			name: "truncated-crc",
			raw:  func() []byte { return raw[:len(raw)-1] },
			want: io.ErrUnexpectedEOF,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var rec Record
			err := NewDecoder(bytes.NewReader(tc.raw())).Decode(&rec)
			if err == nil {
				t.Fatalf("expected an error")
			}
			if tc.want != nil && !xerrors.Is(err, tc.want) {
				t.Fatalf("invalid error: got=%+v, want=%+v", err, tc.want)
			}
			if tc.msg != "" && err.Error() != tc.msg {
				t.Fatalf("invalid error:\ngot= %q\nwant=%q", err.Error(), tc.msg)
			}
		})
	}
}
