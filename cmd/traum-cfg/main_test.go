// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/go-lpc/traum/packet"
)

func TestShell(t *testing.T) {
	var (
		out   = new(strings.Builder)
		sh    = newShell(out)
		fname = filepath.Join(t.TempDir(), "cfg.hex")
	)

	for _, tc := range []struct {
		cmd  string
		want string
		err  string
	}{
		{cmd: "hex", want: "29 00 01 11 0f 80 00 00\n"},
		{cmd: "set gain 3"},
		{cmd: "set one-char true"},
		{cmd: "hex", want: "ed 00 01 11 0f 80 00 00\n"},
		{cmd: "set gain 4", err: "packet: invalid gain value 4 (max=3)"},
		{cmd: "set bitshift-min 0x10", err: "packet: invalid bitshift-min value 16 (max=15)"},
		{cmd: "set bitshift-min 3"},
		{cmd: "hex", want: "ed 00 01 11 3f 80 00 00\n"},
		{cmd: "set rate", err: "usage: set FIELD VALUE"},
		{cmd: "set nope 1", err: `unknown field "nope"`},
		{cmd: "set gain x", err: `invalid gain value "x"`},
		{cmd: "save", err: "usage: save FILE"},
		{cmd: "save " + fname},
		{cmd: "reset"},
		{cmd: "hex", want: "29 00 01 11 0f 80 00 00\n"},
		{cmd: "load " + fname},
		{cmd: "hex", want: "ed 00 01 11 3f 80 00 00\n"},
		{cmd: "show", want: "gain:          3 (x8)\n"},
		{cmd: "frobnicate", err: `unknown command "frobnicate"`},
		{cmd: "", want: ""},
	} {
		t.Run(tc.cmd, func(t *testing.T) {
			out.Reset()
			err := sh.exec(tc.cmd)
			switch {
			case err != nil && tc.err == "":
				t.Fatalf("could not run %q: %+v", tc.cmd, err)
			case err == nil && tc.err != "":
				t.Fatalf("expected an error")
			case err != nil:
				if !strings.Contains(err.Error(), tc.err) {
					t.Fatalf("invalid error:\ngot= %q\nwant=%q", err.Error(), tc.err)
				}
				return
			}
			if !strings.HasPrefix(out.String(), tc.want) {
				t.Fatalf("invalid output:\ngot= %q\nwant=%q", out.String(), tc.want)
			}
		})
	}

	raw, err := os.ReadFile(fname)
	if err != nil {
		t.Fatalf("could not read saved config: %+v", err)
	}
	if got, want := string(raw), "ed 00 01 11 3f 80 00 00\n"; got != want {
		t.Fatalf("invalid saved config: got=%q, want=%q", got, want)
	}

	if err := sh.exec("quit"); !errors.Is(err, errQuit) {
		t.Fatalf("invalid quit error: %+v", err)
	}
}

func TestComplete(t *testing.T) {
	sh := newShell(new(strings.Builder))
	for _, tc := range []struct {
		line string
		want []string
	}{
		{"s", []string{"save", "set", "show"}},
		{"r", []string{"read", "reset"}},
		{"h", []string{"help", "hex"}},
		{"set bit", []string{"set bits ", "set bitshift-max ", "set bitshift-min "}},
		{"set gain ", nil},
	} {
		t.Run(tc.line, func(t *testing.T) {
			got := sh.complete(tc.line)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("invalid completion: got=%q, want=%q", got, tc.want)
			}
		})
	}
}

type fakeDevice struct {
	cfg packet.Config
}

func (dev *fakeDevice) ReadConfig() (packet.Config, error) { return dev.cfg, nil }

func (dev *fakeDevice) WriteConfig(cfg packet.Config) error {
	dev.cfg = cfg
	return nil
}

func TestDevice(t *testing.T) {
	out := new(strings.Builder)
	sh := newShell(out)

	if err := sh.exec("read"); !errors.Is(err, errNoDevice) {
		t.Fatalf("invalid error: %+v", err)
	}

	dev := &fakeDevice{cfg: packet.DefaultConfig()}
	dev.cfg.Battery = 42
	sh.dev = dev

	for _, cmd := range []string{"read", "set gain 2", "write"} {
		err := sh.exec(cmd)
		if err != nil {
			t.Fatalf("could not run %q: %+v", cmd, err)
		}
	}

	if got, want := out.String(), "battery: 42\n"; got != want {
		t.Fatalf("invalid output: got=%q, want=%q", got, want)
	}
	if got, want := dev.cfg.Gain, uint8(2); got != want {
		t.Fatalf("invalid device gain: got=%d, want=%d", got, want)
	}
	if got, want := dev.cfg.Battery, uint16(42); got != want {
		t.Fatalf("invalid device battery: got=%d, want=%d", got, want)
	}
}
