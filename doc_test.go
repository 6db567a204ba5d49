// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package traum

import (
	"runtime/debug"
	"testing"
)

func TestVersionOf(t *testing.T) {
	for _, tc := range []struct {
		name string
		info *debug.BuildInfo
		vers string
		sum  string
	}{
		{
			name: "nil",
		},
		{
			name: "main",
			info: &debug.BuildInfo{
				Main: debug.Module{
					Path:    "github.com/go-lpc/traum",
					Version: "v0.3.0",
					Sum:     "h1:main",
				},
			},
			vers: "v0.3.0",
			sum:  "h1:main",
		},
		{
			name: "dep",
			info: &debug.BuildInfo{
				Deps: []*debug.Module{
					{Path: "github.com/go-daq/tdaq", Version: "v0.14.2"},
					{Path: "github.com/go-lpc/traum", Version: "v0.2.1", Sum: "h1:dep"},
				},
			},
			vers: "v0.2.1",
			sum:  "h1:dep",
		},
		{
			name: "replace-path",
			info: &debug.BuildInfo{
				Deps: []*debug.Module{
					{
						Path:    "github.com/go-lpc/traum",
						Version: "v0.2.1",
						Replace: &debug.Module{Path: "../traum"},
					},
				},
			},
			vers: "../traum",
		},
		{
			name: "replace-local",
			info: &debug.BuildInfo{
				Deps: []*debug.Module{
					{
						Path:    "github.com/go-lpc/traum",
						Version: "v0.2.1",
						Replace: &debug.Module{},
					},
				},
			},
			vers: "v0.2.1*",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			vers, sum := versionOf(tc.info)
			if got, want := vers, tc.vers; got != want {
				t.Fatalf("invalid version: got=%q, want=%q", got, want)
			}
			if got, want := sum, tc.sum; got != want {
				t.Fatalf("invalid checksum: got=%q, want=%q", got, want)
			}
		})
	}
}
