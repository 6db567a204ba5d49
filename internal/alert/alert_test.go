// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package alert

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	mail "gopkg.in/gomail.v2"
)

func TestFromEnv(t *testing.T) {
	t.Setenv("MAIL_USERNAME", "daq@example.org")
	t.Setenv("MAIL_PASSWORD", "s3cr3t")
	t.Setenv("MAIL_SERVER", "smtp.example.org")
	t.Setenv("MAIL_PORT", "587")
	t.Setenv("MAIL_TGTS", "a@example.org, b@example.org,")

	m := FromEnv("traum-srv")
	if !m.valid() {
		t.Fatalf("mailer should be valid")
	}
	if got, want := m.port, 587; got != want {
		t.Fatalf("invalid port: got=%d, want=%d", got, want)
	}
	if got, want := m.tgts, []string{"a@example.org", "b@example.org"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid targets: got=%q, want=%q", got, want)
	}
}

func TestMissingCredentials(t *testing.T) {
	for _, tc := range []struct {
		name string
		m    *Mailer
	}{
		{"no-user", New("srv", "", "pwd", "smtp", 25, []string{"a"})},
		{"no-pwd", New("srv", "usr", "", "smtp", 25, []string{"a"})},
		{"no-server", New("srv", "usr", "pwd", "", 25, []string{"a"})},
		{"no-port", New("srv", "usr", "pwd", "smtp", 0, []string{"a"})},
		{"no-targets", New("srv", "usr", "pwd", "smtp", 25, nil)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.m.Alert("subject", "body")
			if !errors.Is(err, errCredentials) {
				t.Fatalf("invalid error: got=%+v, want=%+v", err, errCredentials)
			}
		})
	}
}

func TestAlert(t *testing.T) {
	var (
		m    = New("traum-srv", "usr", "pwd", "smtp", 25, []string{"a", "b"})
		msgs []*mail.Message
	)
	m.send = func(msg *mail.Message) error {
		msgs = append(msgs, msg)
		return nil
	}

	for i := 0; i < 2*MaxAlerts; i++ {
		err := m.Alert("could not store recording", "file: x.temp")
		if err != nil {
			t.Fatalf("could not send alert %d: %+v", i, err)
		}
	}
	err := m.Alert("other", "body")
	if err != nil {
		t.Fatalf("could not send alert: %+v", err)
	}

	if got, want := len(msgs), MaxAlerts+1; got != want {
		t.Fatalf("invalid number of mails: got=%d, want=%d", got, want)
	}

	msg := msgs[0]
	if got, want := msg.GetHeader("Subject"), []string{"[traum-srv] could not store recording"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid subject: got=%q, want=%q", got, want)
	}
	if got, want := msg.GetHeader("Bcc"), []string{"a", "b"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid recipients: got=%q, want=%q", got, want)
	}

	m.send = func(msg *mail.Message) error { return errors.New("boom") }
	err = m.Alert("failure", "body")
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("invalid error: %+v", err)
	}
}
