// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package alert sends operator alerts by mail.
package alert // import "github.com/go-lpc/traum/internal/alert"

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	mail "gopkg.in/gomail.v2"
)

// MaxAlerts is the maximum number of alerts sent for a given subject.
const MaxAlerts = 5

var errCredentials = errors.New("alert: missing credentials")

// Mailer sends alerts to a list of recipients.
type Mailer struct {
	name string // name of the alerting process

	usr  string
	pwd  string
	srv  string
	port int
	tgts []string

	mu   sync.Mutex
	sent map[string]int
	send func(msg *mail.Message) error
}

// FromEnv creates a mailer from the MAIL_USERNAME, MAIL_PASSWORD,
// MAIL_SERVER, MAIL_PORT and MAIL_TGTS environment variables.
func FromEnv(name string) *Mailer {
	port, _ := strconv.Atoi(os.Getenv("MAIL_PORT"))
	return New(
		name,
		os.Getenv("MAIL_USERNAME"),
		os.Getenv("MAIL_PASSWORD"),
		os.Getenv("MAIL_SERVER"),
		port,
		splitTargets(os.Getenv("MAIL_TGTS")),
	)
}

// New creates a mailer sending alerts through the provided SMTP server.
func New(name, usr, pwd, srv string, port int, tgts []string) *Mailer {
	m := &Mailer{
		name: name,
		usr:  usr,
		pwd:  pwd,
		srv:  srv,
		port: port,
		tgts: tgts,
		sent: make(map[string]int),
	}
	m.send = m.dialAndSend
	return m
}

func splitTargets(v string) []string {
	var tgts []string
	for _, tgt := range strings.Split(v, ",") {
		tgt = strings.TrimSpace(tgt)
		if tgt == "" {
			continue
		}
		tgts = append(tgts, tgt)
	}
	return tgts
}

func (m *Mailer) valid() bool {
	return m.usr != "" && m.pwd != "" &&
		m.srv != "" && m.port != 0 &&
		len(m.tgts) != 0
}

// Alert sends a mail with the provided subject and body.
// At most MaxAlerts mails are sent for a given subject.
func (m *Mailer) Alert(subject, body string) error {
	if !m.valid() {
		return errCredentials
	}

	m.mu.Lock()
	n := m.sent[subject]
	if n >= MaxAlerts {
		m.mu.Unlock()
		return nil
	}
	m.sent[subject] = n + 1
	m.mu.Unlock()

	msg := mail.NewMessage()
	msg.SetHeader("From", m.usr)
	msg.SetHeader("Bcc", m.tgts...)
	msg.SetHeader("Subject", fmt.Sprintf("[%s] %s", m.name, subject))
	msg.SetBody("text/plain", body)

	err := m.send(msg)
	if err != nil {
		return fmt.Errorf("alert: could not send mail: %w", err)
	}
	return nil
}

func (m *Mailer) dialAndSend(msg *mail.Message) error {
	dial := mail.NewDialer(m.srv, m.port, m.usr, m.pwd)
	dial.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	return dial.DialAndSend(msg)
}
