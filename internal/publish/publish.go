// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package publish forwards decoded readings to message brokers.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/Thermoquad/fhtstat/pkg/fht"
)

// Publisher sends readings to an external system
type Publisher interface {
	Publish(ctx context.Context, r fht.Reading) error
	Close() error
}

// Payload is the JSON document published for each reading
type Payload struct {
	Room        string    `json:"room"`
	Address     string    `json:"address"`
	Metric      string    `json:"metric"`
	Value       float64   `json:"value"`
	ValueStatus string    `json:"value_status"`
	Warning     string    `json:"warning,omitempty"`
	Command     string    `json:"command"`
	Flags       []string  `json:"flags"`
	Errors      []string  `json:"errors"`
	Time        time.Time `json:"time"`
}

// NewPayload builds the published document for a reading
func NewPayload(r fht.Reading) Payload {
	p := Payload{
		Room:        r.Room,
		Metric:      r.Metric,
		Value:       r.Value,
		ValueStatus: r.ValueStatus.String(),
		Warning:     r.Warning,
		Command:     r.Command,
		Flags:       r.Flags,
		Errors:      []string{},
	}
	if p.Flags == nil {
		p.Flags = []string{}
	}
	if r.Frame != nil {
		p.Address = r.Frame.Address()
		p.Time = r.Frame.Timestamp()
	}
	for _, code := range r.Errors.Codes() {
		p.Errors = append(p.Errors, code.String())
	}
	return p
}

// Marshal encodes the payload for a reading
func Marshal(r fht.Reading) ([]byte, error) {
	return json.Marshal(NewPayload(r))
}

// Slug turns a room name into a topic segment: lower case, runs of
// anything but letters and digits collapsed to "-"
func Slug(room string) string {
	var b strings.Builder
	dash := false
	for _, c := range strings.ToLower(room) {
		if unicode.IsLetter(c) || unicode.IsDigit(c) {
			b.WriteRune(c)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	s := strings.TrimSuffix(b.String(), "-")
	if s == "" {
		return fht.Unknown
	}
	return s
}

// Multi fans a reading out to several publishers
type Multi []Publisher

// Publish sends to every publisher and joins the failures
func (m Multi) Publish(ctx context.Context, r fht.Reading) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every publisher and joins the failures
func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
