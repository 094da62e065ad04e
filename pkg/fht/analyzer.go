// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fht

import (
	"log/slog"
	"strconv"
	"strings"
)

// ErrorMask is a set of independent decode anomalies
type ErrorMask uint8

const (
	NewRoom ErrorMask = 1 << iota
	NewCommand
	NewMetric
	NewWarning
)

var errorNames = []struct {
	bit  ErrorMask
	name string
}{
	{NewRoom, "NEW_ROOM"},
	{NewCommand, "NEW_COMMAND"},
	{NewMetric, "NEW_METRIC"},
	{NewWarning, "NEW_WARNING"},
}

// Has reports whether every bit of e is set in m
func (m ErrorMask) Has(e ErrorMask) bool {
	return m&e == e
}

// Codes splits the mask into its individual error codes, lowest bit first
func (m ErrorMask) Codes() []ErrorMask {
	var codes []ErrorMask
	for _, n := range errorNames {
		if m&n.bit != 0 {
			codes = append(codes, n.bit)
		}
	}
	return codes
}

// String returns the set codes joined with "|", or "OK"
func (m ErrorMask) String() string {
	if m == 0 {
		return "OK"
	}
	var names []string
	for _, n := range errorNames {
		if m&n.bit != 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}

// ParseErrorName returns the single error code with the given name
func ParseErrorName(name string) (ErrorMask, bool) {
	for _, n := range errorNames {
		if n.name == name {
			return n.bit, true
		}
	}
	return 0, false
}

// ValueStatus records how the value field was interpreted
type ValueStatus int

const (
	ValueParsed ValueStatus = iota
	ValueMissing
	ValueInvalid // not a hex byte, defaulted to 0
)

// String returns the status name
func (s ValueStatus) String() string {
	switch s {
	case ValueParsed:
		return "parsed"
	case ValueMissing:
		return "missing"
	case ValueInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Conversion maps a raw value byte to engineering units
type Conversion func(raw int) float64

// Tables holds the protocol lookup tables. Build once with DefaultTables
// and share by reference; the analyzer never modifies them.
type Tables struct {
	Metrics     map[string]string     // subaddress -> metric kind
	Conversions map[string]Conversion // metric kind -> conversion
	Commands    map[byte]string       // command low nibble -> label
	Flags       [4]string             // command high nibble bit -> label
	Warnings    []string              // warning index -> label
}

// DefaultTables returns the known FHT protocol tables
func DefaultTables() *Tables {
	t := &Tables{
		Metrics:  make(map[string]string, len(metricKinds)),
		Commands: make(map[byte]string, len(commandLabels)),
		Flags:    flagLabels,
		Warnings: append([]string(nil), warningLabels...),
		Conversions: map[string]Conversion{
			MetricAllValves:    func(raw int) float64 { return float64(raw) * 100.0 / 255.0 },
			MetricDesiredTemp:  func(raw int) float64 { return float64(raw) / 2.0 },
			MetricMeasuredLow:  func(raw int) float64 { return float64(raw) * 0.1 },
			MetricMeasuredHigh: func(raw int) float64 { return float64(raw) * 25.5 },
		},
	}
	for k, v := range metricKinds {
		t.Metrics[k] = v
	}
	for k, v := range commandLabels {
		t.Commands[k] = v
	}
	return t
}

// Resolver maps a device address to a room name
type Resolver interface {
	Resolve(address string) (room string, found bool)
}

// Reading is the decoded form of a single frame
type Reading struct {
	Frame       *Frame
	Room        string
	Metric      string
	Raw         int
	Value       float64
	ValueStatus ValueStatus
	Warning     string // "" unless Metric is the warnings field
	Command     string
	Flags       []string
	Errors      ErrorMask
}

// DisplayValue returns the warning label for the warnings field and the
// numeric value otherwise
func (r *Reading) DisplayValue() any {
	if r.Metric == MetricWarnings {
		return r.Warning
	}
	return r.Value
}

// Analyzer translates frames into readings. It never fails: unknown
// protocol elements become "unknown" plus an error bit and are logged as
// discoveries.
type Analyzer struct {
	tables *Tables
	logger *slog.Logger
}

// NewAnalyzer creates an analyzer over the given tables.
// A nil logger discards discovery events.
func NewAnalyzer(tables *Tables, logger *slog.Logger) *Analyzer {
	if tables == nil {
		tables = DefaultTables()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Analyzer{tables: tables, logger: logger}
}

// Analyze decodes a frame, resolving its address through dir
func (a *Analyzer) Analyze(f *Frame, dir Resolver) Reading {
	r := Reading{
		Frame:   f,
		Metric:  Unknown,
		Command: Unknown,
		Flags:   []string{},
	}

	// Room
	room, found := "", false
	if dir != nil {
		room, found = dir.Resolve(f.address)
	}
	if !found {
		room = strings.ToUpper(f.address)
		r.Errors |= NewRoom
		a.logger.Warn("unknown room", "address", room)
	}
	r.Room = room

	// Metric kind
	sub := strings.ToUpper(f.subaddress)
	if kind, ok := a.tables.Metrics[sub]; ok {
		r.Metric = kind
	} else {
		r.Errors |= NewMetric
		a.logger.Warn("new metric subaddress", "subaddress", sub, "command", f.command, "value", f.value)
	}

	// Value
	r.Raw, r.ValueStatus = parseValue(f.value)
	r.Value = float64(r.Raw)
	if conv, ok := a.tables.Conversions[r.Metric]; ok {
		r.Value = conv(r.Raw)
	}

	// Warning
	if r.Metric == MetricWarnings {
		if r.ValueStatus == ValueParsed && r.Raw < len(a.tables.Warnings) {
			r.Warning = a.tables.Warnings[r.Raw]
		} else {
			r.Warning = Unknown
			r.Errors |= NewWarning
			a.logger.Warn("unknown warning index", "value", f.value)
		}
	}

	// Command (low nibble) and flags (high nibble)
	cmd := strings.ToUpper(f.command)
	if len(cmd) > 1 {
		if label, ok := a.tables.Commands[cmd[1]]; ok {
			r.Command = label
		}
	}
	if r.Command == Unknown {
		r.Errors |= NewCommand
		a.logger.Warn("unknown command", "command", f.command)
	}
	if len(cmd) > 0 {
		if nibble, err := strconv.ParseUint(cmd[:1], 16, 8); err == nil {
			r.Flags = decodeFlags(uint8(nibble), a.tables.Flags)
		}
	}

	return r
}

// parseValue parses the value field as a single hex byte
func parseValue(s string) (int, ValueStatus) {
	if s == "" {
		return 0, ValueMissing
	}
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0, ValueInvalid
	}
	return int(v), ValueParsed
}

// decodeFlags returns the label of every set bit, lowest bit first
func decodeFlags(nibble uint8, labels [4]string) []string {
	flags := []string{}
	for i := 0; i < 4; i++ {
		if nibble&(1<<i) != 0 {
			flags = append(flags, labels[i])
		}
	}
	return flags
}
