// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fht

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"
)

// ============================================================
// Test Helpers
// ============================================================

type mapResolver map[string]string

func (m mapResolver) Resolve(address string) (string, bool) {
	name, ok := m[strings.ToUpper(address)]
	if !ok {
		return strings.ToUpper(address), false
	}
	return name, true
}

var testRooms = mapResolver{"6004": "Bedroom"}

func wire(s string) []byte {
	return []byte(s + "\r\n")
}

func mustDecode(t *testing.T, s string) *Frame {
	t.Helper()
	f, err := Decode(wire(s), time.Now())
	if err != nil {
		t.Fatalf("Decode(%q) failed: %v", s, err)
	}
	return f
}

func analyze(t *testing.T, s string) Reading {
	t.Helper()
	return NewAnalyzer(DefaultTables(), nil).Analyze(mustDecode(t, s), testRooms)
}

// ============================================================
// Frame Codec Tests
// ============================================================

func TestDecode_Fields(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	f, err := Decode(wire("T60040026AA"), at)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if f.Address() != "6004" || f.Subaddress() != "00" || f.Command() != "26" || f.Value() != "AA" {
		t.Errorf("unexpected fields: %s", FormatFrame(f))
	}
	if !f.Timestamp().Equal(at) {
		t.Errorf("expected timestamp %v, got %v", at, f.Timestamp())
	}
}

func TestDecode_EmptyValue(t *testing.T) {
	f := mustDecode(t, "T600400A6")
	if f.Value() != "" {
		t.Errorf("expected empty value, got %q", f.Value())
	}
}

func TestDecode_LongValue(t *testing.T) {
	f := mustDecode(t, "T6004002601FF")
	if f.Value() != "01FF" {
		t.Errorf("expected remaining characters as value, got %q", f.Value())
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want error
		kind FrameErrorKind
	}{
		{"bad marker", wire("X60040026AA"), ErrBadMarker, FrameBadMarker},
		{"empty line", wire(""), ErrBadMarker, FrameBadMarker},
		{"lowercase marker", wire("t60040026AA"), ErrBadMarker, FrameBadMarker},
		{"missing command", wire("T600400"), ErrTruncated, FrameTruncated},
		{"one command char", wire("T6004002"), ErrTruncated, FrameTruncated},
		{"shorter than line ending", []byte("T"), ErrTruncated, FrameTruncated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Decode(tt.raw, time.Now())
			if f != nil {
				t.Errorf("expected nil frame, got %v", f)
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			var fe *FrameError
			if !errors.As(err, &fe) || fe.Kind != tt.kind {
				t.Errorf("expected FrameError kind %v, got %v", tt.kind, err)
			}
		})
	}
}

func TestDecode_StripsExactlyTwoBytes(t *testing.T) {
	// Only the trailing two bytes are removed, whatever they are
	f, err := Decode([]byte("T60040026AA\n\n"), time.Now())
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if f.Value() != "AA" {
		t.Errorf("expected value AA, got %q", f.Value())
	}
}

// ============================================================
// Framer Tests
// ============================================================

func TestFramer_SplitsLines(t *testing.T) {
	fr := NewFramer()
	var lines []string
	for _, b := range []byte("T60040026AA\r\nT6004414628\r\n") {
		line, err := fr.FeedByte(b)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if line != nil {
			lines = append(lines, string(line))
		}
	}
	want := []string{"T60040026AA\r\n", "T6004414628\r\n"}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("expected %q, got %q", want, lines)
	}
	if len(fr.Pending()) != 0 {
		t.Errorf("expected empty buffer, got %q", fr.Pending())
	}
}

func TestFramer_LoneLFDoesNotTerminate(t *testing.T) {
	fr := NewFramer()
	for _, b := range []byte("T6004\nAA") {
		if line, _ := fr.FeedByte(b); line != nil {
			t.Fatalf("unexpected line %q", line)
		}
	}
	if string(fr.Pending()) != "T6004\nAA" {
		t.Errorf("unexpected pending bytes %q", fr.Pending())
	}
}

func TestFramer_Overflow(t *testing.T) {
	fr := NewFramer()
	var overflowErr error
	for _, b := range []byte(strings.Repeat("A", MaxFrameSize+10) + "\r\n") {
		line, err := fr.FeedByte(b)
		if line != nil {
			t.Fatalf("over-long line should not be returned, got %q", line)
		}
		if err != nil {
			if overflowErr != nil {
				t.Fatalf("expected a single overflow error, got another: %v", err)
			}
			overflowErr = err
		}
	}
	if !errors.Is(overflowErr, ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", overflowErr)
	}

	// Recovers on the next line
	var got []byte
	for _, b := range wire("T60040026AA") {
		if line, _ := fr.FeedByte(b); line != nil {
			got = line
		}
	}
	if string(got) != "T60040026AA\r\n" {
		t.Errorf("expected recovery after overflow, got %q", got)
	}
}

// ============================================================
// Analyzer Tests
// ============================================================

func TestAnalyze_AllKnownSubaddresses(t *testing.T) {
	a := NewAnalyzer(DefaultTables(), nil)
	for sub, kind := range metricKinds {
		r := a.Analyze(mustDecode(t, "T6004"+sub+"2600"), testRooms)
		if r.Metric != kind {
			t.Errorf("subaddress %s: expected %s, got %s", sub, kind, r.Metric)
		}
		if r.Errors.Has(NewMetric) {
			t.Errorf("subaddress %s: NEW_METRIC should be unset", sub)
		}
	}
	if len(metricKinds) != 45 {
		t.Errorf("expected 45 metric kinds, got %d", len(metricKinds))
	}
}

func TestAnalyze_UnknownSubaddress(t *testing.T) {
	a := NewAnalyzer(DefaultTables(), nil)
	for i := 0; i < 256; i++ {
		sub := fmt.Sprintf("%02X", i)
		if _, ok := metricKinds[sub]; ok {
			continue
		}
		r := a.Analyze(mustDecode(t, "T6004"+sub+"2610"), testRooms)
		if r.Metric != Unknown {
			t.Errorf("subaddress %s: expected unknown, got %s", sub, r.Metric)
		}
		if r.Errors != NewMetric {
			t.Errorf("subaddress %s: expected only NEW_METRIC, got %s", sub, r.Errors)
		}
		if r.Value != 16 {
			t.Errorf("subaddress %s: expected raw pass-through 16, got %v", sub, r.Value)
		}
	}
}

func TestAnalyze_SubaddressCaseInsensitive(t *testing.T) {
	r := analyze(t, "T60048a2614")
	if r.Metric != "windowopen-temp" {
		t.Errorf("expected windowopen-temp, got %s", r.Metric)
	}
}

func TestAnalyze_Conversions(t *testing.T) {
	tests := []struct {
		sub  string
		conv func(float64) float64
	}{
		{"00", func(v float64) float64 { return v * 100.0 / 255.0 }},
		{"41", func(v float64) float64 { return v / 2.0 }},
		{"42", func(v float64) float64 { return v * 0.1 }},
		{"43", func(v float64) float64 { return v * 25.5 }},
		{"3E", func(v float64) float64 { return v }},
		{"82", func(v float64) float64 { return v }},
	}

	a := NewAnalyzer(DefaultTables(), nil)
	for _, tt := range tests {
		for raw := 0; raw < 256; raw++ {
			r := a.Analyze(mustDecode(t, fmt.Sprintf("T6004%s26%02X", tt.sub, raw)), testRooms)
			if want := tt.conv(float64(raw)); r.Value != want {
				t.Errorf("%s raw %d: expected %v, got %v", tt.sub, raw, want, r.Value)
			}
			if r.Raw != raw || r.ValueStatus != ValueParsed {
				t.Errorf("%s raw %d: expected parsed raw, got %d (%s)", tt.sub, raw, r.Raw, r.ValueStatus)
			}
		}
	}
}

func TestAnalyze_ConversionExamples(t *testing.T) {
	if r := analyze(t, "T60040026FF"); r.Value != 100.0 {
		t.Errorf("all-valves 0xFF: expected 100.0, got %v", r.Value)
	}
	if r := analyze(t, "T6004412628"); r.Value != 20.0 {
		t.Errorf("desired-temp 0x28: expected 20.0, got %v", r.Value)
	}
}

func TestAnalyze_ValueFallback(t *testing.T) {
	tests := []struct {
		frame  string
		status ValueStatus
	}{
		{"T6004412628", ValueParsed},
		{"T60044126", ValueMissing},
		{"T60044126ZZ", ValueInvalid},
		{"T6004412601FF", ValueInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.frame, func(t *testing.T) {
			r := analyze(t, tt.frame)
			if r.ValueStatus != tt.status {
				t.Errorf("expected status %s, got %s", tt.status, r.ValueStatus)
			}
			if tt.status != ValueParsed && (r.Value != 0 || r.Raw != 0) {
				t.Errorf("expected value defaulted to 0, got %v", r.Value)
			}
			if r.Errors != 0 {
				t.Errorf("value fallback must not set error bits, got %s", r.Errors)
			}
		})
	}
}

func TestAnalyze_Warnings(t *testing.T) {
	want := []string{"OK", "BATT LOW", "TEMP LOW", "WINDOW OPEN", "WINDOW ERR"}
	a := NewAnalyzer(DefaultTables(), nil)

	for i := 0; i < 256; i++ {
		r := a.Analyze(mustDecode(t, fmt.Sprintf("T60044426%02X", i)), testRooms)
		if i < len(want) {
			if r.Warning != want[i] || r.Errors.Has(NewWarning) {
				t.Errorf("index %d: expected %q without NEW_WARNING, got %q (%s)", i, want[i], r.Warning, r.Errors)
			}
			continue
		}
		if r.Warning != Unknown || !r.Errors.Has(NewWarning) {
			t.Errorf("index %d: expected unknown with NEW_WARNING, got %q (%s)", i, r.Warning, r.Errors)
		}
	}
}

func TestAnalyze_WarningOnlyForWarningsMetric(t *testing.T) {
	r := analyze(t, "T6004412609")
	if r.Warning != "" {
		t.Errorf("expected empty warning for desired-temp, got %q", r.Warning)
	}
}

func TestAnalyze_WarningInvalidValue(t *testing.T) {
	for _, frame := range []string{"T60044426", "T60044426ZZ"} {
		r := analyze(t, frame)
		if r.Warning != Unknown || r.Errors != NewWarning {
			t.Errorf("%s: expected unknown warning with NEW_WARNING, got %q (%s)", frame, r.Warning, r.Errors)
		}
	}
}

func TestAnalyze_Commands(t *testing.T) {
	want := map[string]string{"6": CommandSetValve, "9": CommandSpecial, "A": CommandSetValveA, "a": CommandSetValveA}
	a := NewAnalyzer(DefaultTables(), nil)

	for _, nibble := range strings.Split("0123456789ABCDEFa", "") {
		r := a.Analyze(mustDecode(t, "T600400"+"2"+nibble+"00"), testRooms)
		if label, ok := want[nibble]; ok {
			if r.Command != label || r.Errors.Has(NewCommand) {
				t.Errorf("nibble %s: expected %q, got %q (%s)", nibble, label, r.Command, r.Errors)
			}
			continue
		}
		if r.Command != Unknown || !r.Errors.Has(NewCommand) {
			t.Errorf("nibble %s: expected unknown with NEW_COMMAND, got %q (%s)", nibble, r.Command, r.Errors)
		}
	}
}

func TestAnalyze_FlagsAllCombinations(t *testing.T) {
	a := NewAnalyzer(DefaultTables(), nil)
	for nibble := 0; nibble < 16; nibble++ {
		want := []string{}
		for bit, label := range []string{FlagBattAllowed, FlagExtended, FlagBidirectional, FlagRepetitions} {
			if nibble&(1<<bit) != 0 {
				want = append(want, label)
			}
		}
		for _, low := range []string{"6", "0", "F"} {
			r := a.Analyze(mustDecode(t, fmt.Sprintf("T600400%X%s00", nibble, low)), testRooms)
			if !reflect.DeepEqual(r.Flags, want) {
				t.Errorf("high nibble %X low %s: expected %v, got %v", nibble, low, want, r.Flags)
			}
		}
	}
}

func TestAnalyze_EndToEnd(t *testing.T) {
	r := analyze(t, "T60040026AA")

	if r.Room != "Bedroom" {
		t.Errorf("expected room Bedroom, got %s", r.Room)
	}
	if r.Metric != MetricAllValves {
		t.Errorf("expected all-valves, got %s", r.Metric)
	}
	if math.Abs(r.Value-66.67) > 0.01 {
		t.Errorf("expected ~66.67, got %v", r.Value)
	}
	if r.Command != CommandSetValve {
		t.Errorf("expected set-valve, got %s", r.Command)
	}
	if !reflect.DeepEqual(r.Flags, []string{FlagExtended}) {
		t.Errorf("expected [extended], got %v", r.Flags)
	}
	if r.Errors != 0 {
		t.Errorf("expected no errors, got %s", r.Errors)
	}
}

func TestAnalyze_UnresolvedAddress(t *testing.T) {
	r := analyze(t, "T1a2b0026AA")

	if r.Room != "1A2B" {
		t.Errorf("expected address as room name, got %s", r.Room)
	}
	if r.Errors != NewRoom {
		t.Errorf("expected only NEW_ROOM, got %s", r.Errors)
	}
	if r.Metric != MetricAllValves || r.Command != CommandSetValve {
		t.Errorf("metric and command should decode independently, got %s/%s", r.Metric, r.Command)
	}
	if !reflect.DeepEqual(r.Flags, []string{FlagExtended}) {
		t.Errorf("expected [extended], got %v", r.Flags)
	}
}

func TestAnalyze_AllErrorsAtOnce(t *testing.T) {
	tables := DefaultTables()
	tables.Metrics["FE"] = MetricWarnings
	r := NewAnalyzer(tables, nil).Analyze(mustDecode(t, "T1111FE2009"), testRooms)

	want := NewRoom | NewCommand | NewWarning
	if r.Errors != want {
		t.Errorf("expected %s, got %s", want, r.Errors)
	}

	r = analyze(t, "T1111FF20")
	want = NewRoom | NewCommand | NewMetric
	if r.Errors != want {
		t.Errorf("expected %s, got %s", want, r.Errors)
	}
}

func TestAnalyze_NilResolver(t *testing.T) {
	r := NewAnalyzer(nil, nil).Analyze(mustDecode(t, "T60040026AA"), nil)
	if r.Room != "6004" || r.Errors != NewRoom {
		t.Errorf("expected fallback room with NEW_ROOM, got %s (%s)", r.Room, r.Errors)
	}
}

func TestDefaultTables_Independent(t *testing.T) {
	a := DefaultTables()
	a.Metrics["00"] = "changed"
	if b := DefaultTables(); b.Metrics["00"] != MetricAllValves {
		t.Errorf("tables should not share state, got %s", b.Metrics["00"])
	}
}

func TestDisplayValue(t *testing.T) {
	r := analyze(t, "T6004442601")
	if r.DisplayValue() != WarningBattLow {
		t.Errorf("expected warning label, got %v", r.DisplayValue())
	}
	r = analyze(t, "T6004412628")
	if r.DisplayValue() != 20.0 {
		t.Errorf("expected numeric value, got %v", r.DisplayValue())
	}
}

// ============================================================
// ErrorMask Tests
// ============================================================

func TestErrorMask_Codes(t *testing.T) {
	for m := ErrorMask(0); m < 16; m++ {
		var rebuilt ErrorMask
		for _, c := range m.Codes() {
			rebuilt |= c
		}
		if rebuilt != m {
			t.Errorf("mask %d: codes %v do not rebuild the mask", m, m.Codes())
		}
	}
	if got := (NewRoom | NewWarning).String(); got != "NEW_ROOM|NEW_WARNING" {
		t.Errorf("unexpected mask string %q", got)
	}
	if got := ErrorMask(0).String(); got != "OK" {
		t.Errorf("expected OK, got %q", got)
	}
}

// ============================================================
// Log Line Tests
// ============================================================

func TestLogLine_RoundTrip(t *testing.T) {
	zone := time.FixedZone("CET", 3600)
	frames := []*Frame{
		NewFrame("6004", "00", "26", "AA", time.Date(2025, 3, 1, 12, 30, 45, 123456789, zone)),
		NewFrame("1a2b", "44", "A6", "", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)),
		NewFrame("6004", "41", "26", "01FF", time.Date(2024, 12, 31, 23, 59, 59, 1000, time.UTC)),
	}

	for _, f := range frames {
		line := FormatLogLine(f)
		got, err := ParseLogLine(line + "\n")
		if err != nil {
			t.Fatalf("ParseLogLine(%q) error: %v", line, err)
		}
		if got.Address() != f.Address() || got.Subaddress() != f.Subaddress() ||
			got.Command() != f.Command() || got.Value() != f.Value() {
			t.Errorf("fields mismatch: %q -> %s", line, FormatFrame(got))
		}
		if !got.Timestamp().Equal(f.Timestamp()) {
			t.Errorf("timestamp mismatch: expected %v, got %v", f.Timestamp(), got.Timestamp())
		}
	}
}

func TestLogLine_Format(t *testing.T) {
	f := NewFrame("6004", "00", "26", "AA", time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	want := "[2025-03-01T12:00:00Z] 6004 00 26 AA"
	if got := FormatLogLine(f); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestLogLine_LegacyTimestamp(t *testing.T) {
	f, err := ParseLogLine("[2019-11-03T17:45:12.582411] 6004 00 26 AA")
	if err != nil {
		t.Fatalf("ParseLogLine error: %v", err)
	}
	if f.Timestamp().Year() != 2019 || f.Timestamp().Nanosecond() != 582411000 {
		t.Errorf("unexpected timestamp %v", f.Timestamp())
	}
}

func TestLogLine_Unparsable(t *testing.T) {
	lines := []string{
		"",
		"Starting the Listener process on 2019-11-03T17:45:12.582411",
		"[2025-03-01T12:00:00Z] 6004",
		"[2025-03-01T12:00:00Z] 6004 00",
		"[not a timestamp at all] 6004 00 26 AA",
		"[2025-03-01T12:00:00Z] 60040 00 26 AA",
		"[2025-03-01T12:00:00Z] 6004 00 26 AA extra",
	}
	for _, line := range lines {
		if _, err := ParseLogLine(line); !errors.Is(err, ErrLogLine) {
			t.Errorf("ParseLogLine(%q): expected ErrLogLine, got %v", line, err)
		}
	}
}

// ============================================================
// Statistics Tests
// ============================================================

func TestStatistics_Update(t *testing.T) {
	s := NewStatistics()

	clean := analyze(t, "T60040026AA")
	s.Update(&clean, nil)
	anomalous := analyze(t, "T1111FF2000")
	s.Update(&anomalous, nil)
	defaulted := analyze(t, "T60044126ZZ")
	s.Update(&defaulted, nil)

	_, err := Decode(wire("X60040026AA"), time.Now())
	s.Update(nil, err)
	_, err = Decode(wire("T6004"), time.Now())
	s.Update(nil, err)

	if s.TotalFrames != 5 || s.DecodedFrames != 3 || s.FrameErrors != 2 {
		t.Errorf("unexpected totals: %+v", s)
	}
	if s.CleanFrames != 2 || s.Anomalies != 1 {
		t.Errorf("expected 2 clean and 1 anomalous, got %d/%d", s.CleanFrames, s.Anomalies)
	}
	if s.NewRooms != 1 || s.NewMetrics != 1 || s.NewCommands != 1 || s.NewWarnings != 0 {
		t.Errorf("unexpected anomaly breakdown: %+v", s)
	}
	if s.BadMarkers != 1 || s.Truncated != 1 || s.DefaultedValues != 1 {
		t.Errorf("unexpected error breakdown: %+v", s)
	}
	if !strings.Contains(s.String(), "Total Frames:") {
		t.Errorf("summary missing totals:\n%s", s.String())
	}

	s.Reset()
	if s.TotalFrames != 0 {
		t.Errorf("expected reset counters, got %d", s.TotalFrames)
	}
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatReading(t *testing.T) {
	r := analyze(t, "T60040026AA")
	out := FormatReading(&r)
	for _, want := range []string{"Bedroom", "(6004)", "all-valves", "set-valve", "66.7%", "[extended]"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %q", want, out)
		}
	}

	r = analyze(t, "T1111FF2000")
	out = FormatReading(&r)
	if !strings.Contains(out, "!NEW_ROOM|NEW_COMMAND|NEW_METRIC") {
		t.Errorf("expected error marker in %q", out)
	}
}
