// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fht

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrLogLine is returned for message log lines that cannot be replayed
var ErrLogLine = errors.New("unparsable log line")

// LogTimeFormat is the timestamp layout written to the message log
const LogTimeFormat = time.RFC3339Nano

// legacyTimeFormat matches logs written without a zone offset
const legacyTimeFormat = "2006-01-02T15:04:05.999999999"

// minLogLineLen is "[" + shortest timestamp + "] " + fields and separators
const minLogLineLen = 1 + len("2006-01-02T15:04:05") + 2 + AddressLen + 1 + SubaddressLen + 1 + CommandLen

// FormatLogLine renders a frame as a message log line without line ending:
//
//	[<timestamp>] <address> <subaddress> <command> <value>
func FormatLogLine(f *Frame) string {
	return fmt.Sprintf("[%s] %s %s %s %s",
		f.timestamp.Format(LogTimeFormat), f.address, f.subaddress, f.command, f.value)
}

// ParseLogLine parses a line written by FormatLogLine back into a frame
func ParseLogLine(line string) (*Frame, error) {
	line = strings.TrimRight(line, "\r\n")
	if len(line) < minLogLineLen || line[0] != '[' {
		return nil, fmt.Errorf("%w: too short or missing timestamp", ErrLogLine)
	}

	end := strings.Index(line, "] ")
	if end < 0 {
		return nil, fmt.Errorf("%w: unterminated timestamp", ErrLogLine)
	}

	ts, err := parseLogTime(line[1:end])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLogLine, err)
	}

	fields := strings.Split(line[end+2:], " ")
	if len(fields) == 3 {
		fields = append(fields, "")
	}
	if len(fields) != 4 {
		return nil, fmt.Errorf("%w: expected 4 fields, got %d", ErrLogLine, len(fields))
	}
	if len(fields[0]) != AddressLen || len(fields[1]) != SubaddressLen || len(fields[2]) != CommandLen {
		return nil, fmt.Errorf("%w: bad field width", ErrLogLine)
	}

	return NewFrame(fields[0], fields[1], fields[2], fields[3], ts), nil
}

func parseLogTime(s string) (time.Time, error) {
	if ts, err := time.Parse(LogTimeFormat, s); err == nil {
		return ts, nil
	}
	return time.ParseInLocation(legacyTimeFormat, s, time.Local)
}
