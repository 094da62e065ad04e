// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fht

import (
	"errors"
	"fmt"
	"time"
)

// Frame errors
var (
	ErrBadMarker = errors.New("bad frame marker")
	ErrTruncated = errors.New("truncated frame")
	ErrOverflow  = errors.New("frame exceeds max size")
)

// FrameErrorKind classifies transport-level frame corruption
type FrameErrorKind int

const (
	FrameBadMarker FrameErrorKind = iota
	FrameTruncated
	FrameOverflow
)

// String returns the kind name used in logs and metrics
func (k FrameErrorKind) String() string {
	switch k {
	case FrameBadMarker:
		return "bad_marker"
	case FrameTruncated:
		return "truncated"
	case FrameOverflow:
		return "overflow"
	default:
		return "unknown"
	}
}

// FrameError reports a frame that was dropped before analysis
type FrameError struct {
	Kind FrameErrorKind
	Line string // offending line without its line ending
}

// Error implements the error interface
func (e *FrameError) Error() string {
	return fmt.Sprintf("%v: %q", e.Unwrap(), e.Line)
}

// Unwrap returns the sentinel matching the error kind
func (e *FrameError) Unwrap() error {
	switch e.Kind {
	case FrameBadMarker:
		return ErrBadMarker
	case FrameTruncated:
		return ErrTruncated
	default:
		return ErrOverflow
	}
}

// Frame is a parsed FHT frame. It is immutable once constructed.
type Frame struct {
	address    string
	subaddress string
	command    string
	value      string
	timestamp  time.Time
}

// NewFrame creates a frame from its fields
func NewFrame(address, subaddress, command, value string, timestamp time.Time) *Frame {
	return &Frame{
		address:    address,
		subaddress: subaddress,
		command:    command,
		value:      value,
		timestamp:  timestamp,
	}
}

// Address returns the 4 hex character device address as received
func (f *Frame) Address() string {
	return f.address
}

// Subaddress returns the 2 hex character subaddress
func (f *Frame) Subaddress() string {
	return f.subaddress
}

// Command returns the 2 hex character command byte
func (f *Frame) Command() string {
	return f.command
}

// Value returns the value field, possibly empty
func (f *Frame) Value() string {
	return f.value
}

// Timestamp returns the capture time
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}

// Decode parses a raw frame including its two byte line ending.
// The trailing two bytes are stripped unconditionally.
func Decode(raw []byte, at time.Time) (*Frame, error) {
	if len(raw) < 2 {
		return nil, &FrameError{Kind: FrameTruncated, Line: string(raw)}
	}
	line := string(raw[:len(raw)-2])

	if len(line) == 0 || line[0] != FrameMarker {
		return nil, &FrameError{Kind: FrameBadMarker, Line: line}
	}
	if len(line) < MinFrameLen {
		return nil, &FrameError{Kind: FrameTruncated, Line: line}
	}

	i := 1
	address := line[i : i+AddressLen]
	i += AddressLen
	subaddress := line[i : i+SubaddressLen]
	i += SubaddressLen
	command := line[i : i+CommandLen]
	i += CommandLen

	return NewFrame(address, subaddress, command, line[i:], at), nil
}
