// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fht

// Framer splits a byte stream into CR LF terminated lines
type Framer struct {
	buffer   []byte
	overflow bool // discarding until the next line ending
}

// NewFramer creates a new stream framer
func NewFramer() *Framer {
	return &Framer{
		buffer: make([]byte, 0, MaxFrameSize),
	}
}

// Reset drops any partially accumulated line
func (f *Framer) Reset() {
	f.buffer = f.buffer[:0]
	f.overflow = false
}

// Pending returns the bytes accumulated since the last line ending
func (f *Framer) Pending() []byte {
	return f.buffer
}

// FeedByte processes a single byte.
// Returns a completed line including its CR LF, or nil if the line is incomplete.
// Returns a *FrameError when an over-long line is dropped.
func (f *Framer) FeedByte(b byte) ([]byte, error) {
	if f.overflow {
		if b == LF {
			f.Reset()
		}
		return nil, nil
	}

	if len(f.buffer) >= MaxFrameSize {
		line := string(f.buffer)
		f.buffer = f.buffer[:0]
		f.overflow = b != LF
		return nil, &FrameError{Kind: FrameOverflow, Line: line}
	}

	f.buffer = append(f.buffer, b)

	n := len(f.buffer)
	if n >= 2 && f.buffer[n-2] == CR && f.buffer[n-1] == LF {
		line := make([]byte, n)
		copy(line, f.buffer)
		f.buffer = f.buffer[:0]
		return line, nil
	}
	return nil, nil
}
