// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package msglog writes and replays the append-only FHT message log.
//
// Frames are written one per line in the fht.FormatLogLine format to a file
// per 4-hour bucket, named fht_message_log<YYYYMMDD>-<hour/4>.txt. Each file
// starts with a "#" header line naming the time it was opened.
package msglog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Thermoquad/fhtstat/pkg/fht"
)

// BucketName returns the rotation bucket for t, e.g. "20250101-3"
func BucketName(t time.Time) string {
	return fmt.Sprintf("%04d%02d%02d-%d", t.Year(), int(t.Month()), t.Day(), t.Hour()/4)
}

// FileName returns the log file name for a rotation bucket
func FileName(bucket string) string {
	return "fht_message_log" + bucket + ".txt"
}

// Writer appends frames to the rotating message log.
// Safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	dir    string
	bucket string
	file   *os.File
	buf    *bufio.Writer
	lines  uint64
}

// NewWriter creates a writer for dir, creating the directory if needed.
// Files are opened lazily on the first write.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create message log dir: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// Write appends one frame, rotating by the frame's timestamp
func (w *Writer) Write(f *fht.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.rotate(f.Timestamp()); err != nil {
		return err
	}

	if _, err := w.buf.WriteString(fht.FormatLogLine(f) + "\n"); err != nil {
		return fmt.Errorf("failed to write message log: %w", err)
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush message log: %w", err)
	}
	w.lines++
	return nil
}

// rotate makes sure the file for t's bucket is open
func (w *Writer) rotate(t time.Time) error {
	bucket := BucketName(t)
	if w.file != nil && bucket == w.bucket {
		return nil
	}
	if err := w.closeLocked(); err != nil {
		return err
	}

	path := filepath.Join(w.dir, FileName(bucket))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open message log: %w", err)
	}

	w.file = file
	w.buf = bufio.NewWriter(file)
	w.bucket = bucket

	if _, err := fmt.Fprintf(w.buf, "# fhtstat message log opened %s\n", time.Now().Format(fht.LogTimeFormat)); err != nil {
		return fmt.Errorf("failed to write message log header: %w", err)
	}
	return nil
}

// Path returns the current log file, or "" before the first write
func (w *Writer) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return ""
	}
	return w.file.Name()
}

// Lines returns the number of frames written
func (w *Writer) Lines() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lines
}

// Close flushes and closes the current file
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *Writer) closeLocked() error {
	if w.file == nil {
		return nil
	}
	flushErr := w.buf.Flush()
	closeErr := w.file.Close()
	w.file = nil
	w.buf = nil
	if flushErr != nil {
		return fmt.Errorf("failed to flush message log: %w", flushErr)
	}
	return closeErr
}

// Replay parses every log line in r and calls fn for each frame in order.
// Blank and "#" header lines are ignored; unparsable lines are skipped and
// counted.
func Replay(r io.Reader, fn func(*fht.Frame)) (skipped int, err error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		f, err := fht.ParseLogLine(line)
		if err != nil {
			skipped++
			continue
		}
		fn(f)
	}
	if err := scanner.Err(); err != nil {
		return skipped, fmt.Errorf("failed to read message log: %w", err)
	}
	return skipped, nil
}

// ReplayFile opens path and replays it
func ReplayFile(path string, fn func(*fht.Frame)) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open message log: %w", err)
	}
	defer file.Close()
	return Replay(file, fn)
}
