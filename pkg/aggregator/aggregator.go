// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package aggregator keeps the most recent FHT readings per room and metric.
//
// One goroutine applies readings while any number of readers take
// snapshots. All state sits behind a single mutex held only for the
// duration of Apply or Snapshot; snapshots are deep copies.
package aggregator

import (
	"sort"
	"sync"
	"time"

	"github.com/Thermoquad/fhtstat/pkg/fht"
)

// Defaults
const (
	DefaultKeepCount = 5
	DefaultMaxErrors = 100
)

// Options configures an Aggregator
type Options struct {
	KeepCount int // readings kept per room and metric
	MaxErrors int // error codes kept; oldest are dropped first
}

// Aggregator owns the per-room, per-metric reading history
type Aggregator struct {
	mu sync.Mutex

	keepCount int
	maxErrors int

	rooms         map[string]map[string][]Entry
	errors        []fht.ErrorMask
	droppedErrors uint64
	version       uint64
	updated       time.Time
}

// New creates an aggregator. Zero options fall back to the defaults.
func New(opts Options) *Aggregator {
	if opts.KeepCount <= 0 {
		opts.KeepCount = DefaultKeepCount
	}
	if opts.MaxErrors <= 0 {
		opts.MaxErrors = DefaultMaxErrors
	}
	return &Aggregator{
		keepCount: opts.KeepCount,
		maxErrors: opts.MaxErrors,
		rooms:     make(map[string]map[string][]Entry),
	}
}

// Apply records a reading for a room
func (a *Aggregator) Apply(room string, r fht.Reading) {
	entry := Entry{
		Command: r.Command,
		Value:   r.Value,
		Flags:   append([]string{}, r.Flags...),
	}
	if r.Metric == fht.MetricWarnings {
		entry.Warning = r.Warning
		entry.IsWarning = true
	}
	if r.Frame != nil {
		entry.Time = r.Frame.Timestamp()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	metrics, ok := a.rooms[room]
	if !ok {
		metrics = make(map[string][]Entry)
		a.rooms[room] = metrics
	}

	history := append(metrics[r.Metric], entry)
	if len(history) > a.keepCount {
		history = append(history[:0:0], history[len(history)-a.keepCount:]...)
	}
	metrics[r.Metric] = history

	for _, code := range r.Errors.Codes() {
		a.errors = append(a.errors, code)
	}
	if over := len(a.errors) - a.maxErrors; over > 0 {
		a.errors = append(a.errors[:0:0], a.errors[over:]...)
		a.droppedErrors += uint64(over)
	}

	a.version++
	a.updated = time.Now()
}

// Snapshot returns a deep copy of the current state
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Snapshot{
		Rooms:         make(map[string]map[string][]Entry, len(a.rooms)),
		Errors:        make([]fht.ErrorMask, len(a.errors)),
		DroppedErrors: a.droppedErrors,
		Version:       a.version,
		Updated:       a.updated,
	}
	copy(s.Errors, a.errors)

	for room, metrics := range a.rooms {
		m := make(map[string][]Entry, len(metrics))
		for metric, history := range metrics {
			h := make([]Entry, len(history))
			for i, e := range history {
				e.Flags = append([]string{}, e.Flags...)
				h[i] = e
			}
			m[metric] = h
		}
		s.Rooms[room] = m
	}

	return s
}

// Version returns a counter incremented by every Apply
func (a *Aggregator) Version() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.version
}

// Rooms returns the known room names, sorted
func (a *Aggregator) Rooms() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	rooms := make([]string, 0, len(a.rooms))
	for room := range a.rooms {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// KeepCount returns the configured history length
func (a *Aggregator) KeepCount() int {
	return a.keepCount
}
