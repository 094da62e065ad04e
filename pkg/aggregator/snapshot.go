// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aggregator

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Thermoquad/fhtstat/pkg/fht"
	"github.com/fxamacker/cbor/v2"
)

// Entry is one reading in a room/metric history
type Entry struct {
	Command   string    `cbor:"command"`
	Value     float64   `cbor:"value"`
	Warning   string    `cbor:"warning,omitempty"`
	IsWarning bool      `cbor:"-"`
	Flags     []string  `cbor:"flags"`
	Time      time.Time `cbor:"time"`
}

// DisplayValue returns the warning label for warning entries and the
// numeric value otherwise
func (e Entry) DisplayValue() any {
	if e.IsWarning {
		return e.Warning
	}
	return e.Value
}

// MarshalJSON renders {"<command>": <display value>, "flags": [...], "time": ...}
func (e Entry) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		e.Command: e.DisplayValue(),
		"flags":   e.Flags,
	}
	if !e.Time.IsZero() {
		m["time"] = e.Time
	}
	return json.Marshal(m)
}

// Snapshot is a point-in-time copy of the aggregator state
type Snapshot struct {
	Rooms         map[string]map[string][]Entry `json:"rooms"`
	Errors        []fht.ErrorMask               `json:"-"`
	DroppedErrors uint64                        `json:"dropped_errors"`
	Version       uint64                        `json:"version"`
	Updated       time.Time                     `json:"updated"`
}

// ErrorNames returns the accumulated error codes by name, oldest first
func (s Snapshot) ErrorNames() []string {
	names := make([]string, len(s.Errors))
	for i, e := range s.Errors {
		names[i] = e.String()
	}
	return names
}

// Latest returns the newest entry for a room and metric
func (s Snapshot) Latest(room, metric string) (Entry, bool) {
	history := s.Rooms[room][metric]
	if len(history) == 0 {
		return Entry{}, false
	}
	return history[len(history)-1], true
}

// MarshalJSON adds the error names to the snapshot
func (s Snapshot) MarshalJSON() ([]byte, error) {
	type plain Snapshot
	return json.Marshal(struct {
		plain
		Errors []string `json:"errors"`
	}{plain(s), s.ErrorNames()})
}

type cborSnapshot struct {
	Rooms         map[string]map[string][]Entry `cbor:"rooms"`
	Errors        []string                      `cbor:"errors"`
	DroppedErrors uint64                        `cbor:"dropped_errors"`
	Version       uint64                        `cbor:"version"`
	Updated       time.Time                     `cbor:"updated"`
}

var cborEncMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano, Sort: cbor.SortCanonical}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// EncodeCBOR encodes a snapshot as CBOR
func EncodeCBOR(s Snapshot) ([]byte, error) {
	data, err := cborEncMode.Marshal(cborSnapshot{
		Rooms:         s.Rooms,
		Errors:        s.ErrorNames(),
		DroppedErrors: s.DroppedErrors,
		Version:       s.Version,
		Updated:       s.Updated,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeCBOR decodes a snapshot written by EncodeCBOR. Error codes that do
// not name a known anomaly are skipped.
func DecodeCBOR(data []byte) (Snapshot, error) {
	var cs cborSnapshot
	if err := cbor.Unmarshal(data, &cs); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	s := Snapshot{
		Rooms:         cs.Rooms,
		DroppedErrors: cs.DroppedErrors,
		Version:       cs.Version,
		Updated:       cs.Updated,
	}
	for _, name := range cs.Errors {
		if code, ok := fht.ParseErrorName(name); ok {
			s.Errors = append(s.Errors, code)
		}
	}
	for _, metrics := range s.Rooms {
		for _, history := range metrics {
			for i := range history {
				history[i].IsWarning = history[i].Warning != ""
			}
		}
	}
	return s, nil
}
