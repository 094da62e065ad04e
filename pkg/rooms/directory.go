// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package rooms maps FHT device addresses to room names.
//
// The directory source is a section file:
//
//	[Bedroom]
//	9604
//	[Living Room]
//	9605
//	1243
//
// Each address line holds the two decimal digit pairs printed on the
// thermostat ("96 04"), which are converted pair by pair to the hex address
// seen on the air ("6004").
package rooms

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidSource is returned for malformed directory sources
var ErrInvalidSource = errors.New("invalid room directory")

// Directory is an immutable address to room name mapping
type Directory struct {
	rooms map[string]string
}

// Entry is a single address assignment
type Entry struct {
	Address string
	Room    string
}

// Empty returns a directory without entries; every lookup misses
func Empty() *Directory {
	return &Directory{rooms: map[string]string{}}
}

// LoadFile loads a directory from a file
func LoadFile(path string) (*Directory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open room directory: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a directory source. Blank lines and lines starting with
// '#' or ';' are ignored.
func Load(r io.Reader) (*Directory, error) {
	d := Empty()
	room := ""
	lineNo := 0

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' || line[0] == ';' {
			continue
		}

		if line[0] == '[' {
			room = strings.TrimSpace(strings.Trim(line, "[]"))
			if room == "" {
				return nil, fmt.Errorf("%w: line %d: empty room name", ErrInvalidSource, lineNo)
			}
			continue
		}

		if room == "" {
			return nil, fmt.Errorf("%w: line %d: address before first room header", ErrInvalidSource, lineNo)
		}
		address, err := ConvertAddress(line)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrInvalidSource, lineNo, err)
		}
		d.rooms[address] = room
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read room directory: %w", err)
	}

	return d, nil
}

// ConvertAddress converts a decimal digit pair address ("9604" or "96 04")
// to its uppercase hex form ("6004")
func ConvertAddress(s string) (string, error) {
	digits := strings.Join(strings.Fields(s), "")
	if len(digits) != 4 {
		return "", fmt.Errorf("address %q: expected 4 decimal digits", s)
	}

	var b strings.Builder
	for i := 0; i < 4; i += 2 {
		n, err := strconv.ParseUint(digits[i:i+2], 10, 8)
		if err != nil {
			return "", fmt.Errorf("address %q: %w", s, err)
		}
		fmt.Fprintf(&b, "%02X", n)
	}
	return b.String(), nil
}

// Resolve returns the room for an address. Lookup is case-insensitive.
// When the address is unknown the canonical address is returned with
// found=false.
func (d *Directory) Resolve(address string) (string, bool) {
	address = strings.ToUpper(strings.TrimSpace(address))
	if d == nil {
		return address, false
	}
	room, ok := d.rooms[address]
	if !ok {
		return address, false
	}
	return room, true
}

// Len returns the number of known addresses
func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.rooms)
}

// Entries returns all assignments sorted by room, then address
func (d *Directory) Entries() []Entry {
	if d == nil {
		return nil
	}
	entries := make([]Entry, 0, len(d.rooms))
	for address, room := range d.rooms {
		entries = append(entries, Entry{Address: address, Room: room})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Room != entries[j].Room {
			return entries[i].Room < entries[j].Room
		}
		return entries[i].Address < entries[j].Address
	})
	return entries
}
