// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rooms

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const testSource = `# FHT thermostats
[Bedroom]
9604

[Living Room]
96 05
1243
; spare unit
[ Attic ]
0099
`

func TestLoad(t *testing.T) {
	d, err := Load(strings.NewReader(testSource))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	want := []Entry{
		{Address: "0063", Room: "Attic"},
		{Address: "6004", Room: "Bedroom"},
		{Address: "0C2B", Room: "Living Room"},
		{Address: "6005", Room: "Living Room"},
	}
	if got := d.Entries(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if d.Len() != 4 {
		t.Errorf("expected 4 entries, got %d", d.Len())
	}
}

func TestResolve(t *testing.T) {
	d, err := Load(strings.NewReader(testSource))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	tests := []struct {
		address string
		room    string
		found   bool
	}{
		{"6004", "Bedroom", true},
		{"0c2b", "Living Room", true},
		{"0C2B", "Living Room", true},
		{"1a2b", "1A2B", false},
		{"", "", false},
	}

	for _, tt := range tests {
		room, found := d.Resolve(tt.address)
		if room != tt.room || found != tt.found {
			t.Errorf("Resolve(%q) = %q, %v; want %q, %v", tt.address, room, found, tt.room, tt.found)
		}
	}
}

func TestResolve_NilAndEmpty(t *testing.T) {
	var d *Directory
	if room, found := d.Resolve("6004"); found || room != "6004" {
		t.Errorf("nil directory: got %q, %v", room, found)
	}
	if room, found := Empty().Resolve("abcd"); found || room != "ABCD" {
		t.Errorf("empty directory: got %q, %v", room, found)
	}
}

func TestConvertAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"9604", "6004", true},
		{"96 04", "6004", true},
		{"0000", "0000", true},
		{"9999", "6363", true},
		{"960", "", false},
		{"96041", "", false},
		{"96AB", "", false},
	}

	for _, tt := range tests {
		got, err := ConvertAddress(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("ConvertAddress(%q) error = %v, want ok=%v", tt.in, err, tt.ok)
			continue
		}
		if got != tt.want {
			t.Errorf("ConvertAddress(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoad_Errors(t *testing.T) {
	sources := map[string]string{
		"address before header": "9604\n[Bedroom]\n",
		"empty room name":       "[]\n9604\n",
		"bad address":           "[Bedroom]\n96x4\n",
	}

	for name, src := range sources {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(strings.NewReader(src)); !errors.Is(err, ErrInvalidSource) {
				t.Errorf("expected ErrInvalidSource, got %v", err)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rooms.txt")
	if err := os.WriteFile(path, []byte(testSource), 0o644); err != nil {
		t.Fatal(err)
	}
	d, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}
	if room, _ := d.Resolve("6005"); room != "Living Room" {
		t.Errorf("expected Living Room, got %q", room)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}
