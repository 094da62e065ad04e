// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package fht decodes FHT thermostat radio frames as delivered by a CUL
// receiver in its ASCII "T" report format.
//
// A frame on the wire looks like
//
//	TAAAAMMCCPP\r\n
//
// where AAAA is the device address, MM the subaddress selecting the metric,
// CC the command byte (high nibble flags, low nibble command) and PP the
// optional value byte. This package provides the frame codec, a stream
// framer, the protocol analyzer and the message log line format.
package fht

// Frame layout
const (
	FrameMarker = 'T'

	AddressLen    = 4
	SubaddressLen = 2
	CommandLen    = 2

	// MinFrameLen is the marker plus all fixed-width fields; the value is optional.
	MinFrameLen = 1 + AddressLen + SubaddressLen + CommandLen

	// MaxFrameSize bounds a single line including its line ending.
	MaxFrameSize = 64
)

// Line ending delimiting frames on the wire
const (
	CR = '\r'
	LF = '\n'
)

// Sentinel used for every table lookup that misses
const Unknown = "unknown"

// Metric kinds with special handling
const (
	MetricAllValves    = "all-valves"
	MetricDesiredTemp  = "desired-temp"
	MetricMeasuredLow  = "measured-low"
	MetricMeasuredHigh = "measured-high"
	MetricWarnings     = "warnings"
)

// Command labels
const (
	CommandSetValve  = "set-valve"
	CommandSpecial   = "special"
	CommandSetValveA = "set-valve A"
)

// Flag labels, indexed by bit position of the command high nibble
const (
	FlagBattAllowed   = "batt-allowed"  // valve may complain about low battery
	FlagExtended      = "extended"      // always set
	FlagBidirectional = "bidirectional" // thermostat to central unit
	FlagRepetitions   = "repetitions"   // repetition of a previous frame
)

// Warning labels, indexed by the value of the warnings field
const (
	WarningOK         = "OK"
	WarningBattLow    = "BATT LOW"
	WarningTempLow    = "TEMP LOW"
	WarningWindowOpen = "WINDOW OPEN"
	WarningWindowErr  = "WINDOW ERR"
)

// Subaddress to metric kind. New entries are added here as they are
// discovered on the air.
var metricKinds = map[string]string{
	"00": MetricAllValves,

	"14": "mon-from1",
	"15": "mon-to1",
	"16": "mon-from2",
	"17": "mon-to2",
	"18": "tue-from1",
	"19": "tue-to1",
	"1A": "tue-from2",
	"1B": "tue-to2",
	"1C": "wed-from1",
	"1D": "wed-to1",
	"1E": "wed-from2",
	"1F": "wed-to2",
	"20": "thu-from1",
	"21": "thu-to1",
	"22": "thu-from2",
	"23": "thu-to2",
	"24": "fri-from1",
	"25": "fri-to1",
	"26": "fri-from2",
	"27": "fri-to2",
	"28": "sat-from1",
	"29": "sat-to1",
	"2A": "sat-from2",
	"2B": "sat-to2",
	"2C": "sun-from1",
	"2D": "sun-to1",
	"2E": "sun-from2",
	"2F": "sun-to2",

	"3E": "mode",

	"41": MetricDesiredTemp,
	"42": MetricMeasuredLow,
	"43": MetricMeasuredHigh,
	"44": MetricWarnings,
	"4B": "ack",

	"60": "year",
	"61": "month",
	"62": "day",
	"63": "hour",
	"64": "minute",
	"65": "report1",
	"66": "report2",

	"82": "day-temp",
	"84": "night-temp",
	"85": "lowtemp-offset", // alarm temperature difference
	"8A": "windowopen-temp",
}

var commandLabels = map[byte]string{
	'6': CommandSetValve,
	'9': CommandSpecial,
	'A': CommandSetValveA,
}

var flagLabels = [4]string{
	FlagBattAllowed,
	FlagExtended,
	FlagBidirectional,
	FlagRepetitions,
}

var warningLabels = []string{
	WarningOK,
	WarningBattLow,
	WarningTempLow,
	WarningWindowOpen,
	WarningWindowErr,
}
