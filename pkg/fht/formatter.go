// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fht

import (
	"fmt"
	"strings"
)

// FormatReading formats a reading into a human-readable line
func FormatReading(r *Reading) string {
	timestamp := "--:--:--.---"
	address := ""
	if r.Frame != nil {
		timestamp = r.Frame.timestamp.Format("15:04:05.000")
		address = strings.ToUpper(r.Frame.address)
	}

	result := fmt.Sprintf("[%s] %s (%s) %s %s = %s", timestamp, r.Room, address,
		r.Metric, r.Command, FormatValue(r))

	if len(r.Flags) > 0 {
		result += " [" + strings.Join(r.Flags, ",") + "]"
	}
	if r.Errors != 0 {
		result += " !" + r.Errors.String()
	}
	return result + "\n"
}

// FormatValue renders the display value with the unit implied by the metric
func FormatValue(r *Reading) string {
	if r.ValueStatus != ValueParsed && r.Metric != MetricWarnings {
		return fmt.Sprintf("0 (%s)", r.ValueStatus)
	}

	switch r.Metric {
	case MetricWarnings:
		return r.Warning
	case MetricAllValves:
		return fmt.Sprintf("%.1f%%", r.Value)
	case MetricDesiredTemp:
		return fmt.Sprintf("%.1f°C", r.Value)
	case MetricMeasuredLow, MetricMeasuredHigh:
		return fmt.Sprintf("%.1f", r.Value)
	default:
		return fmt.Sprintf("%d (0x%02X)", r.Raw, r.Raw)
	}
}

// FormatFrame renders the raw fields of a frame
func FormatFrame(f *Frame) string {
	return fmt.Sprintf("T%s %s %s %s", f.address, f.subaddress, f.command, f.value)
}
