// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fht

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks frame counts and anomaly rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames     uint64
	DecodedFrames   uint64
	CleanFrames     uint64
	FrameErrors     uint64
	BadMarkers      uint64
	Truncated       uint64
	Overflows       uint64
	Anomalies       uint64
	NewRooms        uint64
	NewMetrics      uint64
	NewCommands     uint64
	NewWarnings     uint64
	DefaultedValues uint64

	// Rates (calculated)
	FrameRate   float64 // frames/sec
	AnomalyRate float64 // anomalous frames/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update counts one frame: either a frame error or a decoded reading
func (s *Statistics) Update(r *Reading, frameErr error) {
	s.TotalFrames++
	s.LastUpdateTime = time.Now()

	if frameErr != nil {
		s.FrameErrors++
		var fe *FrameError
		if errors.As(frameErr, &fe) {
			switch fe.Kind {
			case FrameBadMarker:
				s.BadMarkers++
			case FrameTruncated:
				s.Truncated++
			case FrameOverflow:
				s.Overflows++
			}
		}
		return
	}
	if r == nil {
		return
	}

	s.DecodedFrames++
	if r.ValueStatus == ValueInvalid {
		s.DefaultedValues++
	}
	if r.Errors == 0 {
		s.CleanFrames++
		return
	}

	s.Anomalies++
	if r.Errors.Has(NewRoom) {
		s.NewRooms++
	}
	if r.Errors.Has(NewMetric) {
		s.NewMetrics++
	}
	if r.Errors.Has(NewCommand) {
		s.NewCommands++
	}
	if r.Errors.Has(NewWarning) {
		s.NewWarnings++
	}
}

// CalculateRates calculates frame and anomaly rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.AnomalyRate = float64(s.Anomalies+s.FrameErrors) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var cleanPercent, errorPercent, anomalyPercent float64
	if s.TotalFrames > 0 {
		cleanPercent = float64(s.CleanFrames) * 100.0 / float64(s.TotalFrames)
		errorPercent = float64(s.FrameErrors) * 100.0 / float64(s.TotalFrames)
		anomalyPercent = float64(s.Anomalies) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Clean Frames:    %8d (%.1f%%)\n", s.CleanFrames, cleanPercent)

	if s.FrameErrors > 0 {
		result += fmt.Sprintf("Frame Errors:    %8d (%.1f%%)\n", s.FrameErrors, errorPercent)
		if s.BadMarkers > 0 {
			result += fmt.Sprintf("  Bad Marker:       %5d\n", s.BadMarkers)
		}
		if s.Truncated > 0 {
			result += fmt.Sprintf("  Truncated:        %5d\n", s.Truncated)
		}
		if s.Overflows > 0 {
			result += fmt.Sprintf("  Overflow:         %5d\n", s.Overflows)
		}
	}
	if s.Anomalies > 0 {
		result += fmt.Sprintf("Anomalies:       %8d (%.1f%%)\n", s.Anomalies, anomalyPercent)
		if s.NewRooms > 0 {
			result += fmt.Sprintf("  New Room:         %5d\n", s.NewRooms)
		}
		if s.NewMetrics > 0 {
			result += fmt.Sprintf("  New Metric:       %5d\n", s.NewMetrics)
		}
		if s.NewCommands > 0 {
			result += fmt.Sprintf("  New Command:      %5d\n", s.NewCommands)
		}
		if s.NewWarnings > 0 {
			result += fmt.Sprintf("  New Warning:      %5d\n", s.NewWarnings)
		}
	}
	if s.DefaultedValues > 0 {
		result += fmt.Sprintf("Defaulted Values:%8d\n", s.DefaultedValues)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Anomaly Rate:    %8.1f /sec\n", s.AnomalyRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
