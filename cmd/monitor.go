// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/Thermoquad/fhtstat/internal/pipeline"
	"github.com/Thermoquad/fhtstat/pkg/fht"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Monitor rooms and detect malformed frames and protocol discoveries",
	Long: `Track frame errors and protocol discoveries with statistics.

This command decodes each frame and reports:
  - Malformed lines (bad marker, truncated, overlong)
  - Unknown rooms, metrics, commands and warning indices
  - Values that could not be parsed and were reported as 0
  - Statistics and trends (frame rate, anomaly rate)

By default, only problems are displayed. Use --show-all to display every
reading. The terminal UI also shows the latest state of every room.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all readings (not just problems)")
	monitorCmd.Flags().IntVar(&statsInterval, "stats-interval", 60, "Statistics update interval (seconds)")
	monitorCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if statsInterval <= 0 {
		return fmt.Errorf("--stats-interval must be positive")
	}

	s, err := openSession(cmd, useTUI)
	if err != nil {
		return err
	}
	defer s.Close()

	if useTUI {
		return runTUIMode(s)
	}
	return runTextMode(s)
}

// isProblem reports whether a reading deserves attention
func isProblem(r *fht.Reading) bool {
	return r.Errors != 0 || r.ValueStatus == fht.ValueInvalid
}

// describeProblem returns a one-line description of a reading's anomalies
func describeProblem(r *fht.Reading) string {
	msg := fmt.Sprintf("%s (%s) %s %s", r.Room, r.Frame.Address(), r.Metric, fht.FormatFrame(r.Frame))
	if r.Errors != 0 {
		msg += " " + r.Errors.String()
	}
	if r.ValueStatus == fht.ValueInvalid {
		msg += fmt.Sprintf(" value %q not hex", r.Frame.Value())
	}
	return msg
}

// describeFrameError returns a one-line description of a dropped frame
func describeFrameError(err error) string {
	var fe *fht.FrameError
	if errors.As(err, &fe) {
		return fmt.Sprintf("%s: %q", fe.Kind, fe.Line)
	}
	return err.Error()
}

// runTUIMode runs the monitor with the terminal UI
func runTUIMode(s *session) error {
	agg := newAggregator(s.cfg)
	var prog *tea.Program

	p := s.pipeline(pipeline.Options{
		Aggregator: agg,
		OnReading: func(r fht.Reading) {
			prog.Send(readingMsg{reading: r})
		},
		OnFrameError: func(err error) {
			prog.Send(frameErrorMsg{err: err})
		},
	})

	m := initialModel(s.info, s.cfg.Aggregator.KeepCount, showAll, p.Statistics, agg.Snapshot)
	prog = tea.NewProgram(m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := p.Run(ctx); err == nil && ctx.Err() == nil {
			prog.Send(closedMsg{})
		}
	}()

	if _, err := prog.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// runTextMode runs the monitor printing to stdout
func runTextMode(s *session) error {
	fmt.Printf("fhtstat - Monitor\n")
	fmt.Printf("Connection: %s\n", s.info)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All readings\n")
	} else {
		fmt.Printf("Mode: Problems only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	p := s.pipeline(pipeline.Options{
		OnReading: func(r fht.Reading) {
			switch {
			case isProblem(&r):
				timestamp := r.Frame.Timestamp().Format("15:04:05.000")
				fmt.Printf("[%s] \033[1;33mDISCOVERY:\033[0m %s\n", timestamp, describeProblem(&r))
			case showAll:
				fmt.Print(fht.FormatReading(&r))
			}
		},
		OnFrameError: func(err error) {
			timestamp := time.Now().Format("15:04:05.000")
			fmt.Printf("[%s] \033[1;31mFRAME ERROR:\033[0m %s\n", timestamp, describeFrameError(err))
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case err := <-done:
			stats := p.Statistics()
			fmt.Println()
			fmt.Print(stats.String())
			return err

		case <-statsTicker.C:
			stats := p.Statistics()
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		}
	}
}
