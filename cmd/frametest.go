// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/fhtstat/internal/pipeline"
	"github.com/Thermoquad/fhtstat/pkg/fht"
	"github.com/spf13/cobra"
)

var frameTestTimeout int

var frameTestCmd = &cobra.Command{
	Use:   "frame_test",
	Short: "Test connection by waiting for a valid FHT frame",
	Long: `Wait for a valid FHT frame on the connection until timeout.

This command connects to a serial port or WebSocket, sends the CUL init
command and waits for any well-formed FHT frame. Malformed lines are
counted and ignored.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error

FHT thermostats transmit roughly every two minutes, so allow a timeout of
at least 150 seconds for a reliable result.`,
	RunE: runFrameTest,
}

func init() {
	rootCmd.AddCommand(frameTestCmd)
	frameTestCmd.Flags().IntVar(&frameTestTimeout, "timeout", 150, "Timeout in seconds to wait for a frame")
}

func runFrameTest(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer s.Close()

	fmt.Printf("fhtstat - Frame Test\n")
	fmt.Printf("Connection: %s\n", s.info)
	fmt.Printf("Timeout: %d seconds\n", frameTestTimeout)
	fmt.Printf("Waiting for valid FHT frame...\n\n")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(frameTestTimeout)*time.Second)
	defer cancel()

	readings := make(chan fht.Reading, 1)
	invalidFrames := 0

	p := s.pipeline(pipeline.Options{
		OnReading: func(r fht.Reading) {
			select {
			case readings <- r:
			default:
			}
			cancel()
		},
		OnFrameError: func(error) {
			invalidFrames++
		},
	})

	runErr := p.Run(ctx)

	select {
	case r := <-readings:
		if invalidFrames > 0 {
			fmt.Printf("(skipped %d malformed lines)\n", invalidFrames)
		}
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Frame: %s\n", fht.FormatFrame(r.Frame))
		fmt.Printf("  Room: %s\n", r.Room)
		fmt.Printf("  Metric: %s\n", r.Metric)
		fmt.Printf("  Value: %s\n", fht.FormatValue(&r))
		fmt.Printf("  Anomalies: %s\n", r.Errors)
		os.Exit(0)
	default:
	}

	if runErr != nil || ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "Read error: connection closed before a frame arrived\n")
		os.Exit(2)
	}

	fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", frameTestTimeout)
	os.Exit(1)
	return nil
}
