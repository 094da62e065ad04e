// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/Thermoquad/fhtstat/internal/pipeline"
	"github.com/Thermoquad/fhtstat/pkg/fht"
	"github.com/spf13/cobra"
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display decoded frames in human-readable format",
	Long: `Continuously decode and display FHT frames as they arrive.

Each frame is shown with its timestamp, room, address, metric, command,
converted value and flags. Discoveries (unknown rooms, metrics, commands or
warnings) are appended as !NEW_* markers.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, true)
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Printf("fhtstat - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", s.info)
	fmt.Printf("Rooms: %d known addresses\n", s.dir.Len())
	fmt.Printf("Press Ctrl+C to exit\n\n")

	p := s.pipeline(pipeline.Options{
		OnReading: func(r fht.Reading) {
			fmt.Print(fht.FormatReading(&r))
		},
		OnFrameError: func(err error) {
			fmt.Printf("[ERROR] %v\n", err)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := p.Run(ctx); err != nil {
		return err
	}
	fmt.Println("Connection closed")
	return nil
}
