// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"

	"github.com/Thermoquad/fhtstat/internal/logging"
	"github.com/Thermoquad/fhtstat/pkg/rooms"
	"github.com/spf13/cobra"
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "Print the room directory",
	Long: `Load the configured room directory and print every assignment.

Each line shows the decimal address printed on the thermostat, the hex
address seen on the air and the room name. Use this to check a directory
file before starting serve.`,
	RunE: runRooms,
}

func init() {
	rootCmd.AddCommand(roomsCmd)
}

func runRooms(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.RoomsFile == "" {
		return fmt.Errorf("no room directory configured (use --rooms or rooms_file)")
	}

	dir, err := loadRooms(cfg, logging.Discard())
	if err != nil {
		return err
	}

	writeRooms(cmd.OutOrStdout(), dir)
	return nil
}

// writeRooms prints the directory sorted by room
func writeRooms(w io.Writer, dir *rooms.Directory) {
	fmt.Fprintf(w, "%-7s %-6s %s\n", "DEVICE", "AIR", "ROOM")
	for _, e := range dir.Entries() {
		fmt.Fprintf(w, "%-7s %-6s %s\n", decimalPairs(e.Address), e.Address, e.Room)
	}
	fmt.Fprintf(w, "%d addresses\n", dir.Len())
}
