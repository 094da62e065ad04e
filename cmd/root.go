// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/Thermoquad/fhtstat/internal/config"
	"github.com/Thermoquad/fhtstat/internal/logging"
	"github.com/Thermoquad/fhtstat/pkg/rooms"
	"github.com/spf13/cobra"
)

// Version is reported by --version and attached to every log record
const Version = "1.0.0"

var (
	configPath string
	roomsPath  string

	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool
)

var rootCmd = &cobra.Command{
	Use:   "fhtstat",
	Short: "FHT thermostat frame decoder",
	Long: `fhtstat - Decode FHT80b thermostat traffic received by a CUL stick.

Frames are decoded into per-room readings (valve positions, temperatures,
warnings, schedules), kept in a bounded history and served over HTTP.
Unknown rooms, metrics, commands and warnings are logged as discoveries.

Connection modes:
  Serial:    --port /dev/ttyACM0 [--baud 38400]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the FHTSTAT_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:      Version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVarP(&roomsPath, "rooms", "r", "", "Room directory file")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 38400, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads the configuration file and applies the flags the user
// set explicitly
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Serial.Port = portName
	}
	if flags.Changed("baud") {
		cfg.Serial.Baud = baudRate
	}
	if flags.Changed("url") {
		cfg.WebSocket.URL = wsURL
	}
	if flags.Changed("username") {
		cfg.WebSocket.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		cfg.WebSocket.NoSSLVerify = wsNoSSLVerify
	}
	if flags.Changed("rooms") {
		cfg.RoomsFile = roomsPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadRooms loads the configured room directory. Without one every
// address is reported under its own name.
func loadRooms(cfg *config.Config, logger *logging.Logger) (*rooms.Directory, error) {
	if cfg.RoomsFile == "" {
		logger.Warn("no room directory configured, using raw addresses")
		return rooms.Empty(), nil
	}
	dir, err := rooms.LoadFile(cfg.RoomsFile)
	if err != nil {
		return nil, fmt.Errorf("loading rooms: %w", err)
	}
	logger.Info("room directory loaded", "path", cfg.RoomsFile, "addresses", dir.Len())
	return dir, nil
}
