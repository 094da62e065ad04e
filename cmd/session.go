// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/Thermoquad/fhtstat/internal/config"
	"github.com/Thermoquad/fhtstat/internal/logging"
	"github.com/Thermoquad/fhtstat/internal/pipeline"
	"github.com/Thermoquad/fhtstat/internal/transport"
	"github.com/Thermoquad/fhtstat/pkg/aggregator"
	"github.com/Thermoquad/fhtstat/pkg/fht"
	"github.com/Thermoquad/fhtstat/pkg/rooms"
	"github.com/spf13/cobra"
)

// session holds what every streaming command needs
type session struct {
	cfg    *config.Config
	logger *logging.Logger
	dir    *rooms.Directory
	tables *fht.Tables
	conn   transport.Connection
	info   string
}

// openSession loads configuration and rooms and opens the connection.
// A quiet session discards log records so they do not disturb a TUI.
func openSession(cmd *cobra.Command, quiet bool) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger := logging.New(cfg.Logging, Version)
	if quiet {
		logger = logging.Discard()
	}

	dir, err := loadRooms(cfg, logger)
	if err != nil {
		return nil, err
	}

	conn, info, err := transport.Open(cfg)
	if err != nil {
		return nil, err
	}

	return &session{
		cfg:    cfg,
		logger: logger,
		dir:    dir,
		tables: fht.DefaultTables(),
		conn:   conn,
		info:   info,
	}, nil
}

// newAggregator creates an aggregator with the configured limits
func newAggregator(cfg *config.Config) *aggregator.Aggregator {
	return aggregator.New(aggregator.Options{
		KeepCount: cfg.Aggregator.KeepCount,
		MaxErrors: cfg.Aggregator.MaxErrors,
	})
}

// pipeline fills in the session-wide pipeline options
func (s *session) pipeline(opts pipeline.Options) *pipeline.Pipeline {
	opts.Source = s.conn
	opts.Directory = s.dir
	opts.Logger = s.logger
	opts.QueueSize = s.cfg.Aggregator.QueueSize
	if opts.Analyzer == nil {
		opts.Analyzer = fht.NewAnalyzer(s.tables, s.logger.With("component", "analyzer").Logger)
	}
	if opts.Aggregator == nil {
		opts.Aggregator = newAggregator(s.cfg)
	}
	return pipeline.New(opts)
}

func (s *session) Close() error {
	return s.conn.Close()
}
