// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/fhtstat/internal/config"
	"github.com/Thermoquad/fhtstat/internal/logging"
	"github.com/Thermoquad/fhtstat/internal/metrics"
	"github.com/Thermoquad/fhtstat/internal/msglog"
	"github.com/Thermoquad/fhtstat/internal/pipeline"
	"github.com/Thermoquad/fhtstat/internal/publish"
	"github.com/Thermoquad/fhtstat/internal/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveStatsInterval time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Decode frames and serve the room state over HTTP",
	Long: `Run the FHT decoder daemon.

Frames received from the CUL are written to the message log, decoded and
kept as a bounded per-room history. The history is served as JSON and CBOR,
pushed to WebSocket clients on every change and exported as Prometheus
metrics. Readings can also be published to MQTT and Kafka.

Runs until interrupted or until the connection closes.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().DurationVar(&serveStatsInterval, "stats-interval", time.Minute, "Statistics log interval (0 disables)")
}

func runServe(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, false)
	if err != nil {
		return err
	}
	defer s.Close()

	logger := s.logger
	logger.Info("connected", "source", s.info)

	m := metrics.New(s.tables.Warnings)
	agg := newAggregator(s.cfg)

	opts := pipeline.Options{
		Aggregator: agg,
		Metrics:    m,
	}

	if s.cfg.MessageLog.Enabled {
		w, err := msglog.NewWriter(s.cfg.MessageLog.Dir)
		if err != nil {
			return err
		}
		defer w.Close()
		opts.MessageLog = w
		logger.Info("message log enabled", "dir", s.cfg.MessageLog.Dir)
	}

	if pub := openPublishers(s.cfg, logger); pub != nil {
		defer pub.Close()
		opts.Publisher = pub
	}

	p := s.pipeline(opts)
	srv := server.New(server.Options{
		Addr:         s.cfg.HTTPAddr(),
		Aggregator:   agg,
		Metrics:      m,
		Logger:       logger,
		PushInterval: s.cfg.HTTP.PushInterval,
		AccessLog:    os.Stdout,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// The daemon has nothing to serve once the source is gone
		defer cancel()
		return p.Run(gctx)
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if serveStatsInterval > 0 {
		g.Go(func() error {
			logStatistics(gctx, p, logger, serveStatsInterval)
			return nil
		})
	}

	err = g.Wait()
	stats := p.Statistics()
	logger.Info("shutdown",
		"frames", stats.TotalFrames,
		"decoded", stats.DecodedFrames,
		"frame_errors", stats.FrameErrors,
		"anomalies", stats.Anomalies)
	return err
}

// openPublishers connects the enabled brokers. A broker that cannot be
// reached is logged and skipped.
func openPublishers(cfg *config.Config, logger *logging.Logger) publish.Publisher {
	var pubs publish.Multi

	if cfg.MQTT.Enabled {
		mq, err := publish.DialMQTT(cfg.MQTT)
		if err != nil {
			logger.Error("mqtt unavailable, publishing disabled", "broker", cfg.MQTT.Broker, "error", err)
		} else {
			logger.Info("mqtt publishing enabled", "broker", cfg.MQTT.Broker, "prefix", cfg.MQTT.TopicPrefix)
			pubs = append(pubs, mq)
		}
	}
	if cfg.Kafka.Enabled {
		logger.Info("kafka publishing enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
		pubs = append(pubs, publish.NewKafka(cfg.Kafka))
	}

	if len(pubs) == 0 {
		return nil
	}
	return pubs
}

// logStatistics logs the pipeline counters every interval
func logStatistics(ctx context.Context, p *pipeline.Pipeline, logger *logging.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := p.Statistics()
			logger.Info("statistics",
				"frames", stats.TotalFrames,
				"clean", stats.CleanFrames,
				"frame_errors", stats.FrameErrors,
				"anomalies", stats.Anomalies,
				"defaulted_values", stats.DefaultedValues,
				"frame_rate", stats.FrameRate)
		}
	}
}
