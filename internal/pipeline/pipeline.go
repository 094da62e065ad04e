// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package pipeline connects the CUL byte stream to the aggregator.
//
// An ingestion goroutine reads the source, frames and decodes lines, logs
// them to the message log and analyzes them. Readings and frame errors are
// handed over a buffered channel to a dispatcher goroutine, which applies
// them to the aggregator, metrics, publishers and observers in arrival
// order.
package pipeline

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/Thermoquad/fhtstat/internal/logging"
	"github.com/Thermoquad/fhtstat/internal/metrics"
	"github.com/Thermoquad/fhtstat/internal/publish"
	"github.com/Thermoquad/fhtstat/internal/transport"
	"github.com/Thermoquad/fhtstat/pkg/aggregator"
	"github.com/Thermoquad/fhtstat/pkg/fht"
	"golang.org/x/sync/errgroup"
)

const (
	defaultQueueSize = 64
	readBufferSize   = 128
	retryDelay       = 100 * time.Millisecond
)

// FrameLogger records every decoded frame
type FrameLogger interface {
	Write(f *fht.Frame) error
}

// Options configures a pipeline. Only Source is required.
type Options struct {
	Source     io.Reader
	Directory  fht.Resolver
	Analyzer   *fht.Analyzer
	Aggregator *aggregator.Aggregator
	MessageLog FrameLogger
	Metrics    *metrics.Metrics
	Publisher  publish.Publisher
	Logger     *logging.Logger
	QueueSize  int

	// Clock stamps frames on arrival; defaults to time.Now
	Clock func() time.Time

	// Called from the dispatcher goroutine
	OnReading    func(r fht.Reading)
	OnFrameError func(err error)
}

type event struct {
	reading fht.Reading
	err     error
}

// Pipeline runs ingestion and dispatch
type Pipeline struct {
	opts   Options
	logger *logging.Logger

	mu    sync.Mutex
	stats *fht.Statistics
}

// New creates a pipeline, filling in defaults for unset options
func New(opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Analyzer == nil {
		opts.Analyzer = fht.NewAnalyzer(nil, opts.Logger.With("component", "analyzer").Logger)
	}
	if opts.Aggregator == nil {
		opts.Aggregator = aggregator.New(aggregator.Options{})
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Pipeline{
		opts:   opts,
		logger: opts.Logger.With("component", "pipeline"),
		stats:  fht.NewStatistics(),
	}
}

// Aggregator returns the state the pipeline feeds
func (p *Pipeline) Aggregator() *aggregator.Aggregator {
	return p.opts.Aggregator
}

// Statistics returns a copy of the running counters
func (p *Pipeline) Statistics() fht.Statistics {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := *p.stats
	s.CalculateRates()
	return s
}

// ResetStatistics zeroes the running counters
func (p *Pipeline) ResetStatistics() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Reset()
}

// Run blocks until the source ends or ctx is cancelled. Every reading
// queued before that point is dispatched before Run returns.
func (p *Pipeline) Run(ctx context.Context) error {
	events := make(chan event, p.opts.QueueSize)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(events)
		return p.ingest(gctx, events)
	})
	g.Go(func() error {
		p.dispatch(ctx, events)
		return nil
	})

	// Unblock a pending Read on shutdown
	stop := context.AfterFunc(ctx, func() {
		if c, ok := p.opts.Source.(io.Closer); ok {
			c.Close()
		}
	})
	defer stop()

	return g.Wait()
}

func (p *Pipeline) ingest(ctx context.Context, events chan<- event) error {
	framer := fht.NewFramer()
	buf := make([]byte, readBufferSize)

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := p.opts.Source.Read(buf)
		for i := 0; i < n; i++ {
			line, ferr := framer.FeedByte(buf[i])
			if ferr != nil {
				events <- event{err: ferr}
				continue
			}
			if line != nil {
				events <- p.decode(line)
			}
		}

		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, io.EOF) || errors.Is(err, transport.ErrConnectionClosed) {
			p.logger.Info("source closed", "error", err)
			return nil
		}

		p.logger.Warn("read error", "error", err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retryDelay):
		}
	}
}

func (p *Pipeline) decode(line []byte) event {
	f, err := fht.Decode(line, p.opts.Clock())
	if err != nil {
		return event{err: err}
	}

	if p.opts.MessageLog != nil {
		if err := p.opts.MessageLog.Write(f); err != nil {
			p.logger.Error("message log write failed", "error", err)
		}
	}

	return event{reading: p.opts.Analyzer.Analyze(f, p.opts.Directory)}
}

func (p *Pipeline) dispatch(ctx context.Context, events <-chan event) {
	for ev := range events {
		p.mu.Lock()
		if ev.err != nil {
			p.stats.Update(nil, ev.err)
		} else {
			p.stats.Update(&ev.reading, nil)
		}
		p.mu.Unlock()

		if ev.err != nil {
			p.handleFrameError(ev.err)
			continue
		}
		p.handleReading(ctx, ev.reading)
	}
}

func (p *Pipeline) handleFrameError(err error) {
	p.logger.Warn("dropped frame", "error", err)
	p.opts.Metrics.ObserveFrameError(err)
	if p.opts.OnFrameError != nil {
		p.opts.OnFrameError(err)
	}
}

func (p *Pipeline) handleReading(ctx context.Context, r fht.Reading) {
	p.opts.Aggregator.Apply(r.Room, r)
	p.opts.Metrics.ObserveReading(&r)

	if p.opts.Publisher != nil && ctx.Err() == nil {
		if err := p.opts.Publisher.Publish(ctx, r); err != nil {
			p.logger.Warn("publish failed", "room", r.Room, "metric", r.Metric, "error", err)
		}
	}

	if p.opts.OnReading != nil {
		p.opts.OnReading(r)
	}
}
