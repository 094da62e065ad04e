// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package server exposes the aggregated FHT state over HTTP.
//
// Routes:
//
//	GET /               status page
//	GET /fht_data.json  snapshot as JSON
//	GET /fht_data.cbor  snapshot as CBOR
//	GET /ws             snapshot JSON pushed on every change
//	GET /metrics        Prometheus metrics
//	GET /health         liveness
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Thermoquad/fhtstat/internal/logging"
	"github.com/Thermoquad/fhtstat/internal/metrics"
	"github.com/Thermoquad/fhtstat/pkg/aggregator"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

//go:embed static/index.html
var staticFS embed.FS

const (
	defaultPushInterval = time.Second
	writeTimeout        = 10 * time.Second
	shutdownTimeout     = 5 * time.Second
)

// Options configures the server. Aggregator is required.
type Options struct {
	Addr         string
	Aggregator   *aggregator.Aggregator
	Metrics      *metrics.Metrics
	Logger       *logging.Logger
	PushInterval time.Duration
	// AccessLog receives Apache-style request lines; nil disables them
	AccessLog io.Writer
}

// Server serves snapshots of an aggregator
type Server struct {
	opts     Options
	logger   *logging.Logger
	upgrader websocket.Upgrader
	handler  http.Handler
}

// New builds the router and middleware chain
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.PushInterval <= 0 {
		opts.PushInterval = defaultPushInterval
	}

	s := &Server{
		opts:   opts,
		logger: opts.Logger.With("component", "http"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	s.handler = s.buildHandler()
	return s
}

// Handler returns the complete HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) buildHandler() http.Handler {
	r := mux.NewRouter()

	route := func(path string, h http.HandlerFunc) {
		r.Handle(path, s.opts.Metrics.WrapHandler(path, h)).Methods(http.MethodGet)
	}
	route("/", s.handleIndex)
	route("/fht_data.json", s.handleJSON)
	route("/fht_data.cbor", s.handleCBOR)
	route("/health", s.handleHealth)
	route("/ws", s.handleWebSocket)
	if s.opts.Metrics != nil {
		r.Handle("/metrics", s.opts.Metrics.Handler()).Methods(http.MethodGet)
	}

	var h http.Handler = r
	if s.opts.AccessLog != nil {
		h = handlers.LoggingHandler(s.opts.AccessLog, h)
	}
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{s.logger.Logger}),
	)(h)
}

// Run serves on Addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "page unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	data, err := json.Marshal(s.opts.Aggregator.Snapshot())
	if err != nil {
		s.logger.Error("snapshot encode failed", "error", err)
		http.Error(w, "encode failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(data)
}

func (s *Server) handleCBOR(w http.ResponseWriter, r *http.Request) {
	data, err := aggregator.EncodeCBOR(s.opts.Aggregator.Snapshot())
	if err != nil {
		s.logger.Error("snapshot encode failed", "error", err)
		http.Error(w, "encode failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/cbor")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"rooms":   len(s.opts.Aggregator.Rooms()),
		"version": s.opts.Aggregator.Version(),
	})
}

// handleWebSocket sends the snapshot on connect and again whenever the
// aggregator version moves, checked every PushInterval
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Drain client frames so close and ping are processed
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.opts.PushInterval)
	defer ticker.Stop()

	var sent uint64
	first := true
	for {
		if version := s.opts.Aggregator.Version(); first || version != sent {
			snap := s.opts.Aggregator.Snapshot()
			data, err := json.Marshal(snap)
			if err != nil {
				s.logger.Error("snapshot encode failed", "error", err)
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug("websocket write failed", "error", err)
				return
			}
			sent = snap.Version
			first = false
		}

		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

// recoveryLogger adapts slog to handlers.RecoveryHandlerLogger
type recoveryLogger struct {
	logger *slog.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error("handler panic", "panic", fmt.Sprint(v...))
}
