// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exports FHT decoding counters and the latest readings
// to Prometheus.
package metrics

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/Thermoquad/fhtstat/pkg/fht"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Frame results recorded in fht_frames_total
const (
	ResultDecoded = "decoded"
)

// Metrics holds the fhtstat collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	frames       *prometheus.CounterVec
	readings     *prometheus.CounterVec
	anomalies    *prometheus.CounterVec
	values       *prometheus.GaugeVec
	warnings     *prometheus.GaugeVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	warningLabels []string
}

// New creates and registers the collectors. warningLabels lists every
// label the warnings gauge can take for a room.
func New(warningLabels []string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fht_frames_total",
			Help: "Total FHT frames received by result.",
		}, []string{"result"}),
		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fht_readings_total",
			Help: "Total decoded readings by room and metric.",
		}, []string{"room", "metric"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fht_anomalies_total",
			Help: "Total protocol discoveries by error code.",
		}, []string{"kind"}),
		values: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fht_reading_value",
			Help: "Latest converted value by room and metric.",
		}, []string{"room", "metric"}),
		warnings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fht_reading_warning",
			Help: "Current warning state by room (1 active, 0 inactive).",
		}, []string{"room", "warning"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fht_http_requests_total",
			Help: "Total HTTP requests by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fht_http_request_duration_seconds",
			Help:    "HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		warningLabels: append(append([]string(nil), warningLabels...), fht.Unknown),
	}

	m.registry.MustRegister(
		m.frames,
		m.readings,
		m.anomalies,
		m.values,
		m.warnings,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the private registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveReading records a decoded reading
func (m *Metrics) ObserveReading(r *fht.Reading) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(ResultDecoded).Inc()
	m.readings.WithLabelValues(r.Room, r.Metric).Inc()

	for _, code := range r.Errors.Codes() {
		m.anomalies.WithLabelValues(code.String()).Inc()
	}

	switch {
	case r.Metric == fht.MetricWarnings:
		for _, label := range m.warningLabels {
			v := 0.0
			if label == r.Warning {
				v = 1
			}
			m.warnings.WithLabelValues(r.Room, label).Set(v)
		}
	case r.Metric != fht.Unknown && r.ValueStatus == fht.ValueParsed:
		m.values.WithLabelValues(r.Room, r.Metric).Set(r.Value)
	}
}

// ObserveFrameError records a malformed frame by kind
func (m *Metrics) ObserveFrameError(err error) {
	if m == nil {
		return
	}
	result := "error"
	var fe *fht.FrameError
	if errors.As(err, &fe) {
		result = fe.Kind.String()
	}
	m.frames.WithLabelValues(result).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController reach the underlying writer
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Hijack passes connection takeover through for websocket upgrades
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// WrapHandler counts requests and durations for a route
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		m.httpRequests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
