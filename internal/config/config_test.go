// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fhtstat.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Serial.Baud != 38400 || cfg.Serial.InitCommand != "X01\n" {
		t.Errorf("unexpected serial defaults: %+v", cfg.Serial)
	}
	if cfg.Aggregator.KeepCount != 5 || cfg.Aggregator.MaxErrors != 100 {
		t.Errorf("unexpected aggregator defaults: %+v", cfg.Aggregator)
	}
	if cfg.HTTPAddr() != ":80" {
		t.Errorf("expected :80, got %s", cfg.HTTPAddr())
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
serial:
  port: /dev/ttyAMA0
rooms_file: rooms.txt
aggregator:
  keep_count: 10
http:
  host: 127.0.0.1
  port: 8080
  push_interval: 250ms
mqtt:
  enabled: true
  broker: tcp://broker:1883
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Serial.Port != "/dev/ttyAMA0" || cfg.Serial.Baud != 38400 {
		t.Errorf("unexpected serial config: %+v", cfg.Serial)
	}
	if cfg.RoomsFile != "rooms.txt" || cfg.Aggregator.KeepCount != 10 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.HTTPAddr() != "127.0.0.1:8080" || cfg.HTTP.PushInterval != 250*time.Millisecond {
		t.Errorf("unexpected http config: %+v", cfg.HTTP)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Broker != "tcp://broker:1883" || cfg.MQTT.TopicPrefix != "fht" {
		t.Errorf("unexpected mqtt config: %+v", cfg.MQTT)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FHTSTAT_SERIAL_PORT", "/dev/ttyUSB1")
	t.Setenv("FHTSTAT_HTTP_PORT", "9090")
	t.Setenv("FHTSTAT_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(writeConfig(t, "serial:\n  port: /dev/ttyAMA0\n"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Serial.Port != "/dev/ttyUSB1" {
		t.Errorf("expected env port, got %s", cfg.Serial.Port)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("expected env http port, got %d", cfg.HTTP.Port)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("unexpected brokers %v", cfg.Kafka.Brokers)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeConfig(t, "serial: [unterminated")); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"baud", func(c *Config) { c.Serial.Baud = 0 }},
		{"keep count", func(c *Config) { c.Aggregator.KeepCount = 0 }},
		{"max errors", func(c *Config) { c.Aggregator.MaxErrors = -1 }},
		{"queue size", func(c *Config) { c.Aggregator.QueueSize = -1 }},
		{"http port", func(c *Config) { c.HTTP.Port = 70000 }},
		{"push interval", func(c *Config) { c.HTTP.PushInterval = 0 }},
		{"mqtt qos", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.QoS = 3 }},
		{"kafka topic", func(c *Config) { c.Kafka.Enabled = true; c.Kafka.Topic = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}

	if err := Default().Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}
