// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the fhtstat YAML configuration.
//
// Values are layered: built-in defaults, then the YAML file (if any), then
// FHTSTAT_* environment variables. Command line flags are applied on top by
// the cmd package.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when validation fails
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the root configuration structure
type Config struct {
	Serial     SerialConfig     `yaml:"serial"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	RoomsFile  string           `yaml:"rooms_file"`
	MessageLog MessageLogConfig `yaml:"message_log"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	HTTP       HTTPConfig       `yaml:"http"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SerialConfig contains CUL serial port settings.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
	// InitCommand is written once after opening to enable FHT reception.
	InitCommand string `yaml:"init_command"`
}

// WebSocketConfig contains settings for a remote serial bridge.
type WebSocketConfig struct {
	URL         string `yaml:"url"`
	Username    string `yaml:"username"`
	NoSSLVerify bool   `yaml:"no_ssl_verify"`
}

// MessageLogConfig contains the append-only frame log settings.
type MessageLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// AggregatorConfig contains presentation state limits.
type AggregatorConfig struct {
	KeepCount int `yaml:"keep_count"`
	MaxErrors int `yaml:"max_errors"`
	QueueSize int `yaml:"queue_size"`
}

// HTTPConfig contains presentation server settings.
type HTTPConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	PushInterval time.Duration `yaml:"push_interval"`
}

// MQTTConfig contains MQTT publishing settings.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
}

// KafkaConfig contains Kafka publishing settings.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Baud:        38400,
			InitCommand: "X01\n",
		},
		MessageLog: MessageLogConfig{
			Enabled: true,
			Dir:     "data",
		},
		Aggregator: AggregatorConfig{
			KeepCount: 5,
			MaxErrors: 100,
			QueueSize: 64,
		},
		HTTP: HTTPConfig{
			Port:         80,
			PushInterval: time.Second,
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			TopicPrefix: "fht",
			QoS:         1,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "fht-readings",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads configuration from a YAML file. An empty path yields the
// defaults with environment overrides applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies FHTSTAT_* environment variables
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FHTSTAT_SERIAL_PORT"); v != "" {
		cfg.Serial.Port = v
	}
	if v := os.Getenv("FHTSTAT_SERIAL_BAUD"); v != "" {
		if baud, err := strconv.Atoi(v); err == nil {
			cfg.Serial.Baud = baud
		}
	}
	if v := os.Getenv("FHTSTAT_ROOMS_FILE"); v != "" {
		cfg.RoomsFile = v
	}
	if v := os.Getenv("FHTSTAT_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.Port = port
		}
	}
	if v := os.Getenv("FHTSTAT_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("FHTSTAT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("FHTSTAT_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("FHTSTAT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("%w: serial.baud must be positive", ErrInvalidConfig)
	}
	if c.Aggregator.KeepCount <= 0 {
		return fmt.Errorf("%w: aggregator.keep_count must be positive", ErrInvalidConfig)
	}
	if c.Aggregator.MaxErrors <= 0 {
		return fmt.Errorf("%w: aggregator.max_errors must be positive", ErrInvalidConfig)
	}
	if c.Aggregator.QueueSize < 0 {
		return fmt.Errorf("%w: aggregator.queue_size must not be negative", ErrInvalidConfig)
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("%w: http.port out of range", ErrInvalidConfig)
	}
	if c.HTTP.PushInterval <= 0 {
		return fmt.Errorf("%w: http.push_interval must be positive", ErrInvalidConfig)
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("%w: mqtt.broker is required", ErrInvalidConfig)
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			return fmt.Errorf("%w: mqtt.qos must be 0, 1 or 2", ErrInvalidConfig)
		}
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("%w: kafka.brokers and kafka.topic are required", ErrInvalidConfig)
	}
	return nil
}

// HTTPAddr returns the listen address for the presentation server
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}
