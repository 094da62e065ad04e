// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/fhtstat/internal/config"
	"github.com/Thermoquad/fhtstat/pkg/fht"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	connectTimeout    = 10 * time.Second
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 1000 // milliseconds
	keepAlive         = 60 * time.Second
)

// ErrPublishTimeout is returned when the broker does not acknowledge in time
var ErrPublishTimeout = errors.New("mqtt publish timed out")

// mqttClient is the subset of the paho client used for publishing
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes retained readings to <prefix>/<room>/<metric>
type MQTT struct {
	client mqttClient
	prefix string
	qos    byte
}

// ClientID returns the configured client ID, or a random fhtstat-<id>
func ClientID(cfg config.MQTTConfig) string {
	if cfg.ClientID != "" {
		return cfg.ClientID
	}
	return "fhtstat-" + uuid.NewString()[:8]
}

// StatusTopic is where online/offline availability is published
func StatusTopic(prefix string) string {
	return prefix + "/status"
}

// DialMQTT connects to the configured broker
func DialMQTT(cfg config.MQTTConfig) (*MQTT, error) {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(ClientID(cfg))
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)
	opts.SetWill(StatusTopic(cfg.TopicPrefix), "offline", 1, true)

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.Broker, err)
	}

	client.Publish(StatusTopic(cfg.TopicPrefix), 1, true, "online").WaitTimeout(publishTimeout)

	return newMQTT(client, cfg.TopicPrefix, byte(cfg.QoS)), nil
}

func newMQTT(client mqttClient, prefix string, qos byte) *MQTT {
	return &MQTT{client: client, prefix: prefix, qos: qos}
}

// Topic returns the topic a reading is published to
func (m *MQTT) Topic(r fht.Reading) string {
	return fmt.Sprintf("%s/%s/%s", m.prefix, Slug(r.Room), r.Metric)
}

// Publish sends a reading as a retained message
func (m *MQTT) Publish(ctx context.Context, r fht.Reading) error {
	payload, err := Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode reading: %w", err)
	}

	token := m.client.Publish(m.Topic(r), m.qos, true, payload)
	select {
	case <-token.Done():
	case <-time.After(publishTimeout):
		return ErrPublishTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish: %w", err)
	}
	return nil
}

// Close marks the client offline and disconnects
func (m *MQTT) Close() error {
	m.client.Publish(StatusTopic(m.prefix), 1, true, "offline").WaitTimeout(publishTimeout)
	m.client.Disconnect(disconnectQuiesce)
	return nil
}
