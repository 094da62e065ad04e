// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package publish

import (
	"context"
	"fmt"

	"github.com/Thermoquad/fhtstat/internal/config"
	"github.com/Thermoquad/fhtstat/pkg/fht"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes readings keyed by room so a room's readings stay ordered
type Kafka struct {
	writer messageWriter
}

// NewKafka creates a publisher for the configured topic
func NewKafka(cfg config.KafkaConfig) *Kafka {
	return &Kafka{writer: &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}}
}

// Publish writes one message per reading
func (k *Kafka) Publish(ctx context.Context, r fht.Reading) error {
	payload, err := Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode reading: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(r.Room),
		Value: payload,
	}
	if r.Frame != nil {
		msg.Time = r.Frame.Timestamp()
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

// Close flushes and closes the writer
func (k *Kafka) Close() error {
	return k.writer.Close()
}
