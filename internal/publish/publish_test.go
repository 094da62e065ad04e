// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package publish

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/fhtstat/internal/config"
	"github.com/Thermoquad/fhtstat/pkg/fht"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/segmentio/kafka-go"
)

// ============================================================
// Test Helpers
// ============================================================

type staticResolver map[string]string

func (s staticResolver) Resolve(address string) (string, bool) {
	room, ok := s[address]
	return room, ok
}

func bedroomReading(t *testing.T) fht.Reading {
	t.Helper()
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	f, err := fht.Decode([]byte("T60040026AA\r\n"), ts)
	if err != nil {
		t.Fatal(err)
	}
	return fht.NewAnalyzer(nil, nil).Analyze(f, staticResolver{"6004": "Master Bedroom"})
}

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeMQTT struct {
	err          error
	messages     []published
	disconnected bool
}

func (f *fakeMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = p
	case string:
		data = []byte(p)
	}
	f.messages = append(f.messages, published{topic, qos, retained, data})
	return newFakeToken(f.err)
}

func (f *fakeMQTT) Disconnect(uint) { f.disconnected = true }

type fakeKafka struct {
	err    error
	msgs   []kafka.Message
	closed bool
}

func (f *fakeKafka) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func (f *fakeKafka) Close() error {
	f.closed = true
	return nil
}

// ============================================================
// Payload Tests
// ============================================================

func TestNewPayload(t *testing.T) {
	p := NewPayload(bedroomReading(t))

	if p.Room != "Master Bedroom" || p.Address != "6004" || p.Metric != fht.MetricAllValves {
		t.Errorf("unexpected payload %+v", p)
	}
	if p.Command != fht.CommandSetValve || p.ValueStatus != "parsed" {
		t.Errorf("unexpected payload %+v", p)
	}
	if !reflect.DeepEqual(p.Flags, []string{fht.FlagExtended}) {
		t.Errorf("expected [extended], got %v", p.Flags)
	}
	if len(p.Errors) != 0 {
		t.Errorf("expected no errors, got %v", p.Errors)
	}

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), `"warning"`) {
		t.Errorf("warning should be omitted for non-warning metrics: %s", data)
	}
	if !strings.Contains(string(data), `"errors":[]`) {
		t.Errorf("expected empty errors list: %s", data)
	}
}

func TestNewPayload_Errors(t *testing.T) {
	f := fht.NewFrame("1111", "99", "2F", "ZZ", time.Now())
	p := NewPayload(fht.NewAnalyzer(nil, nil).Analyze(f, nil))

	want := []string{"NEW_ROOM", "NEW_COMMAND", "NEW_METRIC"}
	if !reflect.DeepEqual(p.Errors, want) {
		t.Errorf("expected %v, got %v", want, p.Errors)
	}
	if p.ValueStatus != "invalid" {
		t.Errorf("expected invalid value status, got %s", p.ValueStatus)
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Bedroom", "bedroom"},
		{"Master Bedroom", "master-bedroom"},
		{"  Kids' Room #2 ", "kids-room-2"},
		{"Wohnzimmer/Süd", "wohnzimmer-süd"},
		{"6004", "6004"},
		{"///", "unknown"},
		{"", "unknown"},
	}

	for _, tt := range tests {
		if got := Slug(tt.input); got != tt.expected {
			t.Errorf("Slug(%q): expected %q, got %q", tt.input, tt.expected, got)
		}
	}
}

// ============================================================
// MQTT Tests
// ============================================================

func TestMQTT_Publish(t *testing.T) {
	client := &fakeMQTT{}
	m := newMQTT(client, "fht", 1)

	if err := m.Publish(context.Background(), bedroomReading(t)); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if len(client.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(client.messages))
	}

	msg := client.messages[0]
	if msg.topic != "fht/master-bedroom/all-valves" {
		t.Errorf("unexpected topic %s", msg.topic)
	}
	if !msg.retained || msg.qos != 1 {
		t.Errorf("expected retained qos 1, got retained=%v qos=%d", msg.retained, msg.qos)
	}

	var p Payload
	if err := json.Unmarshal(msg.payload, &p); err != nil {
		t.Fatalf("invalid payload: %v", err)
	}
	if p.Room != "Master Bedroom" {
		t.Errorf("expected Master Bedroom, got %s", p.Room)
	}
}

func TestMQTT_PublishError(t *testing.T) {
	client := &fakeMQTT{err: errors.New("not connected")}
	m := newMQTT(client, "fht", 0)

	if err := m.Publish(context.Background(), bedroomReading(t)); err == nil {
		t.Error("expected publish error")
	}
}

func TestMQTT_Close(t *testing.T) {
	client := &fakeMQTT{}
	m := newMQTT(client, "home/fht", 1)
	m.Close()

	if !client.disconnected {
		t.Error("expected disconnect")
	}
	if len(client.messages) != 1 || client.messages[0].topic != "home/fht/status" || string(client.messages[0].payload) != "offline" {
		t.Errorf("expected offline status message, got %+v", client.messages)
	}
}

func TestClientID(t *testing.T) {
	if id := ClientID(config.MQTTConfig{ClientID: "fixed"}); id != "fixed" {
		t.Errorf("expected fixed, got %s", id)
	}
	id := ClientID(config.MQTTConfig{})
	if !strings.HasPrefix(id, "fhtstat-") || len(id) != len("fhtstat-")+8 {
		t.Errorf("unexpected generated client ID %s", id)
	}
}

// ============================================================
// Kafka Tests
// ============================================================

func TestKafka_Publish(t *testing.T) {
	w := &fakeKafka{}
	k := &Kafka{writer: w}
	r := bedroomReading(t)

	if err := k.Publish(context.Background(), r); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "Master Bedroom" {
		t.Errorf("expected room key, got %s", w.msgs[0].Key)
	}
	if !w.msgs[0].Time.Equal(r.Frame.Timestamp()) {
		t.Errorf("expected frame timestamp, got %v", w.msgs[0].Time)
	}

	k.Close()
	if !w.closed {
		t.Error("expected writer closed")
	}
}

// ============================================================
// Multi Tests
// ============================================================

func TestMulti(t *testing.T) {
	ok := &fakeKafka{}
	failing := &fakeKafka{err: errors.New("broker down")}
	m := Multi{&Kafka{writer: ok}, &Kafka{writer: failing}}

	err := m.Publish(context.Background(), bedroomReading(t))
	if err == nil || !strings.Contains(err.Error(), "broker down") {
		t.Errorf("expected joined error, got %v", err)
	}
	if len(ok.msgs) != 1 {
		t.Error("healthy publisher should still receive the reading")
	}

	if err := m.Close(); err != nil {
		t.Errorf("Close error: %v", err)
	}
	if !ok.closed || !failing.closed {
		t.Error("expected all publishers closed")
	}
}
