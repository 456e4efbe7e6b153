package fleetbus

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/nerrad567/fleet-relay/internal/device"
	"github.com/nerrad567/fleet-relay/internal/infrastructure/mqtt"
)

type publishedMsg struct {
	topic   string
	payload []byte
}

type mockMQTT struct {
	mu        sync.Mutex
	published []publishedMsg
	handlers  map[string]mqtt.MessageHandler
	pubErr    error
	subErr    error
}

func newMockMQTT() *mockMQTT {
	return &mockMQTT{handlers: make(map[string]mqtt.MessageHandler)}
}

func (m *mockMQTT) PublishJSON(topic string, v any) error {
	if m.pubErr != nil {
		return m.pubErr
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.published = append(m.published, publishedMsg{topic, b})
	m.mu.Unlock()
	return nil
}

func (m *mockMQTT) Subscribe(topic string, _ byte, h mqtt.MessageHandler) error {
	if m.subErr != nil {
		return m.subErr
	}
	m.mu.Lock()
	m.handlers[topic] = h
	m.mu.Unlock()
	return nil
}

func (m *mockMQTT) QoS() byte { return 1 }

func (m *mockMQTT) deliver(pattern, topic string, payload []byte) error {
	m.mu.Lock()
	h := m.handlers[pattern]
	m.mu.Unlock()
	return h(topic, payload)
}

type memStore struct{ data map[string]device.Device }

func (s *memStore) Load() map[string]device.Device { return s.data }

func (s *memStore) Save(d map[string]device.Device) error {
	s.data = d
	return nil
}

type heartbeatSample struct {
	id      string
	online  bool
	pending int
}

type mockMetrics struct{ samples []heartbeatSample }

func (m *mockMetrics) WriteHeartbeat(id string, online bool, pending int) {
	m.samples = append(m.samples, heartbeatSample{id, online, pending})
}

func setup(t *testing.T) (*Bridge, *mockMQTT, *device.Registry) {
	t.Helper()
	client := newMockMQTT()
	reg := device.NewRegistry(&memStore{})
	b := New(client, reg)
	reg.Subscribe(b.OnDeviceEvent)
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return b, client, reg
}

func TestBridge_PublishesQueuedCommands(t *testing.T) {
	_, client, reg := setup(t)

	if _, err := reg.RegisterDevice("pi-1", ""); err != nil {
		t.Fatal(err)
	}
	cmd, err := reg.QueueCommand("pi-1", "reboot", map[string]any{"delay": 5})
	if err != nil {
		t.Fatal(err)
	}

	if len(client.published) != 1 {
		t.Fatalf("published %d messages, want 1 (registration is not announced)", len(client.published))
	}
	msg := client.published[0]
	if msg.topic != "fleetrelay/command/pi-1" {
		t.Errorf("topic = %q", msg.topic)
	}
	var got device.QueuedCommand
	if err := json.Unmarshal(msg.payload, &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != cmd.ID || got.Command != "reboot" {
		t.Errorf("payload = %+v", got)
	}

	// The command stays queued for HTTP delivery.
	if !reg.HasPendingCommands("pi-1") {
		t.Error("command removed from queue by publish")
	}
}

func TestBridge_PublishFailureIsNotFatal(t *testing.T) {
	_, client, reg := setup(t)
	client.pubErr = mqtt.ErrNotConnected

	_, _ = reg.RegisterDevice("pi-1", "")
	if _, err := reg.QueueCommand("pi-1", "reboot", nil); err != nil {
		t.Fatalf("QueueCommand() error = %v", err)
	}
	if reg.PendingCount("pi-1") != 1 {
		t.Error("command lost after publish failure")
	}
}

func TestBridge_Heartbeat(t *testing.T) {
	b, client, reg := setup(t)
	metrics := &mockMetrics{}
	b.SetMetrics(metrics)
	_, _ = reg.RegisterDevice("pi-1", "")
	_, _ = reg.QueueCommand("pi-1", "x", nil)

	pattern := mqtt.Topics{}.AllDeviceHeartbeats()
	tests := []struct {
		name    string
		payload string
		online  bool
	}{
		{"explicit offline", `{"online_status":false}`, false},
		{"explicit online", `{"online_status":true}`, true},
		{"field omitted", `{}`, true},
		{"empty payload", ``, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := client.deliver(pattern, "fleetrelay/heartbeat/pi-1", []byte(tt.payload)); err != nil {
				t.Fatalf("heartbeat error = %v", err)
			}
			d, _ := reg.GetDevice("pi-1")
			if d.Online != tt.online {
				t.Errorf("Online = %v, want %v", d.Online, tt.online)
			}
		})
	}

	if len(metrics.samples) != len(tests) {
		t.Fatalf("metrics samples = %d, want %d", len(metrics.samples), len(tests))
	}
	if metrics.samples[0] != (heartbeatSample{"pi-1", false, 1}) {
		t.Errorf("first sample = %+v", metrics.samples[0])
	}
}

func TestBridge_HeartbeatErrors(t *testing.T) {
	_, client, _ := setup(t)
	pattern := mqtt.Topics{}.AllDeviceHeartbeats()

	err := client.deliver(pattern, "fleetrelay/heartbeat/ghost", nil)
	if !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("unknown device error = %v", err)
	}
	if err := client.deliver(pattern, "fleetrelay/heartbeat/pi-1", []byte("{bad")); err == nil {
		t.Error("malformed payload expected error")
	}
	if err := client.deliver(pattern, "other/topic", nil); err == nil {
		t.Error("foreign topic expected error")
	}
}

func TestBridge_StartFails(t *testing.T) {
	client := newMockMQTT()
	client.subErr = mqtt.ErrNotConnected
	b := New(client, device.NewRegistry(&memStore{}))
	if err := b.Start(); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Start() error = %v", err)
	}
}
