package fleetbus

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/fleet-relay/internal/device"
	"github.com/nerrad567/fleet-relay/internal/infrastructure/mqtt"
)

// MQTTClient is the broker surface the bridge needs. *mqtt.Client
// satisfies it.
type MQTTClient interface {
	PublishJSON(topic string, v any) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	QoS() byte
}

// DeviceRegistry is the part of the device registry fed by heartbeats.
type DeviceRegistry interface {
	UpdateDeviceStatus(id string, online bool) error
	PendingCount(id string) int
}

// Metrics receives heartbeat samples. *influxdb.Client satisfies it.
type Metrics interface {
	WriteHeartbeat(deviceID string, online bool, pending int)
}

// Logger is the logging surface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// heartbeatMessage is the payload on fleetrelay/heartbeat/{device_id}.
// An empty payload means online.
type heartbeatMessage struct {
	OnlineStatus *bool `json:"online_status"`
}

// Bridge announces queued commands on the bus and feeds device
// heartbeats from the bus into the registry.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt     MQTTClient
	registry DeviceRegistry
	topics   mqtt.Topics

	metrics Metrics
	logger  Logger
	mu      sync.RWMutex
}

// New creates a bridge. Call Start to subscribe and register
// OnDeviceEvent with the device registry.
func New(client MQTTClient, registry DeviceRegistry) *Bridge {
	return &Bridge{mqtt: client, registry: registry, logger: noopLogger{}}
}

// SetLogger sets the logger.
func (b *Bridge) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	b.mu.Lock()
	b.logger = logger
	b.mu.Unlock()
}

// SetMetrics enables heartbeat metrics.
func (b *Bridge) SetMetrics(m Metrics) {
	b.mu.Lock()
	b.metrics = m
	b.mu.Unlock()
}

func (b *Bridge) getLogger() Logger {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.logger
}

// Start subscribes to device heartbeats.
func (b *Bridge) Start() error {
	topic := b.topics.AllDeviceHeartbeats()
	if err := b.mqtt.Subscribe(topic, b.mqtt.QoS(), b.handleHeartbeat); err != nil {
		return fmt.Errorf("subscribe to heartbeats: %w", err)
	}
	b.getLogger().Info("subscribed to device heartbeats", "topic", topic)
	return nil
}

// OnDeviceEvent is a device.Listener. Each queued command is published to
// the device's command topic; other events are ignored.
func (b *Bridge) OnDeviceEvent(ev device.Event) {
	if ev.Type != device.EventCommandQueued || ev.Command == nil {
		return
	}
	topic := b.topics.DeviceCommand(ev.DeviceID)
	if err := b.mqtt.PublishJSON(topic, ev.Command); err != nil {
		b.getLogger().Warn("command notification not published",
			"device_id", ev.DeviceID, "command_id", ev.Command.ID, "error", err)
		return
	}
	b.getLogger().Debug("command notification published", "topic", topic, "command_id", ev.Command.ID)
}

func (b *Bridge) handleHeartbeat(topic string, payload []byte) error {
	id, ok := b.topics.DeviceIDFromHeartbeat(topic)
	if !ok {
		return fmt.Errorf("unexpected heartbeat topic %q", topic)
	}

	online := true
	if len(payload) > 0 {
		var msg heartbeatMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("decoding heartbeat from %s: %w", id, err)
		}
		if msg.OnlineStatus != nil {
			online = *msg.OnlineStatus
		}
	}

	if err := b.registry.UpdateDeviceStatus(id, online); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			return fmt.Errorf("heartbeat from unregistered device %s: %w", id, err)
		}
		return fmt.Errorf("recording heartbeat from %s: %w", id, err)
	}

	b.mu.RLock()
	metrics := b.metrics
	b.mu.RUnlock()
	if metrics != nil {
		metrics.WriteHeartbeat(id, online, b.registry.PendingCount(id))
	}
	return nil
}
