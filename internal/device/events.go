package device

import "time"

// EventType names a change in the fleet.
type EventType string

// Event types emitted by the Registry.
const (
	EventRegistered       EventType = "device.registered"
	EventStatusChanged    EventType = "device.status_changed"
	EventUnregistered     EventType = "device.unregistered"
	EventCommandQueued    EventType = "command.queued"
	EventCommandDelivered EventType = "command.delivered"
)

// AllEventTypes returns every event type the Registry can emit.
func AllEventTypes() []EventType {
	return []EventType{
		EventRegistered,
		EventStatusChanged,
		EventUnregistered,
		EventCommandQueued,
		EventCommandDelivered,
	}
}

// Event describes a registry change. Device is set for device events,
// Command for command events.
type Event struct {
	Type     EventType      `json:"type"`
	DeviceID string         `json:"device_id"`
	Device   *Device        `json:"device,omitempty"`
	Command  *QueuedCommand `json:"command,omitempty"`
	At       time.Time      `json:"at"`
}

// Listener receives registry events. Listeners run synchronously on the
// goroutine that made the change, after the registry lock is released,
// and must not block.
type Listener func(Event)
