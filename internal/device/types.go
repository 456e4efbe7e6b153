package device

import (
	"maps"
	"time"

	"github.com/nerrad567/fleet-relay/internal/infrastructure/jsonstore"
)

// defaultNamePrefixLen is how much of the id goes into a generated name.
const defaultNamePrefixLen = 8

// Device is a remote endpoint that registers with the relay and polls for
// queued commands. Field names match the devices.json layout.
type Device struct {
	ID               string              `json:"device_id"`
	Name             string              `json:"device_name"`
	RegistrationDate jsonstore.Timestamp `json:"registration_date"`
	LastSeen         jsonstore.Timestamp `json:"last_seen"`
	// Online is advisory only: it is whatever the device last reported and
	// never gates queueing.
	Online bool `json:"online_status"`
}

// DefaultName returns the name given to devices that register without one.
func DefaultName(id string) string {
	if len(id) > defaultNamePrefixLen {
		id = id[:defaultNamePrefixLen]
	}
	return "Device " + id
}

// QueuedCommand is an instruction waiting for a device to collect it.
// IDs are ULIDs, so they sort in queueing order.
type QueuedCommand struct {
	ID       string         `json:"id"`
	DeviceID string         `json:"device_id"`
	Command  string         `json:"command"`
	Params   map[string]any `json:"params,omitempty"`
	QueuedAt time.Time      `json:"queued_at"`
}

// Clone returns a copy whose Params map is independent of the original.
// Nested values inside Params are shared.
func (c QueuedCommand) Clone() QueuedCommand {
	c.Params = maps.Clone(c.Params)
	return c
}

// Stats summarises the fleet for status reports.
type Stats struct {
	Total           int `json:"total"`
	Online          int `json:"online"`
	PendingCommands int `json:"pending_commands"`
}
