package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementBotCommands = "bot_commands"
	MeasurementHeartbeats  = "device_heartbeats"
	MeasurementFleet       = "fleet"
)

// WriteCommand records one dispatched bot command. source is "bot" or
// "api"; outcome is the audit outcome (ok, denied, failed, invalid).
func (c *Client) WriteCommand(command, source, outcome string, elapsed time.Duration) {
	c.writePoint(MeasurementBotCommands,
		map[string]string{"command": command, "source": source, "outcome": outcome},
		map[string]any{"count": 1, "duration_ms": float64(elapsed.Microseconds()) / 1000},
	)
}

// WriteHeartbeat records a device heartbeat and its queue depth.
func (c *Client) WriteHeartbeat(deviceID string, online bool, pending int) {
	c.writePoint(MeasurementHeartbeats,
		map[string]string{"device_id": deviceID},
		map[string]any{"online": online, "pending_commands": pending},
	)
}

// WriteFleet records a snapshot of fleet size.
func (c *Client) WriteFleet(total, online, pending int) {
	c.writePoint(MeasurementFleet, nil,
		map[string]any{"total": total, "online": online, "pending_commands": pending},
	)
}

func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
