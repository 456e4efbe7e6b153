package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every relay topic.
const TopicPrefix = "fleetrelay"

// Topics builds relay topic names:
//
//	fleetrelay/command/{device_id}    relay -> device, one message per queued command
//	fleetrelay/heartbeat/{device_id}  device -> relay, {"online_status": bool}
//	fleetrelay/system/status          retained relay online/offline status
type Topics struct{}

// DeviceCommand is where queued commands for a device are announced.
func (Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, deviceID)
}

// DeviceHeartbeat is where a device reports it is alive.
func (Topics) DeviceHeartbeat(deviceID string) string {
	return fmt.Sprintf("%s/heartbeat/%s", TopicPrefix, deviceID)
}

// AllDeviceHeartbeats matches every device heartbeat.
func (Topics) AllDeviceHeartbeats() string {
	return TopicPrefix + "/heartbeat/+"
}

// SystemStatus carries the relay's retained online/offline status.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// DeviceIDFromHeartbeat extracts the device id from a heartbeat topic.
func (Topics) DeviceIDFromHeartbeat(topic string) (string, bool) {
	id, ok := strings.CutPrefix(topic, TopicPrefix+"/heartbeat/")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
