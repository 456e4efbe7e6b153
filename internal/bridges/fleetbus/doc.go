// Package fleetbus bridges the device registry onto MQTT.
//
// Outbound, every command queued for a device is published to
// fleetrelay/command/{device_id} so devices holding a broker connection
// can fetch it immediately instead of waiting for their next poll. The
// command stays queued until the device collects it over HTTP.
//
// Inbound, fleetrelay/heartbeat/{device_id} messages update last_seen and
// online status the same way POST /heartbeat does.
package fleetbus
