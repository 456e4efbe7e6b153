// Package api implements the HTTP boundary of Fleet Relay.
//
// This package provides:
//   - the Telegram webhook endpoint, which hands updates to the dispatcher
//   - device endpoints for registration, heartbeats, command polling and
//     device-initiated file commands
//   - a WebSocket hub that streams device registry events
//   - a middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Security
//
// When security.jwt.secret is set, /register issues a device token and the
// device endpoints require it as a Bearer token whose subject matches the
// device id in the request. Re-registering an existing id requires that
// device's token, and WebSocket clients holding a device token only see
// events for their own device. Admin-only reads (/devices and the devices and
// users commands) are gated on the X-User-ID header naming an active admin.
// Without JWTs that header is trivially spoofable; deployments exposing the
// relay publicly should set a secret.
//
// # Graceful Degradation
//
// MQTT, InfluxDB and the audit database are optional. The server runs
// without any of them.
package api
