// Package relay forwards device-targeted commands to the companion server
// that actually executes them. There are no retries; a failed relay is
// reported to the user and the command stays queued for the device.
package relay
