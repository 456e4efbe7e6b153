package device

import "errors"

// Domain errors for the device package.
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID is not registered.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidDeviceID is returned when a device ID is empty or malformed.
	ErrInvalidDeviceID = errors.New("device: invalid id")

	// ErrInvalidName is returned when a device name is too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrInvalidCommand is returned when a queued command is empty or too long.
	ErrInvalidCommand = errors.New("device: invalid command")
)
