package device

import (
	"fmt"
	"regexp"
	"unicode/utf8"
)

// Validation constants.
const (
	maxIDLength      = 128
	maxNameLength    = 100
	maxCommandLength = 256
)

// Device ids end up in URL paths and MQTT topics, so separators and
// wildcards are excluded.
var idRegex = regexp.MustCompile(`^[A-Za-z0-9._:-]+$`)

// ValidateID checks a device id.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidDeviceID)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidDeviceID, maxIDLength)
	}
	if !idRegex.MatchString(id) {
		return fmt.Errorf("%w: %q contains disallowed characters", ErrInvalidDeviceID, id)
	}
	return nil
}

// ValidateName checks a device name. Empty names are allowed and replaced
// by DefaultName on registration.
func ValidateName(name string) error {
	if utf8.RuneCountInString(name) > maxNameLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateCommand checks a command name before it is queued.
func ValidateCommand(command string) error {
	if command == "" {
		return fmt.Errorf("%w: empty", ErrInvalidCommand)
	}
	if len(command) > maxCommandLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidCommand, maxCommandLength)
	}
	return nil
}
