package auth

import (
	"fmt"
	"log/slog"
)

// SeedAdmin makes sure the configured admin can use the bot. It adds the
// admin when missing, inactive or holding a lesser role, and is a no-op
// when the admin is already in place.
func SeedAdmin(reg *Registry, adminID string, logger *slog.Logger) error {
	if adminID == "" {
		return ErrInvalidUserID
	}

	if reg.IsAdmin(adminID) {
		logger.Debug("admin already registered, skipping seed", "user_id", adminID)
		return nil
	}

	if err := reg.AddUser(adminID, RoleAdmin); err != nil {
		return fmt.Errorf("seeding admin user: %w", err)
	}

	logger.Info("admin user seeded", "user_id", adminID)
	return nil
}
