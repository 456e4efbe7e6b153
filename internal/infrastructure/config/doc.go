// Package config handles loading and validating Fleet Relay configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (FLEETRELAY_*)
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The bot token, webhook secret and JWT secret should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - Log Config.BotTokenHash, never the token
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Bot.AdminID)
package config
