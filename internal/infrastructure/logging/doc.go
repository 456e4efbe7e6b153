// Package logging provides structured logging for Fleet Relay.
//
// It wraps log/slog so every entry carries the service name and version,
// with JSON output for production and text output for development.
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("starting relay", "port", 8080)
//	logger.Component("dispatch").Warn("rate limited", "user_id", id)
//
// Never log the bot token, webhook secret or device tokens. Use
// config.Config.BotTokenHash when the bot needs to be identified in logs.
package logging
