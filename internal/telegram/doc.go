// Package telegram wraps the go-telegram/bot library for the relay: the
// update types received on the webhook and the handful of Bot API methods
// the relay calls back with.
//
// Every method returns ErrNoToken when the bot token is not configured, so
// the relay can run its device API without a bot. Errors never contain the
// token.
package telegram
