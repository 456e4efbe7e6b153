// Package dispatch turns chat updates into bot commands.
//
// For each update the Dispatcher normalises the sender, enforces the
// authorization gate and a per-user rate limit, parses the command token
// and runs the matching handler from a fixed table indexed by Command.
// Admin-only commands are re-checked against the sender's role before
// the handler runs.
//
// Handler errors never escape: they are logged and the sender receives
// "error: <details>". Each command is recorded in the audit trail and
// counted in metrics when those are enabled.
package dispatch
