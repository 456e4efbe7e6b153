// Package audit keeps a persistent history of what happened through the
// relay: every bot command (with its outcome), device registrations and
// removals, and queued and delivered commands.
//
// Entries live in the SQLite audit_log table created by the embedded
// migrations. Trail is the write path used by the dispatcher and the
// device registry listener; it never fails its caller.
package audit
