package audit

import (
	"context"
	"time"

	"github.com/nerrad567/fleet-relay/internal/device"
)

// writeTimeout bounds a single audit insert made outside a request.
const writeTimeout = 5 * time.Second

// Logger is the logging surface used by Trail.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Trail writes entries without failing the caller. An audit write that
// fails is logged and dropped; the action it describes has already
// happened.
type Trail struct {
	repo   Repository
	logger Logger
}

// NewTrail wraps repo. A nil repo gives a Trail that records nothing.
func NewTrail(repo Repository) *Trail {
	return &Trail{repo: repo, logger: noopLogger{}}
}

// SetLogger sets the logger used for dropped writes.
func (t *Trail) SetLogger(logger Logger) {
	if logger != nil {
		t.logger = logger
	}
}

// Enabled reports whether entries go anywhere.
func (t *Trail) Enabled() bool {
	return t != nil && t.repo != nil
}

// Record stores e.
func (t *Trail) Record(ctx context.Context, e Entry) {
	if !t.Enabled() {
		return
	}
	if err := t.repo.Create(ctx, &e); err != nil {
		t.logger.Warn("audit write failed", "action", e.Action, "entity_id", e.EntityID, "error", err)
	}
}

// Recent returns the newest n entries.
func (t *Trail) Recent(ctx context.Context, n int) ([]Entry, error) {
	if !t.Enabled() {
		return nil, nil
	}
	res, err := t.repo.List(ctx, Filter{Limit: n})
	if err != nil {
		return nil, err
	}
	return res.Entries, nil
}

// DeviceListener returns a device.Listener that records registry events.
// Status changes are not recorded because heartbeats would flood the log.
func (t *Trail) DeviceListener(source string) device.Listener {
	return func(ev device.Event) {
		e := Entry{
			Action:     string(ev.Type),
			EntityType: "device",
			EntityID:   ev.DeviceID,
			Source:     source,
			CreatedAt:  ev.At,
		}
		switch ev.Type {
		case device.EventStatusChanged:
			return
		case device.EventRegistered:
			if ev.Device != nil {
				e.Details = map[string]any{"device_name": ev.Device.Name}
			}
		case device.EventCommandQueued, device.EventCommandDelivered:
			e.EntityType = "command"
			if ev.Command != nil {
				e.EntityID = ev.Command.ID
				e.Details = map[string]any{"device_id": ev.DeviceID, "command": ev.Command.Command}
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		t.Record(ctx, e)
	}
}
