package audit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/fleet-relay/internal/device"
	"github.com/nerrad567/fleet-relay/internal/infrastructure/database"
	"github.com/nerrad567/fleet-relay/migrations"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: filepath.Join(t.TempDir(), "audit.db"), BusyTimeout: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func TestSQLiteRepository_CreateAndList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entries := []Entry{
		{Action: "command.list", EntityType: "bot", UserID: "42", Source: SourceBot, CreatedAt: base},
		{Action: "device.registered", EntityType: "device", EntityID: "pi-1", Source: SourceAPI, CreatedAt: base.Add(time.Minute),
			Details: map[string]any{"device_name": "Kitchen"}},
		{Action: "command.delete", EntityType: "bot", UserID: "42", Source: SourceBot, Outcome: OutcomeDenied, CreatedAt: base.Add(2 * time.Minute)},
	}
	for i := range entries {
		if err := repo.Create(ctx, &entries[i]); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if entries[i].ID == "" {
			t.Error("Create() did not assign an ID")
		}
	}

	res, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 3 || len(res.Entries) != 3 {
		t.Fatalf("List() total=%d len=%d, want 3", res.Total, len(res.Entries))
	}
	if res.Entries[0].Action != "command.delete" {
		t.Errorf("newest entry = %q, want command.delete", res.Entries[0].Action)
	}
	if res.Entries[0].Outcome != OutcomeDenied {
		t.Errorf("Outcome = %q", res.Entries[0].Outcome)
	}
	if res.Entries[2].Outcome != OutcomeOK {
		t.Errorf("default Outcome = %q, want ok", res.Entries[2].Outcome)
	}
	if got := res.Entries[1].Details["device_name"]; got != "Kitchen" {
		t.Errorf("Details round trip = %v", got)
	}
	if !res.Entries[1].CreatedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("CreatedAt = %v", res.Entries[1].CreatedAt)
	}
	if res.Limit != DefaultLimit {
		t.Errorf("Limit = %d, want %d", res.Limit, DefaultLimit)
	}
}

func TestSQLiteRepository_ListFilters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, e := range []Entry{
		{Action: "device.registered", EntityType: "device", EntityID: "a"},
		{Action: "device.registered", EntityType: "device", EntityID: "b"},
		{Action: "device.unregistered", EntityType: "device", EntityID: "a"},
		{Action: "command.users", EntityType: "bot", UserID: "7"},
	} {
		e := e
		if err := repo.Create(ctx, &e); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"by action", Filter{Action: "device.registered"}, 2},
		{"by entity id", Filter{EntityType: "device", EntityID: "a"}, 2},
		{"by user", Filter{UserID: "7"}, 1},
		{"no match", Filter{Action: "nope"}, 0},
		{"limit", Filter{Limit: 1}, 1},
		{"offset past end", Filter{Offset: 10}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(res.Entries) != tt.want {
				t.Errorf("got %d entries, want %d", len(res.Entries), tt.want)
			}
		})
	}
}

func TestSQLiteRepository_CreateValidation(t *testing.T) {
	repo := newTestRepo(t)
	if err := repo.Create(context.Background(), &Entry{Action: "x"}); err == nil {
		t.Error("Create() without entity type expected error")
	}
}

func TestClampFilter(t *testing.T) {
	tests := []struct {
		in, want Filter
	}{
		{Filter{}, Filter{Limit: DefaultLimit}},
		{Filter{Limit: 1000, Offset: -3}, Filter{Limit: MaxLimit}},
		{Filter{Limit: 5, Offset: 2}, Filter{Limit: 5, Offset: 2}},
	}
	for _, tt := range tests {
		if got := clampFilter(tt.in); got != tt.want {
			t.Errorf("clampFilter(%+v) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

type failingRepo struct{ calls int }

func (f *failingRepo) Create(context.Context, *Entry) error {
	f.calls++
	return errors.New("disk full")
}

func (f *failingRepo) List(context.Context, Filter) (*ListResult, error) {
	return nil, errors.New("disk full")
}

func TestTrail(t *testing.T) {
	t.Run("nil repo records nothing", func(t *testing.T) {
		trail := NewTrail(nil)
		if trail.Enabled() {
			t.Error("Enabled() = true for nil repo")
		}
		trail.Record(context.Background(), Entry{Action: "x", EntityType: "y"})
		entries, err := trail.Recent(context.Background(), 5)
		if err != nil || entries != nil {
			t.Errorf("Recent() = %v, %v", entries, err)
		}
	})

	t.Run("write failure is swallowed", func(t *testing.T) {
		repo := &failingRepo{}
		trail := NewTrail(repo)
		trail.Record(context.Background(), Entry{Action: "x", EntityType: "y"})
		if repo.calls != 1 {
			t.Errorf("Create calls = %d, want 1", repo.calls)
		}
		if _, err := trail.Recent(context.Background(), 5); err == nil {
			t.Error("Recent() expected error from repository")
		}
	})
}

func TestTrail_DeviceListener(t *testing.T) {
	repo := newTestRepo(t)
	trail := NewTrail(repo)
	reg := device.NewRegistry(&memDeviceStore{})
	reg.Subscribe(trail.DeviceListener(SourceAPI))

	if _, err := reg.RegisterDevice("pi-1", "Kitchen"); err != nil {
		t.Fatal(err)
	}
	if err := reg.UpdateDeviceStatus("pi-1", false); err != nil {
		t.Fatal(err)
	}
	cmd, err := reg.QueueCommand("pi-1", "reboot", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := reg.GetNextCommand("pi-1"); !ok {
		t.Fatal("GetNextCommand() returned nothing")
	}

	entries, err := trail.Recent(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	// Registered, queued, delivered; the status change is skipped.
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3: %+v", len(entries), entries)
	}

	var sawQueued bool
	for _, e := range entries {
		if e.Action == string(device.EventStatusChanged) {
			t.Error("status change recorded")
		}
		if e.Action == string(device.EventCommandQueued) {
			sawQueued = true
			if e.EntityType != "command" || e.EntityID != cmd.ID {
				t.Errorf("queued entry = %+v", e)
			}
			if e.Details["command"] != "reboot" {
				t.Errorf("queued details = %v", e.Details)
			}
		}
	}
	if !sawQueued {
		t.Error("command.queued not recorded")
	}
}

type memDeviceStore struct{ data map[string]device.Device }

func (m *memDeviceStore) Load() map[string]device.Device { return m.data }

func (m *memDeviceStore) Save(d map[string]device.Device) error {
	m.data = d
	return nil
}
