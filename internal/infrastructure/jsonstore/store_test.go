package jsonstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type record struct {
	Name string    `json:"name"`
	Seen Timestamp `json:"seen"`
}

func TestFileStore_LoadMissingFile(t *testing.T) {
	s := New[record](filepath.Join(t.TempDir(), "absent.json"))

	got := s.Load()
	if got == nil {
		t.Fatal("Load() returned nil map")
	}
	if len(got) != 0 {
		t.Errorf("Load() = %v, want empty", got)
	}
}

func TestFileStore_LoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	got := New[record](path).Load()
	if len(got) != 0 {
		t.Errorf("Load() = %v, want empty on corrupt file", got)
	}
}

func TestFileStore_LoadNull(t *testing.T) {
	path := filepath.Join(t.TempDir(), "null.json")
	if err := os.WriteFile(path, []byte("null"), 0o600); err != nil {
		t.Fatal(err)
	}

	got := New[record](path).Load()
	if got == nil {
		t.Fatal("Load() returned nil map for null document")
	}
}

func TestFileStore_SaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "records.json")
	s := New[record](path)

	seen := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	in := map[string]record{
		"a": {Name: "alpha", Seen: Timestamp{seen}},
		"b": {Name: "beta"},
	}
	if err := s.Save(in); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat saved file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %v, want 0600", perm)
	}

	out := s.Load()
	if len(out) != 2 {
		t.Fatalf("Load() returned %d records, want 2", len(out))
	}
	if out["a"].Name != "alpha" || !out["a"].Seen.Equal(seen) {
		t.Errorf("record a = %+v", out["a"])
	}
	if !out["b"].Seen.IsZero() {
		t.Errorf("record b Seen = %v, want zero", out["b"].Seen)
	}
}

func TestFileStore_SaveOverwrites(t *testing.T) {
	s := New[record](filepath.Join(t.TempDir(), "records.json"))

	if err := s.Save(map[string]record{"a": {Name: "alpha"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(map[string]record{"b": {Name: "beta"}}); err != nil {
		t.Fatal(err)
	}

	out := s.Load()
	if _, ok := out["a"]; ok {
		t.Error("old record survived overwrite")
	}
	if out["b"].Name != "beta" {
		t.Errorf("record b = %+v", out["b"])
	}
}

func TestFileStore_SaveFailure(t *testing.T) {
	dir := t.TempDir()
	// A regular file where the parent directory should be.
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	s := New[record](filepath.Join(blocker, "records.json"))
	err := s.Save(map[string]record{"a": {}})
	if !errors.Is(err, ErrSave) {
		t.Errorf("Save() error = %v, want ErrSave", err)
	}
}

func TestTimestamp_UnmarshalLegacy(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
		zero  bool
	}{
		{"rfc3339", `"2025-03-01T12:00:00Z"`, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), false},
		{"legacy with micros", `"2025-03-01T12:00:00.123456"`, time.Date(2025, 3, 1, 12, 0, 0, 123456000, time.Local), false},
		{"legacy without fraction", `"2025-03-01T12:00:00"`, time.Date(2025, 3, 1, 12, 0, 0, 0, time.Local), false},
		{"null", `null`, time.Time{}, true},
		{"empty", `""`, time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts Timestamp
			if err := ts.UnmarshalJSON([]byte(tt.input)); err != nil {
				t.Fatalf("UnmarshalJSON(%s) error = %v", tt.input, err)
			}
			if tt.zero {
				if !ts.IsZero() {
					t.Errorf("got %v, want zero", ts.Time)
				}
				return
			}
			if !ts.Equal(tt.want) {
				t.Errorf("got %v, want %v", ts.Time, tt.want)
			}
		})
	}
}

func TestTimestamp_UnmarshalInvalid(t *testing.T) {
	var ts Timestamp
	if err := ts.UnmarshalJSON([]byte(`"yesterday"`)); err == nil {
		t.Error("expected error for unrecognised timestamp")
	}
	if err := ts.UnmarshalJSON([]byte(`42`)); err == nil {
		t.Error("expected error for non-string timestamp")
	}
}
