package jsonstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrSave is wrapped by every error returned from FileStore.Save.
var ErrSave = errors.New("saving registry file")

// Logger defines the logging interface used by FileStore.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// FileStore persists a string-keyed map of records as a single JSON document.
//
// The file is the source of truth and is rewritten wholesale on every Save.
// Concurrent writers from different processes are not coordinated: the
// last writer wins. Callers serialise access within a process.
type FileStore[T any] struct {
	path   string
	logger Logger
}

// New creates a store backed by the file at path. The file is not touched
// until Load or Save is called.
func New[T any](path string) *FileStore[T] {
	return &FileStore[T]{
		path:   path,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the store.
func (s *FileStore[T]) SetLogger(logger Logger) {
	s.logger = logger
}

// Path returns the backing file path.
func (s *FileStore[T]) Path() string {
	return s.path
}

// Load reads the backing file. A missing, unreadable or malformed file
// yields an empty map; the problem is logged rather than returned so a
// corrupt registry never prevents startup.
func (s *FileStore[T]) Load() map[string]T {
	records := make(map[string]T)

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug("registry file not found, starting empty", "path", s.path)
		return records
	}
	if err != nil {
		s.logger.Error("reading registry file", "path", s.path, "error", err)
		return records
	}

	if err := json.Unmarshal(data, &records); err != nil {
		s.logger.Error("parsing registry file", "path", s.path, "error", err)
		return make(map[string]T)
	}
	if records == nil {
		// File contained JSON null.
		records = make(map[string]T)
	}

	s.logger.Debug("registry file loaded", "path", s.path, "count", len(records))
	return records
}

// Save overwrites the backing file with records, creating the parent
// directory if needed. Failures are logged and returned wrapping ErrSave.
func (s *FileStore[T]) Save(records map[string]T) error {
	if records == nil {
		records = map[string]T{}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		s.logger.Error("encoding registry", "path", s.path, "error", err)
		return fmt.Errorf("%w: encoding: %w", ErrSave, err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		s.logger.Error("creating registry directory", "path", s.path, "error", err)
		return fmt.Errorf("%w: creating directory: %w", ErrSave, err)
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		s.logger.Error("writing registry file", "path", s.path, "error", err)
		return fmt.Errorf("%w: %w", ErrSave, err)
	}

	return nil
}
