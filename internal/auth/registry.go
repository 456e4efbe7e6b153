package auth

import (
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/fleet-relay/internal/infrastructure/jsonstore"
)

// Store persists the user map. *jsonstore.FileStore[User] satisfies it.
type Store interface {
	Load() map[string]User
	Save(map[string]User) error
}

// Logger defines the logging interface used by the Registry.
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

// Registry is the authoritative list of chat users allowed to use the bot.
//
// The in-memory map is loaded from the Store on construction and written
// back in full after every mutation. If a save fails the in-memory change
// is kept and the error is returned.
//
// All public methods are thread-safe.
type Registry struct {
	store  Store
	users  map[string]User
	mu     sync.RWMutex
	logger Logger
	now    func() time.Time
}

// NewRegistry creates a user registry and loads its current contents.
func NewRegistry(store Store) *Registry {
	r := &Registry{
		store:  store,
		logger: noopLogger{},
		now:    func() time.Time { return time.Now().UTC() },
	}
	r.users = r.load()
	return r
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Reload replaces the in-memory map with the store's contents.
func (r *Registry) Reload() {
	users := r.load()

	r.mu.Lock()
	r.users = users
	r.mu.Unlock()

	r.logger.Info("user registry reloaded", "count", len(users))
}

func (r *Registry) load() map[string]User {
	users := r.store.Load()
	if users == nil {
		users = make(map[string]User)
	}
	for id, u := range users {
		u.ID = id
		users[id] = u
	}
	return users
}

// saveLocked persists the current map. Caller must hold r.mu.
func (r *Registry) saveLocked() error {
	if err := r.store.Save(maps.Clone(r.users)); err != nil {
		return fmt.Errorf("persisting users: %w", err)
	}
	return nil
}

// AddUser creates or replaces a user with fresh timestamps, active=true.
func (r *Registry) AddUser(id string, role Role) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrInvalidUserID
	}
	if role == "" {
		role = RoleUser
	}
	if !IsValidRole(role) {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	now := jsonstore.Timestamp{Time: r.now()}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.users[id] = User{
		ID:               id,
		Role:             role,
		RegistrationDate: now,
		LastActive:       now,
		Active:           true,
	}

	if err := r.saveLocked(); err != nil {
		return err
	}
	r.logger.Info("user added", "user_id", id, "role", role)
	return nil
}

// RemoveUser deletes a user. Returns ErrUserNotFound if absent.
func (r *Registry) RemoveUser(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return ErrUserNotFound
	}
	delete(r.users, id)

	if err := r.saveLocked(); err != nil {
		return err
	}
	r.logger.Info("user removed", "user_id", id)
	return nil
}

// DeactivateUser marks a user inactive without removing the record.
func (r *Registry) DeactivateUser(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Active = false
	r.users[id] = u

	if err := r.saveLocked(); err != nil {
		return err
	}
	r.logger.Info("user deactivated", "user_id", id)
	return nil
}

// UpdateLastActive stamps the user's last_active time.
func (r *Registry) UpdateLastActive(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.LastActive = jsonstore.Timestamp{Time: r.now()}
	r.users[id] = u

	return r.saveLocked()
}

// IsAuthorized reports whether id exists and is active.
func (r *Registry) IsAuthorized(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	return ok && u.Active
}

// IsAdmin reports whether id exists, is active and holds the admin role.
func (r *Registry) IsAdmin(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	return ok && u.IsAdmin()
}

// Can reports whether id is an active user whose role grants perm.
func (r *Registry) Can(id string, perm Permission) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	return ok && u.Active && HasPermission(u.Role, perm)
}

// GetUser returns a copy of the user record.
func (r *Registry) GetUser(id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

// GetAllUsers returns a copy of every user keyed by id.
func (r *Registry) GetAllUsers() map[string]User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return maps.Clone(r.users)
}
