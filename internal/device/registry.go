package device

import (
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/fleet-relay/internal/infrastructure/jsonstore"
)

// Store persists device metadata. *jsonstore.FileStore[Device] satisfies it.
type Store interface {
	Load() map[string]Device
	Save(map[string]Device) error
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

// Registry tracks registered devices and owns one FIFO command queue per
// device.
//
// Device metadata is loaded from the Store on construction and written back
// in full after every mutation. Queues live in memory only: a restart drops
// pending commands.
//
// All public methods are thread-safe.
type Registry struct {
	store   Store
	devices map[string]Device
	queues  map[string]*commandQueue
	mu      sync.RWMutex // protects devices and queues

	listeners   []Listener
	listenersMu sync.RWMutex

	ids    *commandIDs
	logger Logger
	now    func() time.Time
}

// NewRegistry creates a device registry and loads its current contents.
func NewRegistry(store Store) *Registry {
	r := &Registry{
		store:  store,
		queues: make(map[string]*commandQueue),
		ids:    newCommandIDs(),
		logger: noopLogger{},
		now:    func() time.Time { return time.Now().UTC() },
	}
	r.devices = r.load()
	return r
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Subscribe registers a listener for registry events.
func (r *Registry) Subscribe(l Listener) {
	r.listenersMu.Lock()
	r.listeners = append(r.listeners, l)
	r.listenersMu.Unlock()
}

func (r *Registry) emit(ev Event) {
	r.listenersMu.RLock()
	listeners := r.listeners
	r.listenersMu.RUnlock()

	for _, l := range listeners {
		l(ev)
	}
}

func (r *Registry) load() map[string]Device {
	devices := r.store.Load()
	if devices == nil {
		devices = make(map[string]Device)
	}
	for id, d := range devices {
		if d.ID == "" {
			d.ID = id
			devices[id] = d
		}
	}
	return devices
}

// saveLocked persists device metadata. Caller must hold r.mu.
func (r *Registry) saveLocked() error {
	if err := r.store.Save(maps.Clone(r.devices)); err != nil {
		return fmt.Errorf("persisting devices: %w", err)
	}
	return nil
}

// RegisterDevice creates or replaces a device record and marks it online.
// An empty name becomes DefaultName(id).
func (r *Registry) RegisterDevice(id, name string) (*Device, error) {
	id = strings.TrimSpace(id)
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if name == "" {
		name = DefaultName(id)
	}

	now := jsonstore.Timestamp{Time: r.now()}
	d := Device{
		ID:               id,
		Name:             name,
		RegistrationDate: now,
		LastSeen:         now,
		Online:           true,
	}

	r.mu.Lock()
	r.devices[id] = d
	err := r.saveLocked()
	r.mu.Unlock()

	if err != nil {
		return nil, err
	}

	r.logger.Info("device registered", "device_id", id, "device_name", name)
	r.emit(Event{Type: EventRegistered, DeviceID: id, Device: &d, At: now.Time})
	return &d, nil
}

// UpdateDeviceStatus records a heartbeat: last_seen becomes now and the
// online flag is set as reported.
func (r *Registry) UpdateDeviceStatus(id string, online bool) error {
	now := jsonstore.Timestamp{Time: r.now()}

	r.mu.Lock()
	d, ok := r.devices[id]
	if !ok {
		r.mu.Unlock()
		return ErrDeviceNotFound
	}
	changed := d.Online != online
	d.LastSeen = now
	d.Online = online
	r.devices[id] = d
	err := r.saveLocked()
	r.mu.Unlock()

	if err != nil {
		return err
	}

	if changed {
		r.logger.Info("device status changed", "device_id", id, "online", online)
	}
	r.emit(Event{Type: EventStatusChanged, DeviceID: id, Device: &d, At: now.Time})
	return nil
}

// UnregisterDevice removes a device and discards its pending commands.
func (r *Registry) UnregisterDevice(id string) error {
	r.mu.Lock()
	d, ok := r.devices[id]
	if !ok {
		r.mu.Unlock()
		return ErrDeviceNotFound
	}
	dropped := 0
	if q := r.queues[id]; q != nil {
		dropped = q.len()
	}
	delete(r.devices, id)
	delete(r.queues, id)
	err := r.saveLocked()
	r.mu.Unlock()

	if err != nil {
		return err
	}

	r.logger.Info("device unregistered", "device_id", id, "dropped_commands", dropped)
	r.emit(Event{Type: EventUnregistered, DeviceID: id, Device: &d, At: r.now()})
	return nil
}

// GetDevice returns a copy of the device record.
func (r *Registry) GetDevice(id string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return &d, nil
}

// IsRegistered reports whether id is a known device.
func (r *Registry) IsRegistered(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.devices[id]
	return ok
}

// GetAllDevices returns a copy of every device keyed by id.
func (r *Registry) GetAllDevices() map[string]Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return maps.Clone(r.devices)
}

// Stats returns device and queue counts.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{Total: len(r.devices)}
	for _, d := range r.devices {
		if d.Online {
			s.Online++
		}
	}
	for _, q := range r.queues {
		s.PendingCommands += q.len()
	}
	return s
}

// QueueCommand appends a command to the device's queue. Unregistered
// devices are rejected with ErrDeviceNotFound and nothing is queued.
// Online status is not consulted.
func (r *Registry) QueueCommand(deviceID, command string, params map[string]any) (*QueuedCommand, error) {
	if err := ValidateCommand(command); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if _, ok := r.devices[deviceID]; !ok {
		r.mu.Unlock()
		return nil, ErrDeviceNotFound
	}
	// Taken under the lock so ids sort in queue order.
	now := r.now()
	cmd := QueuedCommand{
		ID:       r.ids.next(now),
		DeviceID: deviceID,
		Command:  command,
		Params:   maps.Clone(params),
		QueuedAt: now,
	}
	q := r.queues[deviceID]
	if q == nil {
		q = &commandQueue{}
		r.queues[deviceID] = q
	}
	q.push(cmd)
	depth := q.len()
	r.mu.Unlock()

	r.logger.Debug("command queued", "device_id", deviceID, "command", command, "command_id", cmd.ID, "depth", depth)

	out := cmd.Clone()
	r.emit(Event{Type: EventCommandQueued, DeviceID: deviceID, Command: &out, At: now})
	return &out, nil
}

// GetNextCommand removes and returns the oldest queued command for the
// device. ok is false when nothing is queued.
func (r *Registry) GetNextCommand(deviceID string) (cmd QueuedCommand, ok bool) {
	r.mu.Lock()
	q := r.queues[deviceID]
	if q != nil {
		cmd, ok = q.pop()
		if q.len() == 0 {
			delete(r.queues, deviceID)
		}
	}
	r.mu.Unlock()

	if !ok {
		return QueuedCommand{}, false
	}

	r.logger.Debug("command delivered", "device_id", deviceID, "command_id", cmd.ID)

	ev := cmd.Clone()
	r.emit(Event{Type: EventCommandDelivered, DeviceID: deviceID, Command: &ev, At: r.now()})
	return cmd, true
}

// HasPendingCommands reports whether the device has anything queued.
func (r *Registry) HasPendingCommands(deviceID string) bool {
	return r.PendingCount(deviceID) > 0
}

// PendingCount returns the number of commands queued for the device.
func (r *Registry) PendingCount(deviceID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if q := r.queues[deviceID]; q != nil {
		return q.len()
	}
	return 0
}
