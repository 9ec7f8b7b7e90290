package domain

import (
	"context"
	"encoding/json"
)

// ChangeListener receives the delta of every store write.
type ChangeListener func(changes Changes)

// UpdateFunc computes a new value from the current raw value (nil if unset).
type UpdateFunc func(current json.RawMessage) (any, error)

// Store is the persistent shared state. It is the only channel between the
// background monitor, page probe and control surface.
// Implementation: SQLCipher encrypted key/value table, or in-memory for tests.
type Store interface {
	// Get returns the requested keys that exist. Missing keys are omitted.
	Get(ctx context.Context, keys ...string) (Record, error)

	// Set writes every key in the record and notifies listeners of the delta.
	Set(ctx context.Context, rec Record) error

	// Update atomically rewrites one key from its current value.
	Update(ctx context.Context, key string, fn UpdateFunc) error

	// Subscribe registers a listener; the returned func removes it.
	Subscribe(listener ChangeListener) (cancel func())
}

// RequestFilter decides whether an outbound request may proceed.
type RequestFilter func(req RequestDetails) Decision

// FilterHandle identifies a registered filter.
type FilterHandle uint64

// RequestInterceptor holds the filters consulted before requests proceed.
type RequestInterceptor interface {
	// Register installs a filter and returns its handle.
	Register(filter RequestFilter) FilterHandle

	// Unregister removes a filter. Unknown handles are ignored.
	Unregister(handle FilterHandle)

	// Decide runs every filter; any cancel wins.
	Decide(req RequestDetails) Decision

	// Count returns the number of installed filters.
	Count() int
}

// Notifier is the fire-and-forget notification sink.
type Notifier interface {
	Notify(alert Alert)
}

// AlarmService schedules named timers. Re-creating a name replaces it.
type AlarmService interface {
	// Create arms (or re-arms) the named alarm.
	Create(name string, schedule Schedule)

	// Clear cancels the named alarm. Unknown names are ignored.
	Clear(name string)

	// OnFire registers a listener called with the alarm name.
	OnFire(listener func(name string))
}

// Messenger delivers one-shot messages between execution contexts.
type Messenger interface {
	Send(ctx context.Context, msg Message) (*Response, error)
}

// ReputationChecker queries an external threat-matching service.
type ReputationChecker interface {
	// Check reports whether the service lists url as a threat.
	Check(ctx context.Context, apiKey, url string) (unsafe bool, err error)
}

// ProcessManager handles OS process operations.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}

// MonitorRegistry records the running monitor so other contexts can find it.
type MonitorRegistry interface {
	// Register saves the monitor's PID and listen address.
	Register(d Daemon, listenAddr string) error

	// UpdateHeartbeat updates timestamp for liveness check.
	UpdateHeartbeat() error

	// IsAlive checks whether the registered monitor is running.
	IsAlive() (bool, error)

	// Get returns the registration, or nil if none exists.
	Get() (*RegistryEntry, error)

	// Clear removes the registration.
	Clear() error
}

// KeyProvider abstracts the source of encryption keys.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}
