package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/eliteGoblin/focusd/focusguard/internal/domain"
)

// recordingNotifier implements domain.Notifier for testing
type recordingNotifier struct {
	mu     sync.Mutex
	alerts []domain.Alert
}

func (n *recordingNotifier) Notify(alert domain.Alert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
}

func (n *recordingNotifier) all() []domain.Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.Alert(nil), n.alerts...)
}

func (n *recordingNotifier) kinds() []domain.AlertKind {
	var out []domain.AlertKind
	for _, a := range n.all() {
		out = append(out, a.Kind)
	}
	return out
}

func (n *recordingNotifier) count(kind domain.AlertKind) int {
	c := 0
	for _, a := range n.all() {
		if a.Kind == kind {
			c++
		}
	}
	return c
}

// mockAlarms implements domain.AlarmService for testing
type mockAlarms struct {
	mu        sync.Mutex
	pending   map[string]domain.Schedule
	cleared   []string
	listeners []func(string)
}

func newMockAlarms() *mockAlarms {
	return &mockAlarms{pending: make(map[string]domain.Schedule)}
}

func (a *mockAlarms) Create(name string, schedule domain.Schedule) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending[name] = schedule
}

func (a *mockAlarms) Clear(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.pending, name)
	a.cleared = append(a.cleared, name)
}

func (a *mockAlarms) OnFire(listener func(name string)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, listener)
}

func (a *mockAlarms) get(name string) (domain.Schedule, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.pending[name]
	return s, ok
}

// mockReputation implements domain.ReputationChecker for testing
type mockReputation struct {
	unsafe  bool
	err     error
	panics  bool
	calls   atomic.Int32
	lastKey atomic.Value
}

func (r *mockReputation) Check(ctx context.Context, apiKey, url string) (bool, error) {
	r.calls.Add(1)
	r.lastKey.Store(apiKey)
	if r.panics {
		panic("reputation exploded")
	}
	return r.unsafe, r.err
}

var errStoreDown = errors.New("store unavailable")

// failingStore implements domain.Store and fails every call
type failingStore struct{}

func (failingStore) Get(ctx context.Context, keys ...string) (domain.Record, error) {
	return nil, errStoreDown
}

func (failingStore) Set(ctx context.Context, rec domain.Record) error {
	return errStoreDown
}

func (failingStore) Update(ctx context.Context, key string, fn domain.UpdateFunc) error {
	return errStoreDown
}

func (failingStore) Subscribe(listener domain.ChangeListener) func() {
	return func() {}
}
