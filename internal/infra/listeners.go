package infra

import (
	"bytes"
	"encoding/json"
	"sort"
	"sync"

	"github.com/eliteGoblin/focusd/focusguard/internal/domain"
)

// listenerSet fans store deltas out to subscribers. Listeners are invoked
// synchronously, outside the lock, in subscription order.
type listenerSet struct {
	mu        sync.Mutex
	nextID    uint64
	listeners map[uint64]domain.ChangeListener
}

func (l *listenerSet) add(fn domain.ChangeListener) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listeners == nil {
		l.listeners = make(map[uint64]domain.ChangeListener)
	}
	l.nextID++
	id := l.nextID
	l.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.listeners, id)
			l.mu.Unlock()
		})
	}
}

func (l *listenerSet) notify(changes domain.Changes) {
	if len(changes) == 0 {
		return
	}

	l.mu.Lock()
	ids := make([]uint64, 0, len(l.listeners))
	for id := range l.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]domain.ChangeListener, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, l.listeners[id])
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(changes)
	}
}

// compact normalises a JSON value so equal values compare equal byte-wise.
func compact(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}

// diff returns the changes between old and new values for the keys in next.
func diff(prev, next domain.Record) domain.Changes {
	changes := make(domain.Changes)
	for k, nv := range next {
		ov, had := prev[k]
		if had && bytes.Equal(ov, nv) {
			continue
		}
		changes[k] = domain.Change{OldValue: ov, NewValue: nv}
	}
	return changes
}
