package infra

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/focusguard/internal/domain"
)

func TestMemoryStore_SetGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, domain.Record{"tasks": json.RawMessage(`[ "a" ]`)}))

	rec, err := s.Get(ctx, "tasks", "missing")
	require.NoError(t, err)
	assert.Equal(t, domain.Record{"tasks": json.RawMessage(`["a"]`)}, rec)

	// Callers cannot mutate stored bytes through a returned record.
	rec["tasks"][2] = 'X'
	again, err := s.Get(ctx, "tasks")
	require.NoError(t, err)
	assert.Equal(t, `["a"]`, string(again["tasks"]))
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Get(ctx, "tasks")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.Set(ctx, domain.Record{"tasks": json.RawMessage(`[]`)}), context.Canceled)
}

func TestMemoryStore_Changes(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	rec := &changeRecorder{}
	s.Subscribe(rec.listen)

	require.NoError(t, s.Set(ctx, domain.Record{"focusMode": json.RawMessage(`false`)}))
	require.NoError(t, s.Set(ctx, domain.Record{"focusMode": json.RawMessage(`false`)}))
	require.NoError(t, s.Set(ctx, domain.Record{"focusMode": json.RawMessage(`true`)}))

	batches := rec.all()
	require.Len(t, batches, 2)
	assert.Nil(t, batches[0]["focusMode"].OldValue)
	assert.Equal(t, `false`, string(batches[1]["focusMode"].OldValue))
	assert.Equal(t, `true`, string(batches[1]["focusMode"].NewValue))
}

func TestMemoryStore_ListenerOrder(t *testing.T) {
	s := NewMemoryStore()
	var order []int
	s.Subscribe(func(domain.Changes) { order = append(order, 1) })
	s.Subscribe(func(domain.Changes) { order = append(order, 2) })
	s.Subscribe(func(domain.Changes) { order = append(order, 3) })

	require.NoError(t, s.Set(context.Background(), domain.Record{"k": json.RawMessage(`1`)}))
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestMemoryStore_ListenerMayWrite(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.Subscribe(func(changes domain.Changes) {
		if _, ok := changes["focusMode"]; ok {
			_ = s.Set(ctx, domain.Record{"timerRunning": json.RawMessage(`false`)})
		}
	})

	require.NoError(t, s.Set(ctx, domain.Record{"focusMode": json.RawMessage(`true`)}))

	rec, err := s.Get(ctx, "timerRunning")
	require.NoError(t, err)
	assert.Equal(t, `false`, string(rec["timerRunning"]))
}

func TestMemoryStore_Update(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	rec := &changeRecorder{}
	s.Subscribe(rec.listen)

	inc := func(current json.RawMessage) (any, error) {
		n := 0
		if current != nil {
			if err := json.Unmarshal(current, &n); err != nil {
				return nil, err
			}
		}
		return n + 1, nil
	}
	require.NoError(t, s.Update(ctx, "counter", inc))
	require.NoError(t, s.Update(ctx, "counter", inc))

	got, err := s.Get(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, `2`, string(got["counter"]))

	batches := rec.all()
	require.Len(t, batches, 2)
	assert.Nil(t, batches[0]["counter"].OldValue)
	assert.Equal(t, `1`, string(batches[1]["counter"].OldValue))

	boom := errors.New("boom")
	assert.ErrorIs(t, s.Update(ctx, "counter", func(json.RawMessage) (any, error) { return nil, boom }), boom)
	assert.Len(t, rec.all(), 2)
}
