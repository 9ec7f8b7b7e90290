// Package state provides typed access to the persistent shared store.
// Every accessor re-reads the store; nothing is cached between calls because
// any execution context may have written in the meantime.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/eliteGoblin/focusd/focusguard/internal/domain"
)

// Store keys.
const (
	KeyTasks           = "tasks"
	KeyDeadlines       = "deadlines"
	KeyBlockedSites    = "blockedSites"
	KeyFocusMode       = "focusMode"
	KeyTimerDuration   = "timerDuration"
	KeyTimerRunning    = "timerRunning"
	KeyTimeSpent       = "timeSpent"
	KeyAPIKey          = "safeBrowsingApiKey"
	KeyCookieThreshold = "cookieThreshold"
)

// DefaultCookieThreshold is the per-domain cookie count above which a
// tracking-cookies alert fires.
const DefaultCookieThreshold = 10

// Defaults returns the initial value of every key.
func Defaults() map[string]any {
	return map[string]any{
		KeyTasks:           []string{},
		KeyBlockedSites:    []string{},
		KeyFocusMode:       false,
		KeyTimerDuration:   domain.DefaultFocusDurationSeconds,
		KeyTimerRunning:    false,
		KeyTimeSpent:       map[string]int{},
		KeyDeadlines:       map[string]string{},
		KeyAPIKey:          "",
		KeyCookieThreshold: DefaultCookieThreshold,
	}
}

// Install writes defaults for every key that has never been set.
// Existing values are left alone so a restart never wipes user state.
func Install(ctx context.Context, s domain.Store) error {
	defaults := Defaults()
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}

	existing, err := s.Get(ctx, keys...)
	if err != nil {
		return fmt.Errorf("failed to read store: %w", err)
	}

	missing := make(map[string]any)
	for k, v := range defaults {
		if _, ok := existing[k]; !ok {
			missing[k] = v
		}
	}
	if len(missing) == 0 {
		return nil
	}

	rec, err := Encode(missing)
	if err != nil {
		return err
	}
	return s.Set(ctx, rec)
}

// Encode converts plain values into a store record.
func Encode(values map[string]any) (domain.Record, error) {
	rec := make(domain.Record, len(values))
	for k, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", k, err)
		}
		rec[k] = raw
	}
	return rec, nil
}

// decode reads key from rec into a T, returning def when the key is absent.
func decode[T any](rec domain.Record, key string, def T) (T, error) {
	raw, ok := rec[key]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return def, nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return def, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return v, nil
}

// get reads a single typed key. On any failure def is returned with the error.
func get[T any](ctx context.Context, s domain.Store, key string, def T) (T, error) {
	rec, err := s.Get(ctx, key)
	if err != nil {
		return def, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return decode(rec, key, def)
}

// Focus returns the focus session flags.
func Focus(ctx context.Context, s domain.Store) (domain.FocusState, error) {
	def := domain.FocusState{DurationSeconds: domain.DefaultFocusDurationSeconds}
	rec, err := s.Get(ctx, KeyFocusMode, KeyTimerRunning, KeyTimerDuration)
	if err != nil {
		return def, fmt.Errorf("failed to read focus state: %w", err)
	}

	st := def
	if st.Active, err = decode(rec, KeyFocusMode, false); err != nil {
		return def, err
	}
	if st.TimerRunning, err = decode(rec, KeyTimerRunning, false); err != nil {
		return def, err
	}
	if st.DurationSeconds, err = decode(rec, KeyTimerDuration, domain.DefaultFocusDurationSeconds); err != nil {
		return def, err
	}
	if st.DurationSeconds <= 0 {
		st.DurationSeconds = domain.DefaultFocusDurationSeconds
	}
	return st, nil
}

// FocusActive returns only the focus flag.
func FocusActive(ctx context.Context, s domain.Store) (bool, error) {
	return get(ctx, s, KeyFocusMode, false)
}

// SetFocus writes the focus and timer flags together.
// timerRunning is forced false when active is false.
func SetFocus(ctx context.Context, s domain.Store, active, timerRunning bool) error {
	rec, err := Encode(map[string]any{
		KeyFocusMode:    active,
		KeyTimerRunning: active && timerRunning,
	})
	if err != nil {
		return err
	}
	return s.Set(ctx, rec)
}

// SetTimerDuration writes the focus session length in seconds.
func SetTimerDuration(ctx context.Context, s domain.Store, seconds int) error {
	if seconds <= 0 {
		return fmt.Errorf("duration must be positive, got %d", seconds)
	}
	rec, err := Encode(map[string]any{KeyTimerDuration: seconds})
	if err != nil {
		return err
	}
	return s.Set(ctx, rec)
}

// FocusChange extracts the new focus flag from a change delta.
func FocusChange(changes domain.Changes) (active bool, ok bool) {
	ch, found := changes[KeyFocusMode]
	if !found {
		return false, false
	}
	if len(ch.NewValue) == 0 {
		return false, true
	}
	if err := json.Unmarshal(ch.NewValue, &active); err != nil {
		return false, false
	}
	return active, true
}

// BlockedSites returns the blocked-site list.
func BlockedSites(ctx context.Context, s domain.Store) ([]string, error) {
	return get(ctx, s, KeyBlockedSites, []string{})
}

// AddBlockedSite appends a site. Duplicates are permitted.
func AddBlockedSite(ctx context.Context, s domain.Store, site string) error {
	site = strings.TrimSpace(site)
	if site == "" {
		return fmt.Errorf("site must not be empty")
	}
	sites, err := BlockedSites(ctx, s)
	if err != nil {
		return err
	}
	rec, err := Encode(map[string]any{KeyBlockedSites: append(sites, site)})
	if err != nil {
		return err
	}
	return s.Set(ctx, rec)
}

// RemoveBlockedSite deletes the site at index.
func RemoveBlockedSite(ctx context.Context, s domain.Store, index int) error {
	sites, err := BlockedSites(ctx, s)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(sites) {
		return fmt.Errorf("blocked site index %d out of range", index)
	}
	sites = append(sites[:index], sites[index+1:]...)
	rec, err := Encode(map[string]any{KeyBlockedSites: sites})
	if err != nil {
		return err
	}
	return s.Set(ctx, rec)
}

// Tasks returns the task list.
func Tasks(ctx context.Context, s domain.Store) ([]string, error) {
	return get(ctx, s, KeyTasks, []string{})
}

// Deadlines returns the task index to deadline map.
func Deadlines(ctx context.Context, s domain.Store) (map[string]string, error) {
	return get(ctx, s, KeyDeadlines, map[string]string{})
}

// AddTask appends a task and, when deadline is set, records it under the
// task's position.
func AddTask(ctx context.Context, s domain.Store, text, deadline string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("task must not be empty")
	}
	rec, err := s.Get(ctx, KeyTasks, KeyDeadlines)
	if err != nil {
		return fmt.Errorf("failed to read tasks: %w", err)
	}
	tasks, err := decode(rec, KeyTasks, []string{})
	if err != nil {
		return err
	}
	deadlines, err := decode(rec, KeyDeadlines, map[string]string{})
	if err != nil {
		return err
	}

	id := len(tasks)
	tasks = append(tasks, text)
	if deadline != "" {
		deadlines[fmt.Sprint(id)] = deadline
	}

	out, err := Encode(map[string]any{KeyTasks: tasks, KeyDeadlines: deadlines})
	if err != nil {
		return err
	}
	return s.Set(ctx, out)
}

// DeleteTask removes the task at index and the deadline stored under the same
// index. Deadlines of later tasks keep their old keys, so they end up
// attributed to the task that moved into that position.
func DeleteTask(ctx context.Context, s domain.Store, index int) error {
	rec, err := s.Get(ctx, KeyTasks, KeyDeadlines)
	if err != nil {
		return fmt.Errorf("failed to read tasks: %w", err)
	}
	tasks, err := decode(rec, KeyTasks, []string{})
	if err != nil {
		return err
	}
	deadlines, err := decode(rec, KeyDeadlines, map[string]string{})
	if err != nil {
		return err
	}
	if index < 0 || index >= len(tasks) {
		return fmt.Errorf("task index %d out of range", index)
	}

	tasks = append(tasks[:index], tasks[index+1:]...)
	delete(deadlines, fmt.Sprint(index))

	out, err := Encode(map[string]any{KeyTasks: tasks, KeyDeadlines: deadlines})
	if err != nil {
		return err
	}
	return s.Set(ctx, out)
}

// TimeSpent returns the per-hostname visit counters.
func TimeSpent(ctx context.Context, s domain.Store) (map[string]int, error) {
	return get(ctx, s, KeyTimeSpent, map[string]int{})
}

// IncrementTimeSpent adds one visit for host.
func IncrementTimeSpent(ctx context.Context, s domain.Store, host string) error {
	return s.Update(ctx, KeyTimeSpent, func(current json.RawMessage) (any, error) {
		counts := map[string]int{}
		if len(current) > 0 && string(current) != "null" {
			if err := json.Unmarshal(current, &counts); err != nil {
				return nil, fmt.Errorf("failed to decode %s: %w", KeyTimeSpent, err)
			}
		}
		counts[host]++
		return counts, nil
	})
}

// APIKey returns the reputation-service credential; empty when unset.
func APIKey(ctx context.Context, s domain.Store) (string, error) {
	return get(ctx, s, KeyAPIKey, "")
}

// SetAPIKey stores the reputation-service credential.
func SetAPIKey(ctx context.Context, s domain.Store, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("api key must not be empty")
	}
	rec, err := Encode(map[string]any{KeyAPIKey: key})
	if err != nil {
		return err
	}
	return s.Set(ctx, rec)
}

// CookieThreshold returns the tracking-cookie alert threshold.
func CookieThreshold(ctx context.Context, s domain.Store) (int, error) {
	n, err := get(ctx, s, KeyCookieThreshold, DefaultCookieThreshold)
	if n <= 0 {
		n = DefaultCookieThreshold
	}
	return n, err
}
