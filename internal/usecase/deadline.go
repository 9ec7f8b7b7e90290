package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focusguard/internal/domain"
	"github.com/eliteGoblin/focusd/focusguard/internal/state"
)

const (
	// DeadlineScanPeriod is how often upcoming deadlines are checked.
	DeadlineScanPeriod = time.Minute

	// DeadlineWindow is how far ahead a deadline starts raising alerts.
	DeadlineWindow = time.Hour
)

// deadlineLayouts are the accepted deadline encodings. The zone-less ones
// are what a datetime-local input produces and are read in local time.
var deadlineLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// DeadlineMonitor raises alerts for deadlines inside the next hour.
// Alerts repeat on every scan until the deadline passes or is removed.
type DeadlineMonitor struct {
	store    domain.Store
	notifier domain.Notifier
	logger   *zap.Logger
	location *time.Location
	now      func() time.Time
}

// NewDeadlineMonitor creates a deadline monitor reading zone-less deadlines
// in the local time zone.
func NewDeadlineMonitor(store domain.Store, notifier domain.Notifier, logger *zap.Logger) *DeadlineMonitor {
	return &DeadlineMonitor{
		store:    store,
		notifier: notifier,
		logger:   logger,
		location: time.Local,
		now:      time.Now,
	}
}

// Arm schedules the periodic scan alarm.
func (m *DeadlineMonitor) Arm(alarms domain.AlarmService) {
	alarms.Create(domain.DeadlineAlarmName, domain.Schedule{Period: DeadlineScanPeriod})
}

// HandleAlarm runs a scan when the deadline alarm fires.
func (m *DeadlineMonitor) HandleAlarm(ctx context.Context, name string) {
	if name == domain.DeadlineAlarmName {
		m.Scan(ctx, m.now())
	}
}

// Scan emits one alert per deadline strictly between now and now+1h, with
// the remaining time rounded up to whole minutes. It returns the number of
// alerts emitted.
func (m *DeadlineMonitor) Scan(ctx context.Context, now time.Time) int {
	deadlines, err := state.Deadlines(ctx, m.store)
	if err != nil {
		m.logger.Warn("failed to read deadlines", zap.Error(err))
		return 0
	}

	keys := make([]string, 0, len(deadlines))
	for k := range deadlines {
		keys = append(keys, k)
	}
	sortTaskKeys(keys)

	emitted := 0
	for _, k := range keys {
		due, err := m.parse(deadlines[k])
		if err != nil {
			m.logger.Warn("skipping unparseable deadline",
				zap.String("task", k),
				zap.String("deadline", deadlines[k]),
				zap.Error(err))
			continue
		}

		left := due.Sub(now)
		if left <= 0 || left >= DeadlineWindow {
			continue
		}
		minutes := int(math.Ceil(left.Minutes()))
		m.notifier.Notify(deadlineAlert(minutes))
		emitted++
	}
	return emitted
}

func (m *DeadlineMonitor) parse(raw string) (time.Time, error) {
	for _, layout := range deadlineLayouts {
		if t, err := time.ParseInLocation(layout, raw, m.location); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised deadline format %q", raw)
}

// sortTaskKeys orders task index keys numerically, non-numeric keys last.
func sortTaskKeys(keys []string) {
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return keys[i] < keys[j]
		}
	})
}
