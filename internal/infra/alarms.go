package infra

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focusguard/internal/domain"
)

type alarm struct {
	schedule domain.Schedule
	stop     chan struct{}
}

// AlarmClock implements domain.AlarmService with goroutine-backed timers.
// Each name has at most one pending alarm; Create replaces it.
type AlarmClock struct {
	mu        sync.Mutex
	alarms    map[string]*alarm
	listeners []func(name string)
	logger    *zap.Logger
}

// NewAlarmClock creates an alarm service with no pending alarms.
func NewAlarmClock(logger *zap.Logger) *AlarmClock {
	return &AlarmClock{
		alarms: make(map[string]*alarm),
		logger: logger,
	}
}

// Create arms the named alarm, replacing any pending one with the same name.
// A zero Delay with a Period fires first after one Period.
func (c *AlarmClock) Create(name string, schedule domain.Schedule) {
	delay := schedule.Delay
	if delay <= 0 {
		delay = schedule.Period
	}

	a := &alarm{schedule: schedule, stop: make(chan struct{})}

	c.mu.Lock()
	if prev, ok := c.alarms[name]; ok {
		close(prev.stop)
	}
	c.alarms[name] = a
	c.mu.Unlock()

	c.logger.Debug("alarm created",
		zap.String("alarm", name),
		zap.Duration("delay", delay),
		zap.Duration("period", schedule.Period))

	go c.run(name, a, delay)
}

func (c *AlarmClock) run(name string, a *alarm, delay time.Duration) {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-a.stop:
		return
	case <-timer.C:
	}

	oneShot := a.schedule.Period <= 0
	if !c.fire(name, a, oneShot) || oneShot {
		return
	}

	ticker := time.NewTicker(a.schedule.Period)
	defer ticker.Stop()
	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			if !c.fire(name, a, false) {
				return
			}
		}
	}
}

// fire delivers the alarm unless it was cleared or replaced after its timer
// elapsed. A one-shot alarm is removed before its listeners run, so they
// may re-create it.
func (c *AlarmClock) fire(name string, a *alarm, oneShot bool) bool {
	c.mu.Lock()
	if c.alarms[name] != a {
		c.mu.Unlock()
		c.logger.Debug("dropping stale alarm", zap.String("alarm", name))
		return false
	}
	if oneShot {
		delete(c.alarms, name)
	}
	listeners := append([]func(string){}, c.listeners...)
	c.mu.Unlock()

	c.logger.Debug("alarm fired", zap.String("alarm", name))
	for _, l := range listeners {
		l(name)
	}
	return true
}

// Clear cancels the named alarm.
func (c *AlarmClock) Clear(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := c.alarms[name]; ok {
		close(a.stop)
		delete(c.alarms, name)
	}
}

// OnFire registers a listener for every alarm.
func (c *AlarmClock) OnFire(listener func(name string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, listener)
}

// Pending reports whether the named alarm is armed.
func (c *AlarmClock) Pending(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.alarms[name]
	return ok
}

// Close cancels every pending alarm.
func (c *AlarmClock) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, a := range c.alarms {
		close(a.stop)
		delete(c.alarms, name)
	}
}

// Ensure AlarmClock implements domain.AlarmService.
var _ domain.AlarmService = (*AlarmClock)(nil)
