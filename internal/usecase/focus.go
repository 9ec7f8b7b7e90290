package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focusguard/internal/domain"
	"github.com/eliteGoblin/focusd/focusguard/internal/policy"
	"github.com/eliteGoblin/focusd/focusguard/internal/state"
)

// FocusController is the focus session state machine (Inactive, Active).
// It owns the request filter registration and the focus alarm. Build one
// per monitor process; Start, Stop and Expire are its only mutators.
//
// The blocked-site list and duration are read once, when the session
// starts. Edits made during a session apply from the next session.
type FocusController struct {
	store       domain.Store
	interceptor domain.RequestInterceptor
	alarms      domain.AlarmService
	notifier    domain.Notifier
	logger      *zap.Logger
	now         func() time.Time

	mu      sync.Mutex
	running bool
	endsAt  time.Time
	handle  domain.FilterHandle
	blocked policy.BlockList
}

// NewFocusController creates an inactive controller.
func NewFocusController(
	store domain.Store,
	interceptor domain.RequestInterceptor,
	alarms domain.AlarmService,
	notifier domain.Notifier,
	logger *zap.Logger,
) *FocusController {
	return &FocusController{
		store:       store,
		interceptor: interceptor,
		alarms:      alarms,
		notifier:    notifier,
		logger:      logger,
		now:         time.Now,
	}
}

// Active reports whether a session is running in this process.
func (c *FocusController) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// BlockedCount returns the number of entries the running session blocks.
func (c *FocusController) BlockedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blocked.Len()
}

// Start moves Inactive to Active: installs the request filter and arms the
// focus alarm. It is a no-op if a session is already running, so at most
// one filter is ever installed. Store read failures fall back to an empty
// block list and the default duration.
func (c *FocusController) Start(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		c.logger.Debug("focus session already running")
		return false
	}

	sites, err := state.BlockedSites(ctx, c.store)
	if err != nil {
		c.logger.Warn("failed to read blocked sites, blocking nothing", zap.Error(err))
	}
	focus, err := state.Focus(ctx, c.store)
	if err != nil {
		c.logger.Warn("failed to read focus duration, using default", zap.Error(err))
	}

	blocked := policy.NewBlockList(sites)
	c.blocked = blocked
	c.handle = c.interceptor.Register(func(req domain.RequestDetails) domain.Decision {
		if blocked.BlocksURL(req.URL) {
			return domain.DecisionCancel
		}
		return domain.DecisionAllow
	})
	c.endsAt = c.now().Add(focus.Duration())
	c.alarms.Create(domain.FocusAlarmName, domain.Schedule{Delay: focus.Duration()})
	c.running = true

	c.logger.Info("focus session started",
		zap.Int("blocked_sites", blocked.Len()),
		zap.Duration("duration", focus.Duration()))
	return true
}

// Stop moves Active to Inactive. Safe to call when already inactive.
func (c *FocusController) Stop(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked()
}

func (c *FocusController) stopLocked() bool {
	if !c.running {
		return false
	}
	c.interceptor.Unregister(c.handle)
	c.alarms.Clear(domain.FocusAlarmName)
	c.handle = 0
	c.blocked = policy.BlockList{}
	c.running = false

	c.logger.Info("focus session stopped")
	return true
}

// Expire handles the focus alarm: stops the session, announces completion
// and forces the shared flags off so a stale active flag cannot outlive the
// timer. An alarm arriving after a manual stop only re-asserts the flags.
func (c *FocusController) Expire(ctx context.Context) {
	c.mu.Lock()
	wasRunning := c.stopLocked()
	c.mu.Unlock()

	if wasRunning {
		c.notifier.Notify(sessionCompleteAlert())
	} else {
		c.logger.Debug("focus alarm fired with no running session")
	}

	// Outside the lock: the write re-enters HandleChanges through the store listener.
	if err := state.SetFocus(ctx, c.store, false, false); err != nil {
		c.logger.Warn("failed to clear focus flag", zap.Error(err))
	}
}

// HandleChanges reacts to the shared focus flag.
func (c *FocusController) HandleChanges(ctx context.Context, changes domain.Changes) {
	active, ok := state.FocusChange(changes)
	if !ok {
		return
	}
	if active {
		c.Start(ctx)
	} else {
		c.Stop(ctx)
	}
}

// HandleAlarm dispatches the focus alarm; other alarms are ignored.
// A focus alarm that arrives before the running session is due belongs to
// an earlier session and is dropped.
func (c *FocusController) HandleAlarm(ctx context.Context, name string) {
	if name != domain.FocusAlarmName {
		return
	}
	c.mu.Lock()
	early := c.running && c.now().Before(c.endsAt)
	c.mu.Unlock()
	if early {
		c.logger.Debug("ignoring focus alarm from an earlier session")
		return
	}
	c.Expire(ctx)
}

// Restore starts a session when the shared flag is already set, e.g. after
// the monitor restarts mid-session.
func (c *FocusController) Restore(ctx context.Context) {
	active, err := state.FocusActive(ctx, c.store)
	if err != nil {
		c.logger.Warn("failed to read focus flag on startup", zap.Error(err))
		return
	}
	if active {
		c.Start(ctx)
	}
}

// StartSession is the control-surface operation that begins a session by
// setting the shared flags. The monitor reacts through its store listener.
func StartSession(ctx context.Context, store domain.Store) error {
	return state.SetFocus(ctx, store, true, true)
}

// StopSession clears the shared flags, ending any running session.
func StopSession(ctx context.Context, store domain.Store) error {
	return state.SetFocus(ctx, store, false, false)
}
