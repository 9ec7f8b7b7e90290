// Package daemon implements the background monitor process and the helpers
// the CLI uses to spawn it.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eliteGoblin/focusd/focusguard/internal/api"
	"github.com/eliteGoblin/focusd/focusguard/internal/domain"
	"github.com/eliteGoblin/focusd/focusguard/internal/infra"
	"github.com/eliteGoblin/focusd/focusguard/internal/policy"
	"github.com/eliteGoblin/focusd/focusguard/internal/state"
	"github.com/eliteGoblin/focusd/focusguard/internal/usecase"
)

// ErrMonitorRunning is returned when another live monitor is registered.
var ErrMonitorRunning = errors.New("monitor already running")

// ExternalWatcher delivers writes made by other processes to the store's
// listeners. The encrypted store implements it.
type ExternalWatcher interface {
	Watch(ctx context.Context, pollInterval time.Duration) error
}

// MonitorConfig holds monitor configuration.
type MonitorConfig struct {
	ListenAddr        string
	PollInterval      time.Duration // How often to look for external store writes
	HeartbeatInterval time.Duration // How often to update the registry heartbeat
	ShutdownTimeout   time.Duration
	Version           string
}

// DefaultMonitorConfig returns default monitor configuration.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		ListenAddr:        "127.0.0.1:7717",
		PollInterval:      infra.DefaultPollInterval,
		HeartbeatInterval: 30 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		Version:           "dev",
	}
}

// Monitor is the background context. It owns the focus session, the
// deadline scan, the navigation pipeline and the control API.
type Monitor struct {
	config     MonitorConfig
	store      domain.Store
	registry   domain.MonitorRegistry
	pm         domain.ProcessManager
	reputation domain.ReputationChecker
	notifier   domain.Notifier
	logger     *zap.Logger

	// Signals handled by Run; tests leave it empty.
	signals []os.Signal
}

// NewMonitor creates a monitor. notifier receives every alert in addition
// to the API alert stream.
func NewMonitor(
	config MonitorConfig,
	store domain.Store,
	registry domain.MonitorRegistry,
	pm domain.ProcessManager,
	reputation domain.ReputationChecker,
	notifier domain.Notifier,
	logger *zap.Logger,
) *Monitor {
	if notifier == nil {
		notifier = infra.NewLogNotifier(logger)
	}
	return &Monitor{
		config:     config,
		store:      store,
		registry:   registry,
		pm:         pm,
		reputation: reputation,
		notifier:   notifier,
		logger:     logger,
		signals:    []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

// Run starts the monitor and blocks until ctx is canceled, a shutdown
// signal arrives or the API server fails.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.checkNotRunning(); err != nil {
		return err
	}

	if err := state.Install(ctx, m.store); err != nil {
		return fmt.Errorf("failed to install defaults: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	broker := api.NewBroker()
	notifier := infra.MultiNotifier{m.notifier, broker}
	interceptor := infra.NewInterceptorChain()
	alarms := infra.NewAlarmClock(m.logger)
	defer alarms.Close()

	focus := usecase.NewFocusController(m.store, interceptor, alarms, notifier, m.logger)
	deadlines := usecase.NewDeadlineMonitor(m.store, notifier, m.logger)
	pipeline := usecase.NewPipeline(m.store, m.reputation, notifier,
		policy.NewRegistry().MustGet(policy.FamilyBackground), m.logger)
	reports := usecase.NewReportHandler(notifier, m.logger)

	unsubscribe := m.store.Subscribe(func(changes domain.Changes) {
		focus.HandleChanges(gctx, changes)
	})
	defer unsubscribe()

	alarms.OnFire(func(name string) {
		focus.HandleAlarm(gctx, name)
		deadlines.HandleAlarm(gctx, name)
	})

	focus.Restore(gctx)
	deadlines.Arm(alarms)

	listener, err := net.Listen("tcp", m.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.config.ListenAddr, err)
	}

	self := domain.Daemon{
		PID:        m.pm.GetCurrentPID(),
		StartedAt:  time.Now(),
		AppVersion: m.config.Version,
	}
	if err := m.registry.Register(self, listener.Addr().String()); err != nil {
		listener.Close()
		return fmt.Errorf("failed to register monitor: %w", err)
	}
	defer func() {
		if err := m.registry.Clear(); err != nil {
			m.logger.Warn("failed to clear registry", zap.Error(err))
		}
	}()

	handler := api.NewHandler(api.Deps{
		BaseContext: gctx,
		Store:       m.store,
		Interceptor: interceptor,
		Pipeline:    pipeline,
		Reports:     reports,
		Session:     focus,
		Alerts:      broker,
		Logger:      m.logger,
		PID:         self.PID,
		Version:     self.AppVersion,
		StartedAt:   self.StartedAt,
	})
	srv := &http.Server{
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	m.logger.Info("monitor started",
		zap.Int("pid", self.PID),
		zap.String("addr", listener.Addr().String()),
		zap.String("version", self.AppVersion))

	g.Go(func() error {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	})

	if w, ok := m.store.(ExternalWatcher); ok {
		g.Go(func() error {
			return w.Watch(gctx, m.config.PollInterval)
		})
	}

	g.Go(func() error {
		m.heartbeat(gctx)
		return nil
	})

	g.Go(func() error {
		m.waitForShutdown(gctx)
		cancel()

		// Streams never end on their own; close them before Shutdown waits.
		broker.Close()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), m.config.ShutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			m.logger.Error("server shutdown failed", zap.Error(err))
		}
		handler.Wait()
		return nil
	})

	err = g.Wait()
	m.logger.Info("monitor stopped")
	return err
}

// checkNotRunning refuses to start when a different live monitor is
// registered. A stale entry is left for Register to overwrite.
func (m *Monitor) checkNotRunning() error {
	entry, err := m.registry.Get()
	if err != nil || entry == nil {
		return nil
	}
	if entry.MonitorPID == m.pm.GetCurrentPID() {
		return nil
	}
	alive, err := m.registry.IsAlive()
	if err == nil && alive {
		return fmt.Errorf("%w (pid %d)", ErrMonitorRunning, entry.MonitorPID)
	}
	return nil
}

func (m *Monitor) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(m.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.registry.UpdateHeartbeat(); err != nil {
				m.logger.Warn("failed to update heartbeat", zap.Error(err))
			}
		}
	}
}

func (m *Monitor) waitForShutdown(ctx context.Context) {
	if len(m.signals) == 0 {
		<-ctx.Done()
		return
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, m.signals...)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		m.logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}
}
