package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focusguard/internal/daemon"
	"github.com/eliteGoblin/focusd/focusguard/internal/domain"
	"github.com/eliteGoblin/focusd/focusguard/internal/infra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the monitor in the foreground",
	Long: `Runs the background monitor in the foreground: the focus session
state machine, deadline reminders, the per-navigation security pipeline
and the local control API. 'focusguard start' runs this detached.`,
	RunE: runMonitor,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the monitor in the background",
	RunE:  runStart,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show monitor and focus session status",
	RunE:  runStatus,
}

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Stream alerts from the running monitor",
	Long:  `Prints every alert the monitor raises until interrupted.`,
	RunE:  runAlerts,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(alertsCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	logger := createMonitorLogger(cfg)
	defer logger.Sync()

	store, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("failed to open store", zap.Error(err))
		return err
	}
	defer store.Close()

	pm := infra.NewProcessManager()
	registry := infra.NewFileRegistry(cfg.DataDir, pm)
	reputation := infra.NewSafeBrowsingClient(cfg.Reputation.URL, cfg.Reputation.Timeout, Version)

	monitorConfig := daemon.DefaultMonitorConfig()
	monitorConfig.ListenAddr = cfg.ListenAddr
	monitorConfig.PollInterval = cfg.PollInterval
	monitorConfig.HeartbeatInterval = cfg.HeartbeatInterval
	monitorConfig.Version = Version

	monitor := daemon.NewMonitor(monitorConfig, store, registry, pm, reputation,
		infra.NewLogNotifier(logger), logger)

	if err := monitor.Run(context.Background()); err != nil {
		logger.Error("monitor exited", zap.Error(err))
		return err
	}
	return nil
}

func runStart(cmd *cobra.Command, args []string) error {
	pm := infra.NewProcessManager()
	registry := infra.NewFileRegistry(cfg.DataDir, pm)

	if alive, _ := registry.IsAlive(); alive {
		entry, _ := registry.Get()
		fmt.Printf("focusguard monitor is already running on %s\n", entry.ListenAddr)
		return nil
	}

	if err := daemon.StartMonitor(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
	defer cancel()
	entry, err := daemon.WaitForMonitor(ctx, registry, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("%w (see %s)", err, cfg.LogPath())
	}

	fmt.Println("=== focusguard Started ===")
	fmt.Printf("Monitor PID: %d\n", entry.MonitorPID)
	fmt.Printf("Control API: http://%s\n", entry.ListenAddr)
	fmt.Printf("Log: %s\n", cfg.LogPath())
	fmt.Println("==========================")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	pm := infra.NewProcessManager()
	registry := infra.NewFileRegistry(cfg.DataDir, pm)

	fmt.Println("\n=== focusguard Status ===")

	entry, err := registry.Get()
	alive, _ := registry.IsAlive()
	if err != nil || entry == nil || !alive {
		fmt.Println("Monitor: NOT RUNNING")
		fmt.Println("\nRun 'focusguard start' to start the monitor.")
		return printStoredFocus()
	}

	ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
	defer cancel()

	client := infra.NewMonitorClient(entry.ListenAddr, cliTimeout)
	status, err := client.Status(ctx)
	if err != nil {
		fmt.Printf("Monitor: UNREACHABLE (pid %d): %v\n", entry.MonitorPID, err)
		return printStoredFocus()
	}

	fmt.Printf("Monitor: RUNNING (pid %d, v%s)\n", status.PID, status.Version)
	fmt.Printf("Control API: http://%s\n", entry.ListenAddr)
	fmt.Printf("Up since: %s\n", status.StartedAt.Local().Format(time.RFC1123))
	if entry.LastHeartbeat > 0 {
		lastBeat := time.Unix(entry.LastHeartbeat, 0)
		fmt.Printf("Last heartbeat: %s ago\n", time.Since(lastBeat).Round(time.Second))
	}
	printFocus(domain.FocusState{
		Active:          status.FocusMode,
		TimerRunning:    status.TimerRunning,
		DurationSeconds: status.TimerDuration,
	})
	if status.SessionActive {
		fmt.Printf("Blocking: %d site(s)\n", status.BlockedEntries)
	}
	fmt.Printf("Alert subscribers: %d\n", status.AlertClients)
	return nil
}

func runAlerts(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := infra.NewMonitorClient(monitorAddr(), cliTimeout)
	err := client.StreamAlerts(ctx, func(a domain.Alert) {
		fmt.Printf("[%s] %s: %s\n", a.CreatedAt.Local().Format("15:04:05"), a.Title, a.Message)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
