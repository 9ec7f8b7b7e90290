// Package main is the CLI entry point for focusguard.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/focusguard/internal/config"
	"github.com/eliteGoblin/focusd/focusguard/internal/domain"
	"github.com/eliteGoblin/focusd/focusguard/internal/infra"
)

var (
	// Version info (set via ldflags)
	Version   = "0.3.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

// cliTimeout bounds each CLI call to the monitor.
const cliTimeout = 5 * time.Second

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "focusguard",
	Short: "Focus sessions and browsing security monitor",
	Long: `focusguard runs a local monitor that blocks distracting sites during
focus sessions, checks every page you visit for phishing look-alikes,
insecure transport and known-unsafe URLs, and reminds you of task
deadlines that are less than an hour away.

State lives in an encrypted store shared by the monitor and this CLI.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	cfg        *config.Config
	envFile    string
	jsonOutput bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to a .env file (default ./.env)")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(versionCmd)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(envFile)
	if err != nil {
		return err
	}
	cfg = loaded
	return nil
}

// createMonitorLogger builds the monitor's file logger.
func createMonitorLogger(c *config.Config) *zap.Logger {
	if err := infra.EnsurePrivateDir(c.DataDir); err != nil {
		logger, _ := zap.NewProduction()
		return logger
	}

	logPath := c.LogPath()
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(c.ZapLevel())
	zc.OutputPaths = []string{logPath}
	zc.ErrorOutputPaths = []string{strings.TrimSuffix(logPath, ".log") + ".error.log"}
	zc.EncoderConfig.TimeKey = "time"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zc.Build()
	if err != nil {
		// Fallback to stdout if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

// createCLILogger builds the console logger used by short-lived commands.
func createCLILogger(c *config.Config) *zap.Logger {
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if c.ZapLevel() < zapcore.InfoLevel {
		zc.Level = zap.NewAtomicLevelAt(c.ZapLevel())
	}
	logger, err := zc.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// openStore opens the encrypted store, generating a key on first use
// unless one is configured.
func openStore(c *config.Config, logger *zap.Logger) (*infra.EncryptedStore, error) {
	var provider domain.KeyProvider = infra.NewFileKeyProvider(c.DataDir)
	if c.StoreKey != "" {
		static, err := infra.NewStaticKeyProvider(c.StoreKey)
		if err != nil {
			return nil, err
		}
		provider = static
	}

	key, err := infra.EnsureKey(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to get store key: %w", err)
	}
	return infra.NewEncryptedStore(c.DataDir, key, logger)
}

// withStore runs fn against the shared store with a bounded context.
func withStore(fn func(ctx context.Context, store domain.Store) error) error {
	logger := createCLILogger(cfg)
	defer logger.Sync()

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
	defer cancel()
	return fn(ctx, store)
}

// monitorAddr returns the registered monitor's address, falling back to the
// configured listen address.
func monitorAddr() string {
	registry := infra.NewFileRegistry(cfg.DataDir, infra.NewProcessManager())
	if entry, err := registry.Get(); err == nil && entry != nil && entry.ListenAddr != "" {
		return entry.ListenAddr
	}
	return cfg.ListenAddr
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("focusguard %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
