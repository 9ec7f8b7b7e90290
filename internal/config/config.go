// Package config loads monitor and CLI settings from the environment.
// Every variable carries the FOCUSGUARD_ prefix; a .env file, when present,
// fills in variables that are not already set.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"path/filepath"
	"regexp"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/focusguard/internal/infra"
)

// EnvPrefix is prepended to every variable name.
const EnvPrefix = "FOCUSGUARD_"

const logFileName = "monitor.log"

var hexKeyPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// Config is the full set of runtime settings.
type Config struct {
	// DataDir holds the encrypted store, its key, the monitor registry and logs.
	DataDir string `env:"DATA_DIR" envDefault:"~/.focusguard"`

	// ListenAddr is where the monitor serves its control API.
	ListenAddr string `env:"LISTEN_ADDR" envDefault:"127.0.0.1:7717"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// LogFile defaults to monitor.log in DataDir.
	LogFile string `env:"LOG_FILE"`

	// StoreKey is a hex SQLCipher key. When empty the key file in DataDir
	// is used, generated on first run.
	StoreKey string `env:"STORE_KEY"`

	// PollInterval bounds how late the monitor notices writes made by the CLI.
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"2s"`

	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"30s"`

	Reputation ReputationConfig `envPrefix:"REPUTATION_"`
}

// ReputationConfig configures the threat-matching service client.
type ReputationConfig struct {
	URL     string        `env:"URL" envDefault:"https://safebrowsing.googleapis.com"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

// Load reads envFile (if it exists), then parses and validates the
// environment. An empty envFile means ".env" in the working directory.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("error getting env configs: %w", err)
	}
	cfg.DataDir = infra.ExpandHome(cfg.DataDir)
	cfg.LogFile = infra.ExpandHome(cfg.LogFile)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.DataDir, validation.Required),
		validation.Field(&c.ListenAddr, validation.Required, validation.By(hostPort)),
		validation.Field(&c.LogLevel, validation.Required, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.StoreKey, validation.Match(hexKeyPattern).Error("must be 64 hex characters")),
		validation.Field(&c.PollInterval, validation.Required, validation.Min(10*time.Millisecond)),
		validation.Field(&c.HeartbeatInterval, validation.Required, validation.Min(time.Second)),
	); err != nil {
		return err
	}
	return c.Reputation.Validate()
}

// Validate validates the reputation client configuration.
func (c *ReputationConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.URL, validation.Required),
		validation.Field(&c.Timeout, validation.Required, validation.Min(100*time.Millisecond)),
	)
}

// LogPath returns the monitor log file path.
func (c *Config) LogPath() string {
	if c.LogFile != "" {
		return c.LogFile
	}
	return filepath.Join(c.DataDir, logFileName)
}

// ZapLevel converts LogLevel for the zap config.
func (c *Config) ZapLevel() zapcore.Level {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

func hostPort(value any) error {
	s, _ := value.(string)
	if _, _, err := net.SplitHostPort(s); err != nil {
		return errors.New("must be host:port")
	}
	return nil
}
