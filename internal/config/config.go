// Package config loads settings for the api, cli, migrate and worker
// processes.
//
// Sources, lowest priority first: the embedded default.yaml, an optional
// external YAML file, then environment variables prefixed with TWOCENTS_
// (dots become underscores, so sync.poll_interval is
// TWOCENTS_SYNC_POLL_INTERVAL). A .env file in the working directory is
// loaded into the environment first when present.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/dvloznov/twocents/internal/remote"
)

//go:embed default.yaml
var defaultYAML []byte

// Backend kinds.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendBigQuery = "bigquery"
	BackendHTTP     = "http"
)

// Config is the full process configuration.
type Config struct {
	Backend  BackendConfig  `mapstructure:"backend"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	BigQuery BigQueryConfig `mapstructure:"bigquery"`
	API      APIConfig      `mapstructure:"api"`
	Session  SessionConfig  `mapstructure:"session"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Writes   WritesConfig   `mapstructure:"writes"`
	Log      LogConfig      `mapstructure:"log"`
	Backup   BackupConfig   `mapstructure:"backup"`

	// Source is the external file merged over the defaults, if any.
	Source string `mapstructure:"-"`
}

type BackendConfig struct {
	Kind string `mapstructure:"kind"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type BigQueryConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Dataset   string `mapstructure:"dataset"`
}

// APIConfig is shared by the REST server (Port) and the HTTP backend
// (BaseURL, Timeout).
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Port    string        `mapstructure:"port"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SessionConfig struct {
	UserID      string `mapstructure:"user_id"`
	HouseholdID string `mapstructure:"household_id"`
}

// SyncConfig controls background reconciliation.
type SyncConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// PollAll extends polling from the ledger to goals, bills and settings.
	PollAll bool `mapstructure:"poll_all"`
	// Notify enables the websocket change listener. The http backend
	// derives WSURL from api.base_url when it is empty.
	Notify bool   `mapstructure:"notify"`
	WSURL  string `mapstructure:"ws_url"`
}

type WritesConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	Backoff    time.Duration `mapstructure:"backoff"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// BackupConfig is used by the backup and restore commands and the worker.
type BackupConfig struct {
	Bucket   string        `mapstructure:"bucket"`
	Interval time.Duration `mapstructure:"interval"`
}

// RemoteSession returns the configured remote session.
func (c *Config) RemoteSession() remote.Session {
	return remote.Session{UserID: c.Session.UserID, HouseholdID: c.Session.HouseholdID}
}

// Load reads the configuration. When path is empty, config.yaml is looked
// up in the working directory, ./config and $HOME/.twocents; a missing file
// is not an error. An explicit path must exist.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("Load: read .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaultYAML)); err != nil {
		return nil, fmt.Errorf("Load: read defaults: %w", err)
	}

	var source string
	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("Load: merge %s: %w", path, err)
		}
		source = path
	} else {
		external := viper.New()
		external.SetConfigName("config")
		external.SetConfigType("yaml")
		external.AddConfigPath(".")
		external.AddConfigPath("./config")
		external.AddConfigPath("$HOME/.twocents")
		if err := external.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(external.AllSettings()); err != nil {
				return nil, fmt.Errorf("Load: merge %s: %w", external.ConfigFileUsed(), err)
			}
			source = external.ConfigFileUsed()
		}
	}

	v.SetEnvPrefix("TWOCENTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("Load: decode: %w", err)
	}
	cfg.Source = source
	cfg.Backend.Kind = strings.ToLower(strings.TrimSpace(cfg.Backend.Kind))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad is Load for process entry points.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Validate checks the keys the selected backend needs.
func (c *Config) Validate() error {
	switch c.Backend.Kind {
	case BackendMemory:
	case BackendSQLite:
		if c.SQLite.Path == "" {
			return errors.New("Validate: sqlite.path is required for the sqlite backend")
		}
	case BackendBigQuery:
		if c.BigQuery.ProjectID == "" || c.BigQuery.Dataset == "" {
			return errors.New("Validate: bigquery.project_id and bigquery.dataset are required for the bigquery backend")
		}
	case BackendHTTP:
		if c.API.BaseURL == "" {
			return errors.New("Validate: api.base_url is required for the http backend")
		}
	default:
		return fmt.Errorf("Validate: unknown backend.kind %q", c.Backend.Kind)
	}

	if c.Session.UserID == "" {
		return errors.New("Validate: session.user_id is required")
	}
	if c.Sync.PollInterval <= 0 {
		return errors.New("Validate: sync.poll_interval must be positive")
	}
	if c.Sync.Notify && c.Sync.WSURL == "" && c.Backend.Kind != BackendHTTP {
		return errors.New("Validate: sync.ws_url is required when sync.notify is on")
	}
	if c.Writes.MaxRetries < 0 {
		return errors.New("Validate: writes.max_retries must not be negative")
	}
	if c.Backup.Interval < 0 {
		return errors.New("Validate: backup.interval must not be negative")
	}
	return nil
}
