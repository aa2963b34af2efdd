package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Backend.Kind)
	assert.Equal(t, 30*time.Second, cfg.Sync.PollInterval)
	assert.False(t, cfg.Sync.PollAll)
	assert.Equal(t, 3, cfg.Writes.MaxRetries)
	assert.Equal(t, time.Second, cfg.Writes.Backoff)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.Backup.Interval)
	assert.Equal(t, "local", cfg.RemoteSession().UserID)
	assert.False(t, cfg.RemoteSession().Shared())
	assert.Empty(t, cfg.Source)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "custom.yaml")
	yaml := "backend:\n  kind: SQLite\nsqlite:\n  path: /tmp/ledger.db\nsession:\n  household_id: h1\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("TWOCENTS_SYNC_POLL_INTERVAL", "5s")
	t.Setenv("TWOCENTS_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, cfg.Backend.Kind)
	assert.Equal(t, "/tmp/ledger.db", cfg.SQLite.Path)
	assert.Equal(t, 5*time.Second, cfg.Sync.PollInterval)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.RemoteSession().Shared())
	assert.Equal(t, path, cfg.Source)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TWOCENTS_SESSION_USER_ID=ana\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("TWOCENTS_SESSION_USER_ID") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "ana", cfg.Session.UserID)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load("does-not-exist.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Backend: BackendConfig{Kind: BackendMemory},
			Session: SessionConfig{UserID: "u1"},
			Sync:    SyncConfig{PollInterval: time.Second},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"memory ok", func(c *Config) {}, ""},
		{"unknown kind", func(c *Config) { c.Backend.Kind = "mongo" }, "unknown backend.kind"},
		{"bigquery needs project", func(c *Config) { c.Backend.Kind = BackendBigQuery; c.BigQuery.Dataset = "d" }, "bigquery.project_id"},
		{"http needs base url", func(c *Config) { c.Backend.Kind = BackendHTTP }, "api.base_url"},
		{"sqlite needs path", func(c *Config) { c.Backend.Kind = BackendSQLite }, "sqlite.path"},
		{"user required", func(c *Config) { c.Session.UserID = "" }, "session.user_id"},
		{"notify needs url", func(c *Config) { c.Sync.Notify = true }, "sync.ws_url"},
		{"http derives ws url", func(c *Config) {
			c.Backend.Kind = BackendHTTP
			c.API.BaseURL = "http://localhost:8080"
			c.Sync.Notify = true
		}, ""},
		{"negative backup interval", func(c *Config) { c.Backup.Interval = -time.Hour }, "backup.interval"},
		{"negative retries", func(c *Config) { c.Writes.MaxRetries = -1 }, "writes.max_retries"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
