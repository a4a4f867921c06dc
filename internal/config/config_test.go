package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Database.Host = "db.internal"
	cfg.Database.Password = "hunter2"
	cfg.Matching.WindowDays = 5

	path := filepath.Join(t.TempDir(), "ledgersync.yaml")
	err := Save(path, cfg)
	require.NoError(t, err)

	got, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, cfg.Matching.WindowDays, got.Matching.WindowDays)
	assert.Equal(t, cfg.Matching.SettledDatePolicy, got.Matching.SettledDatePolicy)
	assert.Equal(t, "db.internal", got.Database.Host)
	assert.Equal(t, "hunter2", got.Database.Password)
	assert.Equal(t, cfg.Server.Port, got.Server.Port)
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 3, cfg.Matching.WindowDays)
	assert.Equal(t, "sync_date", cfg.Matching.SettledDatePolicy)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadFillsMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledgersync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  host: pg\n"), 0o644))

	got, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "pg", got.Database.Host)
	assert.Equal(t, 3, got.Matching.WindowDays, "absent matching section falls back to defaults")
	assert.Equal(t, "sync_date", got.Matching.SettledDatePolicy)
	assert.Equal(t, 8080, got.Server.Port)
}

func TestLoadNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDatabaseURI(t *testing.T) {
	d := DatabaseConfig{Host: "localhost", Port: 5432, User: "ls", Name: "ledgersync", Password: "pw"}
	assert.Equal(t, "host=localhost port=5432 user=ls dbname=ledgersync password=pw sslmode=disable", d.URI())

	d.SSLMode = "require"
	assert.Contains(t, d.URI(), "sslmode=require")
}

func TestYAMLFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledgersync.yaml")
	require.NoError(t, Save(path, Default()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	contents := string(data)

	assert.Contains(t, contents, "window_days: 3")
	assert.Contains(t, contents, "settled_date_policy: sync_date")
	assert.Contains(t, contents, "sslmode: disable")
}
