package config

import (
	"os"
	"path/filepath"
	"testing"

	"go-favorites-archive/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
ArchivePath = "/tmp/archive"
SiteURL = "http://gallery.example"
Concurrency = 8
RefreshHours = 24
`), 0600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/archive", cfg.ArchivePath)
	assert.Equal(t, "http://gallery.example", cfg.SiteURL)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, 24, cfg.RefreshHours)
	// unset fields get working defaults
	assert.Equal(t, 10, cfg.CheckpointEvery)
	assert.Equal(t, 100, cfg.AuditCheckpointEvery)
	assert.Equal(t, 240, cfg.AuditRefreshHours)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestApplyDefaults(t *testing.T) {
	var cfg models.Config
	ApplyDefaults(&cfg)
	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, 10, cfg.CheckpointEvery)
	assert.Equal(t, 72, cfg.RefreshHours)
	assert.Equal(t, 15, cfg.FetchTimeoutSec)
	assert.Equal(t, 1.0, cfg.FetchRatePerSec)
	assert.Equal(t, 10, cfg.MaxRetries)

	// explicit values are never overridden
	cfg.Concurrency = 1
	ApplyDefaults(&cfg)
	assert.Equal(t, 1, cfg.Concurrency)
}
