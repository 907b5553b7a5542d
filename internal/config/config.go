package config

import (
	"fmt"

	"go-favorites-archive/internal/models"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
)

// LoadConfig reads the configuration from the specified path (defaulting
// to "config.toml") and populates a models.Config with defaults applied.
func LoadConfig(configFilePath string) (models.Config, error) {
	if configFilePath == "" {
		configFilePath = "config.toml"
	}
	var cfg models.Config
	_, err := toml.DecodeFile(configFilePath, &cfg)
	if err != nil {
		return models.Config{}, fmt.Errorf("error loading config file %s: %w", configFilePath, err)
	}

	if cfg.ArchivePath == "" {
		log.Warn("Warning: ArchivePath is not set in config.toml")
	}
	ApplyDefaults(&cfg)

	log.Infof("Configuration loaded from %s", configFilePath)
	return cfg, nil
}

// ApplyDefaults fills in zero-valued fields with working defaults.
func ApplyDefaults(cfg *models.Config) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if cfg.CheckpointEvery <= 0 {
		cfg.CheckpointEvery = 10
	}
	if cfg.AuditCheckpointEvery <= 0 {
		cfg.AuditCheckpointEvery = 100
	}
	if cfg.RefreshHours <= 0 {
		cfg.RefreshHours = 72
	}
	if cfg.AuditRefreshHours <= 0 {
		cfg.AuditRefreshHours = 240
	}
	if cfg.FetchTimeoutSec <= 0 {
		cfg.FetchTimeoutSec = 15
	}
	if cfg.FetchRatePerSec <= 0 {
		cfg.FetchRatePerSec = 1.0
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 10
	}
}
