// Package config loads the formbot configuration: the shared core settings plus storage and
// dialogue tuning.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/m3rciful/formbot/bots/formbot/archive"
	coreconfig "github.com/m3rciful/formbot/core/config"
	coredatabase "github.com/m3rciful/formbot/core/database"
	coreredis "github.com/m3rciful/formbot/core/redis"
)

// DialogueConfig tunes the session supervisor.
type DialogueConfig struct {
	RetryAttempts  int `yaml:"retry_attempts" envconfig:"DIALOGUE_RETRY_ATTEMPTS"`
	RetryBackoffMS int `yaml:"retry_backoff_ms" envconfig:"DIALOGUE_RETRY_BACKOFF_MS"`
	// DistributedLock serializes a user across several bot instances through Redis.
	DistributedLock bool `yaml:"distributed_lock" envconfig:"DIALOGUE_DISTRIBUTED_LOCK"`
	LockTTLMS       int  `yaml:"lock_ttl_ms" envconfig:"DIALOGUE_LOCK_TTL_MS"`
	// MaxPending bounds queued updates per user; 0 disables the limit.
	MaxPending int `yaml:"max_pending" envconfig:"DIALOGUE_MAX_PENDING"`
}

// RetryBackoff returns the base delay between retries.
func (d DialogueConfig) RetryBackoff() time.Duration {
	return time.Duration(d.RetryBackoffMS) * time.Millisecond
}

// LockTTL returns the distributed lock expiry.
func (d DialogueConfig) LockTTL() time.Duration {
	return time.Duration(d.LockTTLMS) * time.Millisecond
}

// ArchiveConfig selects where completed forms are kept.
type ArchiveConfig struct {
	Backend string `yaml:"backend" envconfig:"ARCHIVE_BACKEND"`
}

// Config is the full formbot configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database *coredatabase.Config `yaml:"database"`
	Redis    *coreredis.Config    `yaml:"redis"`
	Dialogue DialogueConfig       `yaml:"dialogue"`
	Archive  ArchiveConfig        `yaml:"archive"`
}

// CoreConfig exposes the embedded core configuration to the shared runner.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Config
}

// Load reads YAML from path, overlays environment variables and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates cfg and fills defaults.
func Normalize(cfg *Config) error {
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return err
	}

	// envconfig allocates nil sections, so an empty address or host means "not configured".
	if cfg.Redis != nil && strings.TrimSpace(cfg.Redis.Addr) == "" {
		cfg.Redis = nil
	}
	if cfg.Database != nil && strings.TrimSpace(cfg.Database.Host) == "" {
		cfg.Database = nil
	}
	if cfg.Redis != nil {
		if err := cfg.Redis.Normalize(); err != nil {
			return err
		}
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Archive.Backend))
	if backend == "" {
		backend = archive.BackendMemory
		if cfg.Database != nil {
			backend = archive.BackendPostgres
		}
	}
	switch backend {
	case archive.BackendPostgres:
		if cfg.Database == nil {
			return fmt.Errorf("database section is required when archive.backend is %q", backend)
		}
		if err := cfg.Database.Normalize(); err != nil {
			return err
		}
	case archive.BackendMemory:
		cfg.Database = nil
	default:
		return fmt.Errorf("invalid archive.backend %q; allowed: postgres, memory", cfg.Archive.Backend)
	}
	cfg.Archive.Backend = backend

	d := &cfg.Dialogue
	if d.RetryAttempts < 0 || d.RetryBackoffMS < 0 || d.LockTTLMS < 0 || d.MaxPending < 0 {
		return fmt.Errorf("dialogue settings must be >= 0")
	}
	if d.RetryAttempts == 0 {
		d.RetryAttempts = 3
	}
	if d.RetryBackoffMS == 0 {
		d.RetryBackoffMS = 200
	}
	if d.LockTTLMS == 0 {
		d.LockTTLMS = 10000
	}
	if d.DistributedLock && cfg.Redis == nil {
		return fmt.Errorf("dialogue.distributed_lock requires the redis section")
	}
	return nil
}
