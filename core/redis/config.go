package redis

import (
	"fmt"
	"strings"
	"time"
)

// Config holds Redis connection settings shared across bots.
type Config struct {
	Addr     string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`
	// KeyPrefix namespaces every key written by the bot, e.g. "formbot:".
	KeyPrefix string `yaml:"key_prefix" envconfig:"REDIS_KEY_PREFIX"`
	// SessionTTLSeconds expires idle dialogue sessions; 0 keeps them forever.
	SessionTTLSeconds int `yaml:"session_ttl_seconds" envconfig:"REDIS_SESSION_TTL_SECONDS"`
	// DialTimeoutMS bounds the initial connect and ping; 0 -> 5s.
	DialTimeoutMS int `yaml:"dial_timeout_ms" envconfig:"REDIS_DIAL_TIMEOUT_MS"`
}

// Normalize validates the configuration and fills defaults.
func (c *Config) Normalize() error {
	c.Addr = strings.TrimSpace(c.Addr)
	if c.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if c.DB < 0 {
		return fmt.Errorf("redis.db must be >= 0")
	}
	if c.SessionTTLSeconds < 0 {
		return fmt.Errorf("redis.session_ttl_seconds must be >= 0")
	}
	if c.DialTimeoutMS < 0 {
		return fmt.Errorf("redis.dial_timeout_ms must be >= 0")
	}
	return nil
}

// SessionTTL returns the configured session expiry (0 means no expiry).
func (c Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSeconds) * time.Second
}

func (c Config) dialTimeout() time.Duration {
	if c.DialTimeoutMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.DialTimeoutMS) * time.Millisecond
}
