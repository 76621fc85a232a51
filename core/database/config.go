package database

import (
	"errors"
	"net"
	"net/url"
	"strings"
)

// Config is the Postgres section of a bot config.
type Config struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	// MigrationsDir is resolved against the working directory when relative.
	MigrationsDir string `yaml:"migrations_dir" envconfig:"DB_MIGRATIONS_DIR"`
}

const DefaultMigrationsDir = "migrations"

// Normalize fills defaults and rejects incomplete settings.
func (c *Config) Normalize() error {
	switch {
	case c.Host == "":
		return errors.New("database.host is required")
	case c.Name == "":
		return errors.New("database.name is required")
	}
	c.Port = orDefault(c.Port, "5432")
	c.SSLMode = orDefault(c.SSLMode, "disable")
	c.MigrationsDir = orDefault(c.MigrationsDir, DefaultMigrationsDir)
	if c.MaxConnections <= 0 {
		c.MaxConnections = 5
	}
	return nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// DSN returns the key/value connection string understood by lib/pq.
func (c Config) DSN() string {
	pairs := [][2]string{
		{"user", c.User}, {"password", c.Password},
		{"host", c.Host}, {"port", c.Port},
		{"dbname", c.Name}, {"sslmode", c.SSLMode},
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, p[0]+"="+quoteDSN(p[1]))
	}
	return strings.Join(parts, " ")
}

// quoteDSN quotes v when it is empty or contains characters the key/value
// syntax treats specially.
func quoteDSN(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v)
	return "'" + v + "'"
}

// URL returns the postgres:// form golang-migrate expects.
func (c Config) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}
