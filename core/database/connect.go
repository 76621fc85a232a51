package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/m3rciful/formbot/core/logger"
)

const (
	// connectTimeout bounds the whole wait for Postgres, retries included.
	connectTimeout = 30 * time.Second
	connectBackoff = 2 * time.Second
)

// Connect opens the pool and blocks until Postgres answers a ping. A database
// that is still starting up is retried until connectTimeout.
func Connect(cfg Config) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	began := time.Now()
	db, attempts, err := dial(ctx, cfg.DSN())
	took := time.Since(began)
	attrs := []slog.Attr{
		slog.String("host", cfg.Host),
		slog.String("port", cfg.Port),
		slog.String("db", cfg.Name),
		slog.Int("attempts", attempts),
		slog.Duration("duration", logger.RoundMS(took)),
	}
	if err != nil {
		logger.Error(ctx, "db", "db.connect", append(attrs,
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)...)
		return nil, fmt.Errorf("db connect: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxConnections)
	logger.Info(ctx, "db", "db.connect", append(attrs,
		slog.String("status", "ok"),
		slog.Int("pool_open", cfg.MaxConnections),
	)...)
	return db, nil
}

// dial retries sqlx.ConnectContext, which opens and pings, until it succeeds
// or ctx expires. It returns the last error seen.
func dial(ctx context.Context, dsn string) (*sqlx.DB, int, error) {
	for attempt := 1; ; attempt++ {
		db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
		if err == nil {
			return db, attempt, nil
		}
		select {
		case <-ctx.Done():
			return nil, attempt, err
		case <-time.After(connectBackoff):
		}
	}
}
