package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/m3rciful/formbot/core/logger"
	coreredis "github.com/m3rciful/formbot/core/redis"
)

// RedisStoreOptions configures NewRedisStore.
type RedisStoreOptions struct {
	// TTL expires a session after the given inactivity; 0 keeps sessions forever.
	TTL time.Duration
}

type record[D any] struct {
	State State `json:"state"`
	Data  D     `json:"data"`
}

type redisStore[D any] struct {
	client *coreredis.Client
	ttl    time.Duration
}

// NewRedisStore returns a Store that keeps one JSON record per user in Redis, so dialogues
// survive restarts and can be shared by several bot instances.
func NewRedisStore[D any](client *coreredis.Client, opts RedisStoreOptions) Store[D] {
	return &redisStore[D]{client: client, ttl: opts.TTL}
}

func (s *redisStore[D]) key(userID int64) string {
	return s.client.Key("fsm", strconv.FormatInt(userID, 10))
}

func (s *redisStore[D]) Get(ctx context.Context, userID int64) (Session[D], error) {
	raw, err := s.client.Get(ctx, s.key(userID))
	if errors.Is(err, coreredis.ErrNotFound) {
		return Idle[D](userID), nil
	}
	if err != nil {
		return Session[D]{}, fmt.Errorf("%w: get %d: %v", ErrUnavailable, userID, err)
	}

	var rec record[D]
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		// Undecodable records are dropped and the user starts from idle.
		logger.Warn(ctx, "dialogue", "state.decode",
			slog.String("status", "skip"),
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
		if err := s.Clear(ctx, userID); err != nil {
			return Session[D]{}, err
		}
		return Idle[D](userID), nil
	}
	if rec.State.IsIdle() {
		return Idle[D](userID), nil
	}
	return Session[D]{UserID: userID, State: rec.State, Data: rec.Data}, nil
}

func (s *redisStore[D]) Set(ctx context.Context, sess Session[D]) error {
	if sess.State.IsIdle() {
		return s.Clear(ctx, sess.UserID)
	}
	data, err := json.Marshal(record[D]{State: sess.State, Data: sess.Data})
	if err != nil {
		return fmt.Errorf("encode session %d: %w", sess.UserID, err)
	}
	if err := s.client.Set(ctx, s.key(sess.UserID), data, s.ttl); err != nil {
		return fmt.Errorf("%w: set %d: %v", ErrUnavailable, sess.UserID, err)
	}
	return nil
}

func (s *redisStore[D]) Clear(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, s.key(userID)); err != nil {
		return fmt.Errorf("%w: clear %d: %v", ErrUnavailable, userID, err)
	}
	return nil
}
