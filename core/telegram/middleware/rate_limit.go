package middleware

import (
	"log/slog"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/formbot/core/logger"
	"github.com/m3rciful/formbot/core/metrics"
	tghelpers "github.com/m3rciful/formbot/core/telegram/helpers"
)

// RateLimitOptions configures RateLimitMiddleware. Exclude holds UpdateKind values
// that are never limited.
type RateLimitOptions struct {
	Interval  time.Duration
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
}

// lastSeen remembers when each user was last let through.
type lastSeen struct {
	mu       sync.Mutex
	at       map[int64]time.Time
	interval time.Duration
	pruned   time.Time
}

// allow records now for userID unless the previous update is closer than interval.
func (l *lastSeen) allow(userID int64, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.pruned) > 10*l.interval {
		for id, t := range l.at {
			if now.Sub(t) >= l.interval {
				delete(l.at, id)
			}
		}
		l.pruned = now
	}
	if t, ok := l.at[userID]; ok && now.Sub(t) < l.interval {
		return false
	}
	l.at[userID] = now
	return true
}

// RateLimitMiddleware drops updates from a user that arrive within Interval of
// the last accepted one.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	seen := &lastSeen{at: make(map[int64]time.Time), interval: opts.Interval}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}
			kind := UpdateKind(c)
			if _, skip := opts.Exclude[kind]; skip || seen.allow(user.ID, time.Now()) {
				return next(c)
			}

			metrics.IncRateLimited()
			logger.Warn(tghelpers.BuildContext(c), "tg", "tg.rate_limit",
				slog.String("status", "rate_limited"),
				slog.String("kind", kind),
			)
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}
