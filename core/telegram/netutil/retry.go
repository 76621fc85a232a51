// Package netutil classifies Bot API failures for retry decisions.
package netutil

import (
	"errors"
	"net"
	"syscall"
	"time"

	tele "gopkg.in/telebot.v4"
)

// maxFloodWait caps how long one retry honours Telegram's retry_after.
const maxFloodWait = 30 * time.Second

// ShouldRetry reports whether err is transient: a timeout, a refused or reset
// connection, a failed dial, or Telegram flood control.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if _, flood := RetryAfter(err); flood {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE)
}

// RetryAfter returns the wait a Telegram flood error asks for, clamped to
// [1s, maxFloodWait].
func RetryAfter(err error) (time.Duration, bool) {
	var flood tele.FloodError
	if !errors.As(err, &flood) {
		return 0, false
	}
	wait := time.Duration(flood.RetryAfter) * time.Second
	return min(max(wait, time.Second), maxFloodWait), true
}
