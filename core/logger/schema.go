package logger

import "strings"

// Level names as they appear in the level field.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
	LevelFatal = "FATAL"
)

// enum is a closed set of lower-case values for one field.
type enum map[string]struct{}

func newEnum(values ...string) enum {
	e := make(enum, len(values))
	for _, v := range values {
		e[v] = struct{}{}
	}
	return e
}

// normalize lower-cases v and reports whether it belongs to the set.
func (e enum) normalize(v string) (string, bool) {
	v = strings.ToLower(strings.TrimSpace(v))
	_, ok := e[v]
	return v, ok && v != ""
}

var (
	statusValues  = newEnum("ok", "fail", "skip", "retry", "queued", "rate_limited", "cancelled")
	cacheValues   = newEnum("hit", "miss", "refresh")
	outcomeValues = newEnum("ok", "fail", "cancelled", "rate_limited")
)

func normalizeLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "":
		return LevelInfo
	case "warning":
		return LevelWarn
	default:
		return strings.ToUpper(strings.TrimSpace(level))
	}
}

func normalizeStatus(s string) (string, bool)  { return statusValues.normalize(s) }
func normalizeCache(s string) (string, bool)   { return cacheValues.normalize(s) }
func normalizeOutcome(s string) (string, bool) { return outcomeValues.normalize(s) }
