package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// render logs one event through a fresh handler and returns the written line.
func render(ctx context.Context, t *testing.T, format logFormat, level slog.Level, component, event string, attrs ...slog.Attr) string {
	t.Helper()
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	log := slog.New(newStructuredHandler(handlerConfig{
		level:  slog.LevelDebug,
		writer: aw,
		format: format,
	})).With("component", component)
	LogEvent(ctx, log, level, event, attrs...)
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected a log line")
	}
	return line
}

func TestKVLineStartsWithWellKnownKeys(t *testing.T) {
	ctx := WithUpdateMeta(WithRID(Background(), "rid-123"), 42, 7, 9)
	line := render(ctx, t, formatKV, slog.LevelInfo, "dialogue", "dialogue.handled",
		slog.String("status", "ok"),
		slog.String("cause", "unit"),
	)

	tokens := strings.Split(line, " ")
	want := []string{"ts=", "level=INFO", "component=dialogue", "event=dialogue.handled", "status=ok", "rid=rid-123", "update_id=42", "user_id=7", "chat_id=9"}
	if len(tokens) < len(want) {
		t.Fatalf("too few tokens in %s", line)
	}
	for i, prefix := range want {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %s, want prefix %s", i, tokens[i], prefix)
		}
	}
}

func TestJSONLineKeepsOrderAndIsValid(t *testing.T) {
	ctx := WithRID(Background(), "rid-json")
	line := render(ctx, t, formatJSON, slog.LevelError, "archive", "archive.save",
		slog.String("status", "fail"),
		slog.String("err", "boom"),
	)

	var decoded map[string]any
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("invalid json %s: %v", line, err)
	}
	pos := -1
	for _, pref := range []string{`{"ts":`, `"level":"ERROR"`, `"component":"archive"`, `"event":"archive.save"`, `"status":"fail"`, `"rid":"rid-json"`, `"err":"boom"`} {
		idx := strings.Index(line, pref)
		if idx == -1 || idx < pos {
			t.Fatalf("%s not found in order within %s", pref, line)
		}
		pos = idx
	}
}

func TestDialogueContextFields(t *testing.T) {
	ctx := WithDialogue(Background(), 55, "awaiting_age", "awaiting_age.text")
	line := render(ctx, t, formatKV, slog.LevelWarn, "dialogue", "dialogue.retry",
		slog.Int("attempt", 2),
	)
	for _, want := range []string{"user_id=55", "state=awaiting_age", "rule=awaiting_age.text", "attempt=2"} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %s in %s", want, line)
		}
	}
	if strings.Index(line, "user_id=") > strings.Index(line, "state=") {
		t.Fatalf("user_id must precede state: %s", line)
	}
}

func TestExplicitAttrsWinOverContext(t *testing.T) {
	ctx := WithDialogue(WithUpdateMeta(Background(), 1, 2, 3), 99, "awaiting_name", "awaiting_name.text")
	line := render(ctx, t, formatKV, slog.LevelInfo, "dialogue", "dialogue.handled",
		slog.String("state", "idle"),
	)
	if !strings.Contains(line, "state=idle") || strings.Contains(line, "state=awaiting_name") {
		t.Fatalf("explicit state must win: %s", line)
	}
	if !strings.Contains(line, "user_id=2 ") {
		t.Fatalf("user id from update meta must be kept: %s", line)
	}
}

func TestCompactRID(t *testing.T) {
	kv := render(WithRID(Background(), BuildRID(123, 456, 789)), t, formatKV, slog.LevelInfo, "app", "rid.test")
	if !strings.Contains(kv, "rid=3f.co.lx") {
		t.Fatalf("expected compact rid, got %s", kv)
	}
	if strings.Contains(kv, "rid_full=") {
		t.Fatalf("rid_full is json only, got %s", kv)
	}

	js := render(WithRID(Background(), "12:34:56"), t, formatJSON, slog.LevelInfo, "app", "rid.test")
	for _, want := range []string{`"rid":"c.y.1k"`, `"rid_full":"12:34:56"`, `"ts_unix_nano"`} {
		if !strings.Contains(js, want) {
			t.Fatalf("missing %s in %s", want, js)
		}
	}

	if got := compactRID("not-a-rid"); got != "not-a-rid" {
		t.Fatalf("foreign rid must pass through, got %s", got)
	}
}

func TestDurationsBecomeMilliseconds(t *testing.T) {
	line := render(Background(), t, formatKV, slog.LevelInfo, "app", "timing",
		slog.Duration("duration", 1500*time.Microsecond),
		slog.Duration("backoff", 200*time.Millisecond),
		slog.Any("lock_ttl_ms", 10*time.Second),
	)
	for _, want := range []string{"duration_ms=2", "backoff_ms=200", "lock_ttl_ms=10000"} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %s in %s", want, line)
		}
	}
}

func TestStatusAndOutcomeNormalization(t *testing.T) {
	line := render(Background(), t, formatKV, slog.LevelInfo, "app", "norm",
		slog.String("status", "queued"),
		slog.String("outcome", "bogus"),
		slog.String("empty", ""),
	)
	if !strings.Contains(line, "status=queued") {
		t.Fatalf("unknown status must be kept: %s", line)
	}
	if strings.Contains(line, "outcome=") || strings.Contains(line, "empty=") {
		t.Fatalf("invalid outcome and empty fields must be dropped: %s", line)
	}
}

func TestKVQuotesValuesWithSpaces(t *testing.T) {
	line := render(Background(), t, formatKV, slog.LevelInfo, "app", "quote",
		slog.String("err", "db down"),
	)
	if !strings.Contains(line, `err="db down"`) {
		t.Fatalf("expected quoted value: %s", line)
	}
}

func TestSanitizeLimit(t *testing.T) {
	if got := SanitizeLimit("a\x00b\u200bc\td", 10); got != "abc\td" {
		t.Fatalf("unexpected sanitize result %q", got)
	}
	if got := SanitizeLimit("Анна-Мария", 4); got != "Анна" {
		t.Fatalf("limit must count runes, got %q", got)
	}
	if got := SanitizeLimit("x", 0); got != "" {
		t.Fatalf("zero limit must produce empty string, got %q", got)
	}
}

func TestDisabledLevelIsSkipped(t *testing.T) {
	h := newStructuredHandler(handlerConfig{level: slog.LevelWarn})
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatalf("info must be disabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Fatalf("error must be enabled at warn level")
	}
}
