// Package logger is the structured logging layer shared by every component.
// Records are flat key=value or JSON lines with a stable key order; callers log
// through the context-first helpers (Info, Warn, ...) so that update and dialogue
// identifiers stored in the context end up on every line.
package logger

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	"github.com/m3rciful/formbot/core/buildinfo"
	coreconfig "github.com/m3rciful/formbot/core/config"
)

var (
	initOnce sync.Once
	closeMu  sync.Mutex
	closed   bool

	writers []*asyncWriter
	files   []io.Closer

	levelVar slog.LevelVar

	debugSampler  = newRatioSampler(1, 50)
	traceOverride bool

	// L is the base logger. It stays nil until InitLogger, and every helper
	// below is a no-op while it is.
	L *slog.Logger
)

// options is LoggingConfig resolved to concrete values.
type options struct {
	format     logFormat
	keyOrder   []string
	level      slog.Level
	sampleN    int
	sampleD    int
	profile    string
	botPath    string
	errorsPath string
}

func resolveOptions(cfg *coreconfig.Config) options {
	o := options{
		format:   formatJSON,
		keyOrder: slices.Clone(defaultKeyOrder),
		level:    slog.LevelInfo,
		sampleN:  1,
		sampleD:  50,
	}
	if cfg == nil {
		return o
	}
	lc := cfg.Logging

	o.profile = strings.ToLower(cmp.Or(strings.TrimSpace(lc.Profile), "prod"))
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		o.format = formatKV
	case "json":
	default:
		if o.profile == "debug" || o.profile == "dev" {
			o.format = formatKV
		}
	}

	if order := parseKeyOrder(lc.KeysOrder); len(order) > 0 {
		o.keyOrder = order
	}

	switch strings.ToLower(strings.TrimSpace(lc.Level)) {
	case "debug":
		o.level = slog.LevelDebug
	case "warn", "warning":
		o.level = slog.LevelWarn
	case "error":
		o.level = slog.LevelError
	}

	if spec := strings.TrimSpace(lc.DebugSample); spec != "" {
		n, d := parseRatioSpec(spec)
		if n > 0 && d > 0 || n == 0 && d == 0 {
			o.sampleN, o.sampleD = n, d
		}
	}

	if dir := strings.TrimSpace(lc.Dir); dir != "" {
		if f := strings.TrimSpace(lc.BotFile); f != "" {
			o.botPath = filepath.Join(dir, f)
		}
		if f := strings.TrimSpace(lc.ErrorsFile); f != "" {
			o.errorsPath = filepath.Join(dir, f)
		}
	}
	return o
}

func parseKeyOrder(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "default" {
		return nil
	}
	var order []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" && !slices.Contains(order, k) {
			order = append(order, k)
		}
	}
	return order
}

// InitLogger configures the global logger from cfg. Only the first call has an effect.
func InitLogger(cfg *coreconfig.Config) error {
	var err error
	initOnce.Do(func() {
		o := resolveOptions(cfg)
		levelVar.Set(o.level)
		debugSampler.Set(o.sampleN, o.sampleD)
		traceOverride = isTruthy(os.Getenv("TRACE")) || isTruthy(os.Getenv("LOG_TRACE"))

		var h slog.Handler
		h, err = buildHandler(o)
		if err != nil {
			return
		}
		L = slog.New(h)
		slog.SetDefault(L)

		L.LogAttrs(context.Background(), slog.LevelInfo, "startup",
			slog.String("component", "app"),
			slog.String("event", "startup"),
			slog.String("go_version", runtime.Version()),
			slog.String("build_version", buildinfo.Version),
			slog.String("build_commit", buildinfo.Commit),
			slog.String("build_time", buildinfo.Date),
			slog.String("cfg_profile", o.profile),
		)
	})
	return err
}

// buildHandler wires stdout plus the optional bot file into the main handler.
// The errors file, when configured, gets its own handler that only sees ERROR and above.
func buildHandler(o options) (slog.Handler, error) {
	outs := []io.Writer{os.Stdout}
	if o.botPath != "" {
		f, err := openLogFile(o.botPath)
		if err != nil {
			return nil, err
		}
		outs = append(outs, f)
	}
	mainW := newAsyncWriter(outs, 64*1024)
	writers = append(writers, mainW)
	h := newStructuredHandler(handlerConfig{level: &levelVar, writer: mainW, format: o.format, keyOrder: o.keyOrder})
	if o.errorsPath == "" {
		return h, nil
	}

	f, err := openLogFile(o.errorsPath)
	if err != nil {
		return nil, err
	}
	errW := newAsyncWriter([]io.Writer{f}, 16*1024)
	writers = append(writers, errW)
	return teeHandler{
		h,
		newStructuredHandler(handlerConfig{level: slog.LevelError, writer: errW, format: o.format, keyOrder: o.keyOrder}),
	}, nil
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logger: create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logger: open %s: %w", path, err)
	}
	files = append(files, f)
	return f, nil
}

// teeHandler passes each record to every handler that accepts its level.
type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return slices.ContainsFunc(t, func(h slog.Handler) bool { return h.Enabled(ctx, level) })
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}

// Shutdown flushes pending lines and closes log files. Later calls do nothing.
func Shutdown() error {
	closeMu.Lock()
	defer closeMu.Unlock()
	if closed {
		return nil
	}
	closed = true

	var errs []error
	for _, w := range writers {
		errs = append(errs, w.Close())
	}
	for _, f := range files {
		errs = append(errs, f.Close())
	}
	return errors.Join(errs...)
}

// Background is context.Background, kept so call sites read as logger.Background().
func Background() context.Context {
	return context.Background()
}

// LogEvent writes one record on logg, or on the context logger when logg is nil.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if logg == nil {
		return
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

// Component returns L tagged with the component name.
func Component(name string) *slog.Logger {
	if L == nil {
		return nil
	}
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

func logAt(ctx context.Context, level slog.Level, component, event string, attrs []slog.Attr) {
	logg := Component(component)
	if logg == nil {
		return
	}
	LogEvent(ctx, logg, level, event, attrs...)
}

func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	logAt(ctx, slog.LevelDebug, component, event, attrs)
}

func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	logAt(ctx, slog.LevelInfo, component, event, attrs)
}

func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	logAt(ctx, slog.LevelWarn, component, event, attrs)
}

func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	logAt(ctx, slog.LevelError, component, event, attrs)
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// ShouldSampleDebug gates high volume debug lines. TRACE=1 disables sampling.
func ShouldSampleDebug() bool {
	return traceOverride || debugSampler.Allow()
}
