// Package app wires configuration, storage and the dialogue into the Telegram runtime.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/formbot/bots/formbot/archive"
	"github.com/m3rciful/formbot/bots/formbot/config"
	"github.com/m3rciful/formbot/bots/formbot/form"
	"github.com/m3rciful/formbot/bots/formbot/handlers"
	"github.com/m3rciful/formbot/core/bootstrap"
	corecmd "github.com/m3rciful/formbot/core/cmd"
	"github.com/m3rciful/formbot/core/dialogue"
	"github.com/m3rciful/formbot/core/logger"
	"github.com/m3rciful/formbot/core/metrics"
	coreredis "github.com/m3rciful/formbot/core/redis"
	"github.com/m3rciful/formbot/core/state"
	coretelegram "github.com/m3rciful/formbot/core/telegram"
	"github.com/m3rciful/formbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/formbot/core/telegram/helpers"
	"github.com/m3rciful/formbot/core/telegram/router"
	tgsender "github.com/m3rciful/formbot/core/telegram/sender"
)

const (
	rateLimitedText = "Too many messages, please slow down"
	retryLaterText  = "Something went wrong on our side, please send that again in a moment"

	// replyRetries is how often the dispatcher retries a reply after a transient failure.
	replyRetries = 2
)

// App owns the infrastructure opened at bootstrap and the dialogue built on top of it.
type App struct {
	cfg     *config.Config
	infra   *bootstrap.Result
	archive archive.Store
	router  *dialogue.Router[form.Data]

	sup     *dialogue.Supervisor[form.Data]
	metrics *metrics.Server
}

// Bootstrap initializes logging and storage according to cfg.
func Bootstrap(ctx context.Context, cfg *config.Config) (*App, error) {
	infra, err := bootstrap.Run(ctx, bootstrap.Options{
		Config:   &cfg.Config,
		Database: cfg.Database,
		Redis:    cfg.Redis,
	})
	if err != nil {
		return nil, err
	}
	return New(cfg, infra), nil
}

// New builds the app on already opened infrastructure.
func New(cfg *config.Config, infra *bootstrap.Result) *App {
	if infra == nil {
		infra = &bootstrap.Result{}
	}
	var store archive.Store
	if cfg.Archive.Backend == archive.BackendPostgres && infra.DB != nil {
		store = archive.NewPostgresStore(infra.DB)
	} else {
		store = archive.NewMemoryStore()
	}
	return &App{
		cfg:     cfg,
		infra:   infra,
		archive: store,
		router:  handlers.BuildRouter(store),
	}
}

// BootstrapCarrier adapts Bootstrap to the shared command runner.
func BootstrapCarrier(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg, ok := carrier.(*config.Config)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}
	return Bootstrap(context.Background(), cfg)
}

// Registry lists the commands shown in the bot menu.
func Registry() *coretelegram.Registry {
	reg := coretelegram.NewRegistry()
	reg.RegisterCommand("/"+handlers.CmdStart, commands.Command{Description: "About this bot"})
	reg.RegisterCommand("/"+handlers.CmdFillForm, commands.Command{Description: "Fill in the form"})
	reg.RegisterCommand("/"+handlers.CmdCancel, commands.Command{Description: "Stop filling in the form"})
	reg.RegisterCommand("/"+handlers.CmdShowData, commands.Command{Description: "Show your saved form"})
	return reg
}

// TelegramRunOptions describes how the shared runtime should run this bot.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	core := &a.cfg.Config
	return coretelegram.RunOptions{
		Config:   core,
		Registry: Registry(),
		DispatcherOptions: tgsender.Options{
			MaxRetries: replyRetries,
			OnFailure:  func(action string, _ error) { metrics.IncSendFailure(action) },
		},
		Middlewares: coretelegram.DefaultMiddlewares(core, func(c tele.Context) error {
			return tghelpers.SendText(c, rateLimitedText)
		}),
		OnStart: a.start,
		BuildRoutes: func(_ context.Context, rt coretelegram.Runtime) ([]coretelegram.Route, error) {
			return router.DialogueRoutes(a.sup, rt.Registry, func(c tele.Context, _ error) {
				_ = tghelpers.SendText(c, retryLaterText)
			}), nil
		},
		OnStop: a.stop,
	}, nil
}

// Supervisor builds the dialogue supervisor for transport. It is separate from start so tests
// can drive the dialogue without Telegram.
func (a *App) Supervisor(transport dialogue.Transport) *dialogue.Supervisor[form.Data] {
	d := a.cfg.Dialogue
	opts := dialogue.Options{
		RetryAttempts: d.RetryAttempts,
		RetryBackoff:  d.RetryBackoff(),
		MaxPending:    d.MaxPending,
		Observer:      metrics.DialogueObserver{},
	}

	var store state.Store[form.Data]
	if client := a.infra.Redis; client != nil {
		var ttl time.Duration
		if a.cfg.Redis != nil {
			ttl = a.cfg.Redis.SessionTTL()
		}
		store = state.NewRedisStore[form.Data](client, state.RedisStoreOptions{TTL: ttl})
		if d.DistributedLock {
			opts.Locker = coreredis.NewLocker(client)
			opts.LockTTL = d.LockTTL()
			opts.LockKey = func(userID int64) string {
				return client.Key("lock", strconv.FormatInt(userID, 10))
			}
		}
	} else {
		store = state.NewMemoryStore[form.Data]()
	}
	return dialogue.NewSupervisor(store, a.router, transport, opts)
}

func (a *App) start(ctx context.Context, rt coretelegram.Runtime) error {
	a.sup = a.Supervisor(coretelegram.NewTransport(rt.Bot, rt.Dispatcher))

	backend := "memory"
	if a.infra.Redis != nil {
		backend = "redis"
	}
	logger.Info(ctx, "app", "dialogue.ready",
		slog.String("status", "ok"),
		slog.String("sessions", backend),
		slog.String("archive", a.cfg.Archive.Backend),
		slog.Bool("distributed_lock", a.cfg.Dialogue.DistributedLock),
	)

	if listen := a.cfg.Metrics.Listen; listen != "" {
		metrics.MustRegister()
		srv := metrics.NewServer(listen, a.cfg.Metrics.Path)
		for name, check := range a.healthChecks() {
			srv.AddCheck(name, check)
		}
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("app: metrics server: %w", err)
		}
		a.metrics = srv
	}
	return nil
}

// healthChecks pings the backends the dialogue actually depends on.
func (a *App) healthChecks() map[string]metrics.Check {
	checks := make(map[string]metrics.Check, 2)
	if client := a.infra.Redis; client != nil {
		checks["redis"] = client.Ping
	}
	if pg, ok := a.archive.(*archive.PostgresStore); ok {
		checks["postgres"] = pg.Ping
	}
	return checks
}

func (a *App) stop(ctx context.Context, _ coretelegram.Runtime) error {
	var errs []error
	if a.sup != nil {
		if err := a.sup.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("dialogue close: %w", err))
		}
	}
	if a.metrics != nil {
		if err := a.metrics.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics shutdown: %w", err))
		}
	}
	if err := a.infra.Close(); err != nil {
		errs = append(errs, fmt.Errorf("infra close: %w", err))
	}
	err := errors.Join(errs...)
	logger.Info(ctx, "app", "app.stopped",
		slog.String("status", logger.Status(err)),
		slog.Int("pending", a.pending()),
	)
	return err
}

func (a *App) pending() int {
	if a.sup == nil {
		return 0
	}
	return a.sup.Pending()
}
