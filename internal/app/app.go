// Package app wires the Q&A bot: storage, dialog engine, transport and
// metrics, built from a Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/m3rciful/qnabot/core/bootstrap"
	corecmd "github.com/m3rciful/qnabot/core/cmd"
	coreconfig "github.com/m3rciful/qnabot/core/config"
	"github.com/m3rciful/qnabot/core/logger"
	"github.com/m3rciful/qnabot/core/metrics"
	coretelegram "github.com/m3rciful/qnabot/core/telegram"
	"github.com/m3rciful/qnabot/core/telegram/channel"
	"github.com/m3rciful/qnabot/core/telegram/commands"
	tghelpers "github.com/m3rciful/qnabot/core/telegram/helpers"
	"github.com/m3rciful/qnabot/core/telegram/router"
	"github.com/m3rciful/qnabot/core/telegram/sender"
	"github.com/m3rciful/qnabot/core/telegram/state"
	"github.com/m3rciful/qnabot/internal/notify"
	"github.com/m3rciful/qnabot/internal/qna"
	"github.com/m3rciful/qnabot/internal/qna/flow"
	"github.com/m3rciful/qnabot/internal/qna/store"

	tele "gopkg.in/telebot.v4"
)

const (
	metricsNamespace = "qnabot"
	textBusy         = "Please wait, your previous action is still in progress."
	textSlowDown     = "Too many messages. Please slow down."
)

// App is the assembled bot.
type App struct {
	cfg *Config

	db    *sqlx.DB
	redis *redis.Client

	bot        *tele.Bot
	dispatcher *sender.Dispatcher
	collector  *metrics.Collector
	mailboxes  *state.Mailboxes
	engine     *state.Engine
	channel    channel.Channel

	service  *qna.Service
	flow     *flow.Flow
	settings *notify.Settings
	commands *coretelegram.Registry
}

var (
	_ corecmd.TelegramApp = (*App)(nil)
	_ corecmd.ServiceApp  = (*App)(nil)
)

// Hooks replace infrastructure constructors in tests.
type Hooks struct {
	Bootstrap func(ctx context.Context, opts bootstrap.Options) (*bootstrap.Result, error)
	BuildBot  func(cfg *coreconfig.Config) (*tele.Bot, error)
}

// Bootstrap builds the App from cfg.
func Bootstrap(ctx context.Context, cfg *Config) (*App, error) {
	return BootstrapWith(ctx, cfg, Hooks{})
}

// BootstrapWith is Bootstrap with replaceable infrastructure.
func BootstrapWith(ctx context.Context, cfg *Config, hooks Hooks) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: nil config provided")
	}
	if hooks.Bootstrap == nil {
		hooks.Bootstrap = bootstrap.Run
	}
	if hooks.BuildBot == nil {
		hooks.BuildBot = coretelegram.BuildBot
	}

	a := &App{cfg: cfg}
	res, err := hooks.Bootstrap(ctx, bootstrap.Options{
		Config:     &cfg.Config,
		Database:   cfg.Database,
		Seeders:    []bootstrap.Seeder{store.AreaSeeder(cfg.QnA.Areas)},
		NoDatabase: cfg.QnA.Storage == StorageMemory,
	})
	if err != nil {
		return nil, err
	}
	a.db = res.DB

	ok := false
	defer func() {
		if ok {
			return
		}
		if a.dispatcher != nil {
			a.dispatcher.Close()
		}
		a.close()
	}()

	a.service = qna.NewService(a.repository(), qna.ServiceOptions{AdminID: cfg.Telegram.AdminID})

	reg := state.NewRegistry(nil)
	a.collector = metrics.NewCollector(metricsNamespace)

	if a.bot, err = hooks.BuildBot(&cfg.Config); err != nil {
		return nil, err
	}
	a.channel = channel.NewTelebot(a.bot, channel.TelebotOptions{Observer: a.collector})
	a.dispatcher = sender.NewDispatcher(sender.Options{
		QueueSize:    cfg.Sender.QueueSize,
		Workers:      cfg.Sender.Workers,
		MaxRetries:   cfg.Sender.MaxRetries,
		RetryBackoff: cfg.Sender.RetryBackoff,
		MaxDuration:  cfg.Sender.MaxDuration,
		Observer:     a.collector,
	})

	a.flow = flow.New(flow.Deps{Service: a.service, Channel: a.channel, FanOut: a.dispatcher})
	a.settings = notify.New(a.service, a.channel)
	if err := errors.Join(a.flow.Register(reg), a.settings.Register(reg)); err != nil {
		return nil, err
	}

	states, err := a.stateStore(ctx, reg)
	if err != nil {
		return nil, err
	}
	a.engine = state.NewEngine(reg, states, a.service, state.Options{
		RoleTimeout: cfg.Dialog.RoleTimeout,
		Observer:    a.collector,
	})
	a.mailboxes = state.NewMailboxes(state.MailboxOptions{
		Workers: cfg.Dialog.Workers,
		Size:    cfg.Dialog.MailboxSize,
		Timeout: cfg.Dialog.EventTimeout,
	})

	if err := errors.Join(
		a.collector.WatchGauge("mailbox_pending_jobs", "Dialog events waiting in user mailboxes.", a.mailboxes.Pending),
		a.collector.WatchGauge("sender_pending_jobs", "Outbound jobs waiting for a sender worker.", a.dispatcher.Pending),
	); err != nil {
		return nil, err
	}

	if a.commands, err = a.commandRegistry(); err != nil {
		return nil, err
	}

	logger.Info(ctx, logger.CompApp, "app.bootstrap",
		slog.String("status", "ok"),
		slog.String("storage", cfg.QnA.Storage),
		slog.String("dialog_store", cfg.Dialog.Store),
		slog.Int("areas", len(cfg.QnA.Areas)),
	)
	ok = true
	return a, nil
}

func (a *App) repository() qna.Repository {
	if a.db == nil {
		return qna.NewMemoryRepository(a.cfg.QnA.Areas...)
	}
	return store.New(a.db)
}

// stateStore picks the dialog state backend. Redis must answer a ping
// before the bot starts.
func (a *App) stateStore(ctx context.Context, reg *state.Registry) (state.Store, error) {
	if a.cfg.Dialog.Store != coreconfig.StoreRedis {
		return state.NewMemoryStore(), nil
	}
	r := a.cfg.Redis
	a.redis = redis.NewClient(&redis.Options{
		Addr:     r.Addr,
		Password: r.Password,
		DB:       r.DB,
	})
	rs := state.NewRedisStore(a.redis, reg.States(), state.RedisOptions{
		Prefix: r.KeyPrefix,
		TTL:    a.cfg.Dialog.StateTTL,
	})
	err := rs.Ping(ctx)
	logger.RDS.Info("redis ping",
		slog.String("event", "redis.connect"),
		slog.String("status", logger.Status(err)),
		slog.String("addr", r.Addr),
	)
	if err != nil {
		return nil, fmt.Errorf("app: redis unavailable: %w", err)
	}
	return rs, nil
}

func (a *App) commandRegistry() (*coretelegram.Registry, error) {
	reg := coretelegram.NewRegistry()
	var errs []error
	for _, set := range []map[string]commands.Command{
		a.flow.Commands(a.engine),
		a.settings.Commands(),
	} {
		for name, cmd := range set {
			errs = append(errs, reg.RegisterCommand(name, cmd))
		}
	}
	return reg, errors.Join(errs...)
}

// TelegramRunOptions implements cmd.TelegramApp.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	routes := router.CommandRoutes(a.commands, router.CommandRouteOptions{
		AdminID:   a.cfg.Telegram.AdminID,
		IsAdmin:   a.service.IsAdmin,
		Mailboxes: a.mailboxes,
	})
	routes = append(routes, router.HandlerRoute(tele.OnContact, "contact", a.flow.SaveContact, a.mailboxes))
	routes = append(routes, router.DialogRoutes(a.engine, a.mailboxes, router.DialogOptions{
		Channel:  a.channel,
		BusyText: textBusy,
	})...)

	return coretelegram.RunOptions{
		Config:      &a.cfg.Config,
		Bot:         a.bot,
		Registry:    a.commands,
		Dispatcher:  a.dispatcher,
		Middlewares: coretelegram.DefaultMiddlewares(&a.cfg.Config, a.collector, slowDown),
		Routes:      routes,
		// Pending fan-out jobs still read storage, so the dispatcher drains
		// before connections close.
		OnStop: func(ctx context.Context, _ coretelegram.Runtime) error {
			err := a.mailboxes.Close(ctx)
			a.flow.Wait()
			a.dispatcher.Close()
			a.close()
			return err
		},
	}, nil
}

func slowDown(c tele.Context) error {
	return tghelpers.Notice(c, textSlowDown)
}

// Services implements cmd.ServiceApp.
func (a *App) Services() []corecmd.Service {
	m := a.cfg.Metrics
	return []corecmd.Service{
		func(ctx context.Context) error { return a.collector.Serve(ctx, m.Listen, m.Path) },
	}
}

// close releases storage connections.
func (a *App) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.RDS.Warn("redis close failed", slog.String("event", "redis.close"), slog.Any("err", err))
		}
		a.redis = nil
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logger.DB.Warn("db close failed", slog.String("event", "db.close"), slog.Any("err", err))
		}
		a.db = nil
	}
}
