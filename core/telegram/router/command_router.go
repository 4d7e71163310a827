package router

import (
	"context"
	"log/slog"
	"time"

	"github.com/m3rciful/qnabot/core/logger"
	tg "github.com/m3rciful/qnabot/core/telegram"
	"github.com/m3rciful/qnabot/core/telegram/channel"
	"github.com/m3rciful/qnabot/core/telegram/commands"
	tghelpers "github.com/m3rciful/qnabot/core/telegram/helpers"
	"github.com/m3rciful/qnabot/core/telegram/middleware"
	"github.com/m3rciful/qnabot/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

// CommandRouteOptions configures how commands are wrapped and exposed.
type CommandRouteOptions struct {
	AdminID       int64
	IsAdmin       func(ctx context.Context, userID int64) bool
	OnAdminReject tele.HandlerFunc
	// Mailboxes, when set, runs commands in the sender's mailbox so they are
	// ordered with the user's dialog events.
	Mailboxes *state.Mailboxes
}

// CommandRoutes prepares command handlers, aliases included, wrapped with
// the private chat and admin checks.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}

	adminOpts := middleware.AdminOptions{
		AdminID:  opts.AdminID,
		IsAdmin:  opts.IsAdmin,
		OnReject: opts.OnAdminReject,
	}

	var routes []tg.Route
	for cmd, def := range reg.Commands() {
		h := wrapCommand(cmd, def, adminOpts, opts.Mailboxes)
		routes = append(routes, tg.Route{Endpoint: cmd, Handler: h})
		for _, alias := range def.Aliases {
			routes = append(routes, tg.Route{Endpoint: "/" + trimSlash(alias), Handler: h})
		}
	}

	logger.TWire.Info("tg.wire",
		slog.String("event", "complete"),
		slog.Int("commands", len(reg.Commands())),
		slog.Int("routes", len(routes)),
	)
	return routes
}

// HandlerRoute binds h to endpoint with the same wrapping as commands, so
// updates such as shared contacts are ordered with the sender's dialog.
func HandlerRoute(endpoint any, name string, h tele.HandlerFunc, boxes *state.Mailboxes) tg.Route {
	return tg.Route{Endpoint: endpoint, Handler: wrapHandler(normalizeHandlerName(name), h, boxes)}
}

func wrapCommand(cmd string, def commands.Command, adminOpts middleware.AdminOptions, boxes *state.Mailboxes) tele.HandlerFunc {
	h := def.Handler
	if def.PrivateOnly {
		h = middleware.PrivateChatMiddleware(h)
	}
	if def.AdminOnly {
		h = middleware.AdminOnlyMiddleware(adminOpts)(h)
	}
	return wrapHandler("command."+normalizeHandlerName(cmd), h, boxes)
}

func wrapHandler(name string, h tele.HandlerFunc, boxes *state.Mailboxes) tele.HandlerFunc {
	h = middleware.RecoverMiddleware(h)

	return func(c tele.Context) error {
		ctx := channel.WithTracking(updateContext(c, name))
		user := c.Sender()
		if boxes == nil || user == nil {
			start := time.Now()
			tghelpers.StoreContext(c, ctx)
			err := h(c)
			logHandlerSummary(ctx, c, name, start, err)
			return nil
		}
		return submit(ctx, c, boxes, user.ID, name, func(ctx context.Context) error {
			tghelpers.StoreContext(c, ctx)
			return h(c)
		}, nil)
	}
}

func trimSlash(s string) string {
	if len(s) > 0 && s[0] == '/' {
		return s[1:]
	}
	return s
}
