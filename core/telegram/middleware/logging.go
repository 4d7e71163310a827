package middleware

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/m3rciful/qnabot/core/logger"
	"github.com/m3rciful/qnabot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/qnabot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

const receiptTTL = 10 * time.Second

// receipts remembers recently logged update ids, so an update passing the
// middleware on several route groups is logged once.
type receipts struct {
	mu        sync.Mutex
	seen      map[int]time.Time
	lastSweep time.Time
}

var logged = &receipts{seen: make(map[int]time.Time)}

func (r *receipts) first(updateID int, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if now.Sub(r.lastSweep) > receiptTTL {
		for id, ts := range r.seen {
			if now.Sub(ts) > receiptTTL {
				delete(r.seen, id)
			}
		}
		r.lastSweep = now
	}
	if _, ok := r.seen[updateID]; ok {
		return false
	}
	r.seen[updateID] = now
	return true
}

// LoggerMiddleware stores the update context (rid, user, chat) for the
// handlers below it and, when debug sampling allows, logs one receipt line
// per update.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		upd := c.Update()
		userID, chatID := tghelpers.IDs(c)

		rid := logger.BuildRID(upd.ID, chatID, userID)
		ctx := logger.WithRID(context.Background(), rid)
		ctx = logger.WithUpdateMeta(ctx, upd.ID, userID, chatID)
		ctx = logger.WithLogger(ctx, logger.TG)
		tghelpers.StoreContext(c, ctx)

		if logger.ShouldSampleDebug() && logged.first(upd.ID, time.Now()) {
			logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "update.received", receiptAttrs(c, rid)...)
		}
		return next(c)
	}
}

func receiptAttrs(c tele.Context, rid string) []slog.Attr {
	upd := c.Update()
	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.String("rid", rid),
		slog.Int("update_id", upd.ID),
		slog.String("kind", UpdateKind(upd)),
	}
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs, slog.Int64("chat_id", chat.ID), slog.String("chat_type", string(chat.Type)))
	}
	if user := c.Sender(); user != nil {
		attrs = append(attrs, slog.Int64("user_id", user.ID))
		if user.Username != "" {
			attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
		}
		if user.LanguageCode != "" {
			attrs = append(attrs, slog.String("lang", user.LanguageCode))
		}
	}

	switch {
	case upd.Callback != nil:
		tag, payload := callbacks.FromCallback(upd.Callback)
		if tag != "" {
			attrs = append(attrs, slog.String("tag", logger.SanitizeLimit(tag, 128)))
		}
		if payload != "" {
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(payload, 256)))
		}
	case upd.Message != nil && upd.Message.Contact != nil:
		// Phone numbers stay out of the logs.
		attrs = append(attrs, slog.Bool("contact", true))
	case upd.Message != nil:
		text := c.Text()
		if strings.HasPrefix(text, "/") {
			cmd, _, _ := strings.Cut(text, " ")
			attrs = append(attrs, slog.String("command", logger.SanitizeLimit(cmd, 64)))
		} else if text != "" {
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(text, 256)))
		}
	}
	return attrs
}
