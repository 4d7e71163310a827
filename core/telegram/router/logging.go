package router

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/m3rciful/qnabot/core/logger"
	"github.com/m3rciful/qnabot/core/telegram/callbacks"
	"github.com/m3rciful/qnabot/core/telegram/channel"
	tghelpers "github.com/m3rciful/qnabot/core/telegram/helpers"
	"github.com/m3rciful/qnabot/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

// classify maps a handler error to the status and outcome of its summary line.
func classify(err error) (status, outcome string) {
	switch {
	case err == nil:
		return "ok", "ok"
	case errors.Is(err, state.ErrUnroutable):
		return "skip", state.OutcomeUnrouted
	case errors.Is(err, state.ErrMailboxFull), errors.Is(err, state.ErrClosed):
		return "dropped", "dropped"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled", "cancelled"
	default:
		return "fail", "fail"
	}
}

func logHandlerSummary(ctx context.Context, c tele.Context, handlerName string, start time.Time, err error, extras ...slog.Attr) {
	status, outcome := classify(err)
	msgs, kb := channel.Sent(ctx)

	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("handler", handlerName),
		slog.String("outcome", outcome),
		slog.Int64("duration_ms", logger.RoundMS(time.Since(start)).Milliseconds()),
	}
	if msgs > 0 {
		attrs = append(attrs, slog.Int("messages", msgs), slog.Bool("kb", kb))
	}
	if status == "fail" {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", deriveErrorCode(err)),
			slog.String("cause", handlerName),
		)
	}
	attrs = append(attrs, extras...)

	level := slog.LevelInfo
	if status == "skip" {
		level = slog.LevelDebug
	}
	logger.LogEvent(ctx, logger.TG, level, "handler.handled", attrs...)
}

func normalizeHandlerName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "unknown"
	}
	name = strings.TrimPrefix(name, "/")
	name = strings.ReplaceAll(name, " ", "_")
	return strings.ToLower(name)
}

func deriveErrorCode(err error) string {
	if err == nil {
		return ""
	}
	type coder interface{ Code() string }
	var c coder
	if errors.As(err, &c) {
		if code := strings.TrimSpace(c.Code()); code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t != nil && t.Name() != "" {
		return strings.ToUpper(t.Name())
	}
	return "UNKNOWN_ERROR"
}

// handlerName names the summary line of an update.
func handlerName(c tele.Context) string {
	if cb := c.Callback(); cb != nil {
		tag, _ := callbacks.FromCallback(cb)
		return "callback." + normalizeHandlerName(tag)
	}
	return "text"
}

// updateContext returns the logging context of an update with the handler set.
func updateContext(c tele.Context, name string) context.Context {
	return tghelpers.WithHandler(c, name)
}
