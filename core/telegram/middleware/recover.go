package middleware

import (
	"fmt"
	"runtime/debug"

	"log/slog"

	"github.com/m3rciful/qnabot/core/logger"
	tghelpers "github.com/m3rciful/qnabot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RecoverMiddleware catches panics in handlers and prevents the bot from crashing.
// The panic is reported as the handler error.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				logger.LogEvent(tghelpers.BuildContext(c), logger.TG, slog.LevelError, "tg.panic",
					slog.String("status", "fail"),
					slog.Any("err", err),
					slog.String("stack", string(debug.Stack())),
				)
			}
		}()
		return next(c)
	}
}
