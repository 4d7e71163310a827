package middleware

import (
	"context"

	tghelpers "github.com/m3rciful/qnabot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// AdminOptions defines how admin-only checks should behave.
type AdminOptions struct {
	// AdminID is always treated as an admin.
	AdminID int64
	// IsAdmin is consulted for every other user when set.
	IsAdmin  func(ctx context.Context, userID int64) bool
	OnReject tele.HandlerFunc
}

func (o AdminOptions) allowed(c tele.Context) bool {
	user := c.Sender()
	if user == nil {
		return false
	}
	if o.AdminID != 0 && user.ID == o.AdminID {
		return true
	}
	if o.IsAdmin != nil {
		return o.IsAdmin(tghelpers.BuildContext(c), user.ID)
	}
	return o.AdminID == 0
}

// AdminOnlyMiddleware ensures that only admins can invoke downstream handlers.
// With neither AdminID nor IsAdmin configured every user passes.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if !opts.allowed(c) {
				if opts.OnReject != nil {
					return opts.OnReject(c)
				}
				return nil
			}
			return next(c)
		}
	}
}

// PrivateChatMiddleware drops updates that do not come from a user in a
// private chat.
func PrivateChatMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		chat := c.Chat()
		if c.Sender() == nil || chat == nil || chat.Type != tele.ChatPrivate {
			return nil
		}
		return next(c)
	}
}
