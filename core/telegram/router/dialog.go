package router

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/m3rciful/qnabot/core/logger"
	tg "github.com/m3rciful/qnabot/core/telegram"
	"github.com/m3rciful/qnabot/core/telegram/callbacks"
	"github.com/m3rciful/qnabot/core/telegram/channel"
	"github.com/m3rciful/qnabot/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

// DialogOptions configure DialogRoutes.
type DialogOptions struct {
	// Channel answers callback queries that handlers left unanswered.
	Channel channel.Channel
	// BusyText is shown on a callback dropped because the user's mailbox is full.
	BusyText string
}

// DialogRoutes feeds private text messages and callback queries to the
// dialog engine. Every update becomes a job in its sender's mailbox, so the
// events of one user are handled one at a time in arrival order. Commands
// are matched by their own routes before text reaches this handler.
func DialogRoutes(engine *state.Engine, boxes *state.Mailboxes, opts DialogOptions) []tg.Route {
	text := func(c tele.Context) error {
		msg, user := c.Message(), c.Sender()
		if msg == nil || user == nil || !private(c) {
			return nil
		}
		ev := state.TextEvent{
			UserID:    user.ID,
			ChatID:    c.Chat().ID,
			MessageID: msg.ID,
			Text:      msg.Text,
		}
		ctx := channel.WithTracking(updateContext(c, "text"))
		return submit(ctx, c, boxes, user.ID, "text", func(ctx context.Context) error {
			return engine.Dispatch(ctx, ev)
		}, nil)
	}

	callback := func(c tele.Context) error {
		cb := c.Callback()
		if cb == nil || cb.Sender == nil {
			return nil
		}
		tag, payload := callbacks.FromCallback(cb)
		ev := state.CallbackEvent{
			UserID:     cb.Sender.ID,
			CallbackID: cb.ID,
			Tag:        tag,
			Payload:    payload,
		}
		if m := cb.Message; m != nil && m.Chat != nil {
			ev.Origin = state.MessageRef{ChatID: m.Chat.ID, MessageID: m.ID}
		}

		name := handlerName(c)
		ctx := channel.WithTracking(updateContext(c, name))
		answer := func(ctx context.Context, err error) {
			if opts.Channel == nil || channel.Answered(ctx) {
				return
			}
			text := ""
			if errors.Is(err, state.ErrMailboxFull) {
				text = opts.BusyText
			}
			_ = opts.Channel.Answer(ctx, ev.CallbackID, text)
		}
		return submit(ctx, c, boxes, ev.UserID, name, func(ctx context.Context) error {
			return engine.Dispatch(ctx, ev)
		}, answer)
	}

	return []tg.Route{
		{Endpoint: tele.OnText, Handler: text},
		{Endpoint: tele.OnCallback, Handler: callback},
	}
}

// submit queues job in the user's mailbox and logs its summary once it ran.
// after, when set, runs once the job finished or was rejected.
func submit(ctx context.Context, c tele.Context, boxes *state.Mailboxes, userID int64, name string, job func(context.Context) error, after func(context.Context, error)) error {
	start := time.Now()
	err := boxes.Submit(ctx, userID, func(ctx context.Context) {
		err := job(ctx)
		if after != nil {
			after(ctx, err)
		}
		logHandlerSummary(ctx, c, name, start, err)
	})
	if err != nil {
		logger.LogEvent(ctx, logger.TG, slog.LevelWarn, "mailbox.reject",
			slog.String("status", "dropped"),
			slog.Any("err", err),
		)
		if after != nil {
			after(ctx, err)
		}
		logHandlerSummary(ctx, c, name, start, err)
	}
	return nil
}

func private(c tele.Context) bool {
	chat := c.Chat()
	return chat != nil && chat.Type == tele.ChatPrivate
}
