package channel

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/m3rciful/qnabot/core/logger"
	"github.com/m3rciful/qnabot/core/telegram/netutil"
	"github.com/m3rciful/qnabot/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

// TelebotOptions configure a Telebot channel.
type TelebotOptions struct {
	ParseMode tele.ParseMode
	Observer  Observer
}

// Telebot implements Channel on top of a telebot bot.
type Telebot struct {
	bot  *tele.Bot
	opts TelebotOptions
}

var _ Channel = (*Telebot)(nil)

// NewTelebot wraps bot.
func NewTelebot(bot *tele.Bot, opts TelebotOptions) *Telebot {
	return &Telebot{bot: bot, opts: opts}
}

func stored(ref state.MessageRef) tele.StoredMessage {
	return tele.StoredMessage{MessageID: strconv.Itoa(ref.MessageID), ChatID: ref.ChatID}
}

func (t *Telebot) sendOptions(markup *tele.ReplyMarkup) *tele.SendOptions {
	return &tele.SendOptions{ParseMode: t.opts.ParseMode, ReplyMarkup: markup}
}

// SendText implements Channel.
func (t *Telebot) SendText(ctx context.Context, userID int64, text string, markup *tele.ReplyMarkup) (state.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return state.MessageRef{}, err
	}
	msg, err := t.bot.Send(tele.ChatID(userID), text, t.sendOptions(markup))
	t.done(ctx, ActionSendText, "sendMessage", err)
	if err != nil {
		return state.MessageRef{}, err
	}
	MarkSent(ctx, markup != nil)
	ref := state.MessageRef{ChatID: userID, MessageID: msg.ID}
	if msg.Chat != nil {
		ref.ChatID = msg.Chat.ID
	}
	return ref, nil
}

// EditText implements Channel.
func (t *Telebot) EditText(ctx context.Context, ref state.MessageRef, text string, markup *tele.ReplyMarkup) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.bot.Edit(stored(ref), text, t.sendOptions(markup))
	err = ignoreNotModified(err)
	t.done(ctx, ActionEditText, "editMessageText", err)
	if err == nil {
		MarkSent(ctx, markup != nil)
	}
	return err
}

// EditMarkup implements Channel.
func (t *Telebot) EditMarkup(ctx context.Context, ref state.MessageRef, markup *tele.ReplyMarkup) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.bot.EditReplyMarkup(stored(ref), markup)
	err = ignoreNotModified(err)
	t.done(ctx, ActionEditMarkup, "editMessageReplyMarkup", err)
	if err == nil {
		MarkSent(ctx, markup != nil)
	}
	return err
}

// Delete implements Channel.
func (t *Telebot) Delete(ctx context.Context, ref state.MessageRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := t.bot.Delete(stored(ref))
	t.done(ctx, ActionDelete, "deleteMessage", err)
	return err
}

// SendContact implements Channel.
func (t *Telebot) SendContact(ctx context.Context, userID int64, phone, firstName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.bot.Send(tele.ChatID(userID), &tele.Contact{PhoneNumber: phone, FirstName: firstName})
	t.done(ctx, ActionSendContact, "sendContact", err)
	if err == nil {
		MarkSent(ctx, false)
	}
	return err
}

// Answer implements Channel. A successful answer is recorded in ctx for
// the callback router.
func (t *Telebot) Answer(ctx context.Context, callbackID, text string) error {
	if callbackID == "" {
		return nil
	}
	err := t.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
	if err == nil {
		MarkAnswered(ctx)
	}
	t.done(ctx, ActionAnswer, "answerCallbackQuery", err)
	return err
}

func (t *Telebot) done(ctx context.Context, action, endpoint string, err error) {
	outcome := logger.Status(err)
	if t.opts.Observer != nil {
		t.opts.Observer.ObserveSend(action, outcome)
	}
	if err != nil {
		logger.Warn(ctx, logger.CompTG, "channel."+action,
			slog.String("status", "fail"),
			slog.String("action", action),
			slog.String("endpoint", endpoint),
			slog.String("err", netutil.Redact(err)),
			slog.String("cause", netutil.Cause(err)),
		)
		return
	}
	if logger.ShouldSampleDebug() {
		logger.Debug(ctx, logger.CompTG, "channel."+action,
			slog.String("status", "ok"),
			slog.String("action", action),
			slog.String("endpoint", endpoint),
		)
	}
}

// ignoreNotModified treats Telegram's "message is not modified" reply as
// success: the message already shows what was requested.
func ignoreNotModified(err error) error {
	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		return nil
	}
	return err
}
