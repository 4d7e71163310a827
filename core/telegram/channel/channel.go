// Package channel is the outbound side of a dialog: the operations handlers
// use to talk back to a user. Failures are reported to the caller and never
// roll back a committed state.
package channel

import (
	"context"

	"github.com/m3rciful/qnabot/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

// Channel sends and edits messages on behalf of dialog handlers.
type Channel interface {
	// SendText sends text to a private chat and returns the new message.
	// A nil markup sends the message without a keyboard.
	SendText(ctx context.Context, userID int64, text string, markup *tele.ReplyMarkup) (state.MessageRef, error)
	// EditText replaces the text of a message. A nil markup removes its inline keyboard.
	EditText(ctx context.Context, ref state.MessageRef, text string, markup *tele.ReplyMarkup) error
	// EditMarkup replaces the inline keyboard of a message. A nil markup removes it.
	EditMarkup(ctx context.Context, ref state.MessageRef, markup *tele.ReplyMarkup) error
	Delete(ctx context.Context, ref state.MessageRef) error
	SendContact(ctx context.Context, userID int64, phone, firstName string) error
	// Answer acknowledges a callback query, optionally showing text to the user.
	Answer(ctx context.Context, callbackID, text string) error
}

// Send actions reported to the Observer.
const (
	ActionSendText    = "send.text"
	ActionEditText    = "edit.text"
	ActionEditMarkup  = "edit.markup"
	ActionDelete      = "delete"
	ActionSendContact = "send.contact"
	ActionAnswer      = "answer"
)

// Observer counts outbound calls by action and outcome.
type Observer interface {
	ObserveSend(action, outcome string)
}
