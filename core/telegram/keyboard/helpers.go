// Package keyboard builds reply and inline keyboards. Inline buttons carry
// typed callback queries encoded by a callbacks.Codec.
package keyboard

import (
	"fmt"

	"github.com/m3rciful/qnabot/core/telegram/callbacks"

	tele "gopkg.in/telebot.v4"
)

// InlineBtn describes a convenience wrapper for inline button properties.
type InlineBtn struct {
	Text   string
	Unique string
	Data   string
}

// QueryBtn is an inline button that sends Query when pressed.
type QueryBtn struct {
	Text  string
	Query callbacks.Query
}

// RemoveKeyboard returns a markup that hides the keyboard.
func RemoveKeyboard() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{RemoveKeyboard: true}
}

// ReplyButtons builds a reply keyboard from rows of text.
func ReplyButtons(rows ...[]string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{ResizeKeyboard: true}
	keyboard := make([]tele.Row, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tele.Btn, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, markup.Text(label))
		}
		keyboard = append(keyboard, markup.Row(buttons...))
	}
	markup.Reply(keyboard...)
	return markup
}

// InlineButtonsRows builds an inline keyboard from rows of InlineBtn.
func InlineButtonsRows(rows ...[]InlineBtn) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	inline := make([][]tele.InlineButton, len(rows))
	for i, row := range rows {
		r := make([]tele.InlineButton, len(row))
		for j, btn := range row {
			r[j] = *markup.Data(btn.Text, btn.Unique, btn.Data).Inline()
		}
		inline[i] = r
	}
	markup.InlineKeyboard = inline
	return markup
}

// QueryRows encodes every query with codec and builds an inline keyboard
// from the rows. It fails on the first query the codec rejects.
func QueryRows(codec *callbacks.Codec, rows ...[]QueryBtn) (*tele.ReplyMarkup, error) {
	inline := make([][]InlineBtn, 0, len(rows))
	for _, row := range rows {
		r := make([]InlineBtn, 0, len(row))
		for _, btn := range row {
			unique, data, err := codec.Encode(btn.Query)
			if err != nil {
				return nil, fmt.Errorf("keyboard: button %q: %w", btn.Text, err)
			}
			r = append(r, InlineBtn{Text: btn.Text, Unique: unique, Data: data})
		}
		inline = append(inline, r)
	}
	return InlineButtonsRows(inline...), nil
}

// QueryColumn is QueryRows with one button per row.
func QueryColumn(codec *callbacks.Codec, buttons ...QueryBtn) (*tele.ReplyMarkup, error) {
	rows := make([][]QueryBtn, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, []QueryBtn{b})
	}
	return QueryRows(codec, rows...)
}

// ContactRequest builds a one-button reply keyboard that shares the user's
// phone number when pressed.
func ContactRequest(label string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{ResizeKeyboard: true, OneTimeKeyboard: true}
	markup.Reply(markup.Row(markup.Contact(label)))
	return markup
}
