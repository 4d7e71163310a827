package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// ParseData splits raw callback data in telebot's \f<unique>|<payload> layout.
// A literal "\\f" prefix is accepted too. Data without the prefix yields an
// empty tag.
func ParseData(raw string) (tag, payload string) {
	switch {
	case strings.HasPrefix(raw, "\f"):
		raw = raw[1:]
	case strings.HasPrefix(raw, `\f`):
		raw = raw[2:]
	default:
		return "", ""
	}
	tag, payload, _ = strings.Cut(raw, "|")
	return strings.TrimSpace(tag), payload
}

// FromCallback returns the tag and payload of cb. Telebot fills Unique only
// when a handler is bound to that unique, so Data is parsed otherwise.
func FromCallback(cb *tele.Callback) (tag, payload string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	return ParseData(cb.Data)
}
