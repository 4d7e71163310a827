// Package commands describes slash commands independently of how they are
// routed.
package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Command is a slash command and the rules the router applies before its
// handler runs.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// AdminOnly commands are rejected for users who are not admins and are
	// left out of the public command menu.
	AdminOnly bool
	// PrivateOnly commands are ignored outside one-to-one chats.
	PrivateOnly bool
	Hidden      bool
	// Aliases are extra names routed to the same handler, with or without
	// the leading slash.
	Aliases []string
}
