// Package state implements a role-aware dialog engine for Telegram bots.
//
// Every user has exactly one current State (absent means Empty). Inbound text
// and callback events are routed by the user's role and current state kind to
// handlers registered in a Registry, and the Transition a handler returns is
// committed to a Store before the next event of that user is processed.
// The package knows nothing about the concrete dialogs built on top of it.
package state
