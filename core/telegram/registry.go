package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/m3rciful/qnabot/core/logger"
	"github.com/m3rciful/qnabot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

// ErrDuplicateCommand reports a command name or alias registered twice.
var ErrDuplicateCommand = errors.New("telegram: duplicate command")

// Registry holds bot commands. Dialog callbacks live in the state registry.
type Registry struct {
	commands map[string]commands.Command
	aliases  map[string]string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]commands.Command),
		aliases:  make(map[string]string),
	}
}

// RegisterCommand adds a new command. Names start with a slash.
func (r *Registry) RegisterCommand(name string, cmd commands.Command) error {
	if name == "" || cmd.Handler == nil || cmd.Description == "" {
		return fmt.Errorf("telegram: invalid command %q", name)
	}
	if name[0] != '/' {
		return fmt.Errorf("telegram: command %q must start with /", name)
	}
	if _, exists := r.commands[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCommand, name)
	}
	if _, exists := r.aliases[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCommand, name)
	}
	for _, alias := range cmd.Aliases {
		alias = "/" + strings.TrimPrefix(alias, "/")
		if _, exists := r.commands[alias]; exists {
			return fmt.Errorf("%w: alias %s", ErrDuplicateCommand, alias)
		}
		if _, exists := r.aliases[alias]; exists {
			return fmt.Errorf("%w: alias %s", ErrDuplicateCommand, alias)
		}
	}
	r.commands[name] = cmd
	for _, alias := range cmd.Aliases {
		r.aliases["/"+strings.TrimPrefix(alias, "/")] = name
	}
	logger.TWire.LogAttrs(context.Background(), slog.LevelDebug, "register.command",
		slog.String("name", name),
		slog.Bool("admin_only", cmd.AdminOnly),
	)
	return nil
}

// ListCommands returns a slice of tele.Command, optionally filtering out hidden and admin-only commands.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	var list []tele.Command
	for cmd, meta := range r.commands {
		if visibleOnly && (meta.Hidden || meta.AdminOnly) {
			continue
		}
		list = append(list, tele.Command{Text: cmd, Description: meta.Description})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Text < list[j].Text })
	return list
}

// LookupCommand resolves the command at the start of text, by name or alias.
// Arguments and a "@botname" suffix are ignored.
func (r *Registry) LookupCommand(text string) (string, commands.Command, bool) {
	name, _, _ := strings.Cut(strings.TrimSpace(text), " ")
	name, _, _ = strings.Cut(name, "@")
	if !strings.HasPrefix(name, "/") {
		return "", commands.Command{}, false
	}
	if cmd, ok := r.commands[name]; ok {
		return name, cmd, true
	}
	if key, ok := r.aliases[name]; ok {
		return key, r.commands[key], true
	}
	return "", commands.Command{}, false
}

// Commands returns all registered commands.
func (r *Registry) Commands() map[string]commands.Command {
	return r.commands
}

// InitBotCommands sets the Telegram bot commands shown in the command menu.
func InitBotCommands(bot *tele.Bot, reg *Registry) {
	list := reg.ListCommands(true)
	if len(list) == 0 {
		return
	}
	if err := bot.SetCommands(list); err != nil {
		logger.TWire.LogAttrs(context.Background(), slog.LevelError, "register.commands.set_failed",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
}
