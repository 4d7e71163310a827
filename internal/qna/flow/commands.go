package flow

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/m3rciful/qnabot/core/logger"
	"github.com/m3rciful/qnabot/core/telegram/commands"
	tghelpers "github.com/m3rciful/qnabot/core/telegram/helpers"
	"github.com/m3rciful/qnabot/core/telegram/keyboard"
	"github.com/m3rciful/qnabot/core/telegram/state"
	"github.com/m3rciful/qnabot/internal/qna"

	tele "gopkg.in/telebot.v4"
)

// Commands returns the commands that start and abort the dialog. They are
// private-only, so handlers can rely on a sender.
func (f *Flow) Commands(engine *state.Engine) map[string]commands.Command {
	return map[string]commands.Command{
		"/start": {
			Handler:     f.start,
			PrivateOnly: true,
			Description: "Join the community",
		},
		"/ask": {
			Handler:     f.ask(engine),
			PrivateOnly: true,
			Description: "Ask the community a question",
		},
		"/cancel": {
			Handler:     f.cancel(engine),
			PrivateOnly: true,
			Description: "Abort the current dialog",
		},
		"/reach": {
			Handler:     f.reach,
			AdminOnly:   true,
			PrivateOnly: true,
			Description: "Show how many members each area reaches",
		},
	}
}

func displayName(u *tele.User) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// start registers the sender under their Telegram name.
func (f *Flow) start(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	user := c.Sender()
	name := displayName(user)
	if name == "" {
		name = user.Username
	}
	if err := f.svc.Register(ctx, qna.Profile{UserID: user.ID, Name: name}); err != nil {
		return err
	}
	if _, err := f.ch.SendText(ctx, user.ID, TextWelcome(name), nil); err != nil {
		return err
	}
	if p, err := f.svc.UserDetails(ctx, user.ID); err == nil && p.Phone != "" {
		return nil
	}
	_, err := f.ch.SendText(ctx, user.ID, TextSharePhone, keyboard.ContactRequest(ButtonSharePhone))
	return err
}

func (f *Flow) ask(engine *state.Engine) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		userID := c.Sender().ID
		role, err := f.svc.Role(ctx, userID)
		if err != nil || role == state.RoleUnauthenticated {
			_, sendErr := f.ch.SendText(ctx, userID, TextNotRegistered, nil)
			return errors.Join(err, sendErr)
		}
		return engine.Enter(ctx, userID, AskQuestion{})
	}
}

func (f *Flow) cancel(engine *state.Engine) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		userID := c.Sender().ID
		if err := engine.Enter(ctx, userID, state.Empty{}); err != nil {
			return err
		}
		_, err := f.ch.SendText(ctx, userID, TextCancelled, keyboard.RemoveKeyboard())
		return err
	}
}

// reach reports the audience of every area to an admin.
func (f *Flow) reach(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	reach, err := f.svc.AreaReach(ctx)
	if err != nil {
		return err
	}
	_, err = f.ch.SendText(ctx, c.Sender().ID, TextAreaReach(reach), nil)
	return err
}

// SaveContact stores the phone number a member shared about themselves.
// Contacts of other people are ignored.
func (f *Flow) SaveContact(c tele.Context) error {
	msg, user := c.Message(), c.Sender()
	if msg == nil || msg.Contact == nil || user == nil {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	contact := msg.Contact
	if contact.UserID != user.ID {
		logger.Info(ctx, logger.CompQNA, "qna.contact",
			slog.String("status", "skip"),
			slog.String("reason", "foreign_contact"),
		)
		return nil
	}

	name := displayName(user)
	if p, err := f.svc.UserDetails(ctx, user.ID); err == nil {
		name = p.Name
	} else if !errors.Is(err, qna.ErrNotFound) {
		return err
	}
	if name == "" {
		name = strings.TrimSpace(contact.FirstName + " " + contact.LastName)
	}
	if err := f.svc.Register(ctx, qna.Profile{UserID: user.ID, Name: name, Phone: contact.PhoneNumber}); err != nil {
		return err
	}
	_, err := f.ch.SendText(ctx, user.ID, TextPhoneSaved, keyboard.RemoveKeyboard())
	return err
}
