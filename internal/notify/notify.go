// Package notify lets members choose which new questions reach them: all
// areas or only the areas they follow, with a switch to mute everything.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/m3rciful/qnabot/core/logger"
	"github.com/m3rciful/qnabot/core/telegram/callbacks"
	"github.com/m3rciful/qnabot/core/telegram/channel"
	"github.com/m3rciful/qnabot/core/telegram/commands"
	tghelpers "github.com/m3rciful/qnabot/core/telegram/helpers"
	"github.com/m3rciful/qnabot/core/telegram/keyboard"
	"github.com/m3rciful/qnabot/core/telegram/state"
	"github.com/m3rciful/qnabot/internal/qna"

	tele "gopkg.in/telebot.v4"
)

const (
	TextSettings      = "Choose which new questions reach you."
	TextAreas         = "Choose the areas you follow. They are used when you receive questions from your areas only."
	TextNotRegistered = "Please send /start to join the community first."
	TextUnknownOption = "This option is no longer available."

	ButtonTurnOff = "🔕 Turn notifications off"
	ButtonTurnOn  = "🔔 Turn notifications on"
	checkMark     = "✅ "
)

var preferenceLabels = map[qna.NotificationPreference]string{
	qna.PreferAllAreas: "All areas",
	qna.PreferMyAreas:  "My areas",
}

// ChangePreferenceQuery picks a notification preference.
type ChangePreferenceQuery struct {
	Preference qna.NotificationPreference `json:"p"`
}

func (ChangePreferenceQuery) Tag() string { return "n_pref" }

// MuteQuery switches notifications. On reports the state the member asks for.
type MuteQuery struct {
	On bool `json:"on,omitempty"`
}

func (MuteQuery) Tag() string { return "n_mute" }

// FollowAreaQuery follows or unfollows an area.
type FollowAreaQuery struct {
	Area int64 `json:"a"`
}

func (FollowAreaQuery) Tag() string { return "n_area" }

// Settings serves the notification settings messages.
type Settings struct {
	svc     *qna.Service
	ch      channel.Channel
	queries *callbacks.Codec
}

// New returns Settings. Call Register before use.
func New(svc *qna.Service, ch channel.Channel) *Settings {
	return &Settings{svc: svc, ch: ch}
}

// Register binds the settings buttons for every member role. They work in
// any dialog state and leave it untouched.
func (s *Settings) Register(reg *state.Registry) error {
	s.queries = reg.Queries()
	for _, role := range qna.MemberRoles {
		err := errors.Join(
			state.OnAnyCallback(reg, role, s.changePreference),
			state.OnAnyCallback(reg, role, s.switchMute),
			state.OnAnyCallback(reg, role, s.followArea),
		)
		if err != nil {
			return fmt.Errorf("notify: register %s: %w", role, err)
		}
	}
	return nil
}

// Commands returns /notifications and /areas.
func (s *Settings) Commands() map[string]commands.Command {
	return map[string]commands.Command{
		"/notifications": {
			Handler:     s.command(TextSettings, s.settingsKeyboard),
			PrivateOnly: true,
			Description: "Choose which questions reach you",
		},
		"/areas": {
			Handler:     s.command(TextAreas, s.areasKeyboard),
			PrivateOnly: true,
			Description: "Choose the areas you follow",
		},
	}
}

type keyboardFunc func(ctx context.Context, userID int64) (*tele.ReplyMarkup, error)

func (s *Settings) command(text string, build keyboardFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		user := c.Sender()
		if user == nil {
			return nil
		}
		ctx := tghelpers.BuildContext(c)
		role, err := s.svc.Role(ctx, user.ID)
		if err != nil || role == state.RoleUnauthenticated {
			_, sendErr := s.ch.SendText(ctx, user.ID, TextNotRegistered, nil)
			return errors.Join(err, sendErr)
		}
		markup, err := build(ctx, user.ID)
		if err != nil {
			return err
		}
		_, err = s.ch.SendText(ctx, user.ID, text, markup)
		return err
	}
}

// settingsKeyboard has one row of preferences, the current one checked,
// and a mute switch below.
func (s *Settings) settingsKeyboard(ctx context.Context, userID int64) (*tele.ReplyMarkup, error) {
	current, err := s.svc.NotificationPreference(ctx, userID)
	if err != nil {
		return nil, err
	}
	muted, err := s.svc.IsMuted(ctx, userID)
	if err != nil {
		return nil, err
	}

	prefs := make([]keyboard.QueryBtn, 0, len(qna.Preferences))
	for _, p := range qna.Preferences {
		label := preferenceLabels[p]
		if p == current {
			label = checkMark + label
		}
		prefs = append(prefs, keyboard.QueryBtn{Text: label, Query: ChangePreferenceQuery{Preference: p}})
	}
	mute := keyboard.QueryBtn{Text: ButtonTurnOff, Query: MuteQuery{On: false}}
	if muted {
		mute = keyboard.QueryBtn{Text: ButtonTurnOn, Query: MuteQuery{On: true}}
	}
	return keyboard.QueryRows(s.queries, prefs, []keyboard.QueryBtn{mute})
}

func (s *Settings) areasKeyboard(ctx context.Context, userID int64) (*tele.ReplyMarkup, error) {
	areas, err := s.svc.Areas(ctx)
	if err != nil {
		return nil, err
	}
	followed, err := s.svc.UserAreas(ctx, userID)
	if err != nil {
		return nil, err
	}
	on := make(map[int64]bool, len(followed))
	for _, id := range followed {
		on[id] = true
	}
	btns := make([]keyboard.QueryBtn, 0, len(areas))
	for _, a := range areas {
		label := a.Name
		if on[a.ID] {
			label = checkMark + label
		}
		btns = append(btns, keyboard.QueryBtn{Text: label, Query: FollowAreaQuery{Area: a.ID}})
	}
	return keyboard.QueryColumn(s.queries, btns...)
}

// redraw replaces the keyboard the button was pressed on and acknowledges the press.
func (s *Settings) redraw(ctx context.Context, ev state.CallbackEvent, build keyboardFunc) error {
	var errs []error
	if ev.Origin.MessageID != 0 {
		markup, err := build(ctx, ev.UserID)
		if err == nil {
			err = s.ch.EditMarkup(ctx, ev.Origin, markup)
		}
		errs = append(errs, err)
	}
	errs = append(errs, s.ch.Answer(ctx, ev.CallbackID, ""))
	return errors.Join(errs...)
}

func (s *Settings) rejected(ctx context.Context, ev state.CallbackEvent, err error) error {
	logger.Info(ctx, logger.CompNotify, "notify.callback",
		slog.String("status", "skip"),
		slog.String("tag", ev.Tag),
		slog.Any("err", err),
	)
	return s.ch.Answer(ctx, ev.CallbackID, TextUnknownOption)
}

func (s *Settings) changePreference(ctx context.Context, q ChangePreferenceQuery, ev state.CallbackEvent) error {
	err := s.svc.SetNotificationPreference(ctx, ev.UserID, q.Preference)
	if errors.Is(err, qna.ErrInvalid) {
		return s.rejected(ctx, ev, err)
	}
	if err != nil {
		return err
	}
	return s.redraw(ctx, ev, s.settingsKeyboard)
}

func (s *Settings) switchMute(ctx context.Context, q MuteQuery, ev state.CallbackEvent) error {
	if err := s.svc.SetMuted(ctx, ev.UserID, !q.On); err != nil {
		return err
	}
	return s.redraw(ctx, ev, s.settingsKeyboard)
}

func (s *Settings) followArea(ctx context.Context, q FollowAreaQuery, ev state.CallbackEvent) error {
	_, err := s.svc.ToggleUserArea(ctx, ev.UserID, q.Area)
	if errors.Is(err, qna.ErrNotFound) {
		return s.rejected(ctx, ev, err)
	}
	if err != nil {
		return err
	}
	return s.redraw(ctx, ev, s.areasKeyboard)
}
