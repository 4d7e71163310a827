// Package flow is the ask-question dialog of the Q&A bot: the states a
// member walks through to publish a question, the fan-out of a published
// question to the community, and the accept/decline exchange that follows.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/m3rciful/qnabot/core/logger"
	"github.com/m3rciful/qnabot/core/telegram/callbacks"
	"github.com/m3rciful/qnabot/core/telegram/channel"
	"github.com/m3rciful/qnabot/core/telegram/keyboard"
	"github.com/m3rciful/qnabot/core/telegram/state"
	"github.com/m3rciful/qnabot/internal/qna"

	tele "gopkg.in/telebot.v4"
)

// Enqueuer runs outbound work in the background, detached from the event
// that produced it. EnqueueWait waits for queue space instead of dropping
// the job. sender.Dispatcher implements it.
type Enqueuer interface {
	EnqueueWait(ctx context.Context, action, endpoint string, run func(ctx context.Context) error) error
}

// Deps are the collaborators of the dialog.
type Deps struct {
	Service *qna.Service
	Channel channel.Channel
	FanOut  Enqueuer
}

// Flow holds the dialog handlers.
type Flow struct {
	svc     *qna.Service
	ch      channel.Channel
	fan     Enqueuer
	queries *callbacks.Codec
	fanning sync.WaitGroup
}

// New wires the dialog. Call Register before use.
func New(d Deps) *Flow {
	return &Flow{svc: d.Service, ch: d.Channel, fan: d.FanOut}
}

// Register binds the dialog to reg for every member role.
func (f *Flow) Register(reg *state.Registry) error {
	f.queries = reg.Queries()
	for _, role := range qna.MemberRoles {
		err := errors.Join(
			state.OnEnter(reg, role, f.enterAskQuestion),
			state.OnText(reg, role, f.textAskQuestion),

			state.OnEnter(reg, role, f.enterAskFullQuestion),
			state.OnText(reg, role, f.textAskFullQuestion),

			state.OnEnter(reg, role, f.enterChooseAreas),
			state.OnText(reg, role, f.textChooseAreas),
			state.OnCallback(reg, role, f.selectArea),
			state.OnCallback(reg, role, f.finishAreas),

			state.OnEnter(reg, role, f.enterChooseIntent),
			state.OnText(reg, role, f.textChooseIntent),

			state.OnEnter(reg, role, f.enterSendQuestion),
			state.OnText(reg, role, f.textSendQuestion),

			state.OnAnyCallback(reg, role, f.declineQuestion),
			state.OnAnyCallback(reg, role, f.acceptQuestion),
			state.OnAnyCallback(reg, role, f.declineUser),
			state.OnAnyCallback(reg, role, f.acceptUser),
		)
		if err != nil {
			return fmt.Errorf("flow: register %s: %w", role, err)
		}
	}
	return nil
}

// areasKeyboard lists every area, selected ones checked, plus a Done row.
func (f *Flow) areasKeyboard(areas []qna.Area, st ChooseQuestionAreas) (*tele.ReplyMarkup, error) {
	rows := make([][]keyboard.QueryBtn, 0, len(areas)+1)
	for _, a := range areas {
		label := a.Name
		if st.Selected(a.ID) {
			label = checkMark + label
		}
		rows = append(rows, []keyboard.QueryBtn{{Text: label, Query: SelectAreaQuery{Area: a.ID}}})
	}
	rows = append(rows, []keyboard.QueryBtn{{Text: ButtonDone, Query: FinishAreasQuery{}}})
	return keyboard.QueryRows(f.queries, rows...)
}

// questionKeyboard is built per message: telebot rewrites button data in place when sending.
func (f *Flow) questionKeyboard(q qna.Question) (*tele.ReplyMarkup, error) {
	return keyboard.QueryRows(f.queries, []keyboard.QueryBtn{
		{Text: ButtonAccept, Query: AcceptQuestionQuery{QuestionID: q.ID}},
		{Text: ButtonDecline, Query: DeclineQuestionQuery{}},
	})
}

func (f *Flow) responderKeyboard(resp qna.Response) (*tele.ReplyMarkup, error) {
	return keyboard.QueryRows(f.queries, []keyboard.QueryBtn{
		{Text: ButtonAccept, Query: AcceptUserQuery{
			RespondentID: resp.RespondentID,
			QuestionID:   resp.QuestionID,
			ResponseID:   resp.ID,
		}},
		{Text: ButtonDecline, Query: DeclineUserQuery{UserID: resp.RespondentID}},
	})
}

func intentKeyboard() *tele.ReplyMarkup {
	rows := make([][]string, 0, len(qna.Intents))
	for _, i := range qna.Intents {
		rows = append(rows, []string{IntentLabel(i)})
	}
	return keyboard.ReplyButtons(rows...)
}

func findArea(areas []qna.Area, match func(qna.Area) bool) (qna.Area, bool) {
	for _, a := range areas {
		if match(a) {
			return a, true
		}
	}
	return qna.Area{}, false
}

func areaByName(areas []qna.Area, name string) (qna.Area, bool) {
	name = strings.TrimPrefix(strings.TrimSpace(name), checkMark)
	return findArea(areas, func(a qna.Area) bool { return strings.EqualFold(a.Name, name) })
}

func areaByID(areas []qna.Area, id int64) (qna.Area, bool) {
	return findArea(areas, func(a qna.Area) bool { return a.ID == id })
}

// notFound acknowledges a callback whose target disappeared and drops the
// buttons of the message it came from.
func (f *Flow) notFound(ctx context.Context, ev state.CallbackEvent, text string) error {
	logger.Info(ctx, logger.CompQNA, "qna.callback.not_found",
		slog.String("status", "skip"),
		slog.String("tag", ev.Tag),
	)
	var errs []error
	if ev.Origin.MessageID != 0 {
		errs = append(errs, f.ch.EditMarkup(ctx, ev.Origin, nil))
	}
	errs = append(errs, f.ch.Answer(ctx, ev.CallbackID, text))
	return errors.Join(errs...)
}
