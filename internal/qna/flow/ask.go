package flow

import (
	"context"
	"errors"
	"strings"

	"github.com/m3rciful/qnabot/core/telegram/keyboard"
	"github.com/m3rciful/qnabot/core/telegram/state"
	"github.com/m3rciful/qnabot/internal/qna"
)

func (f *Flow) enterAskQuestion(ctx context.Context, userID int64, _ AskQuestion) (state.Transition, error) {
	_, err := f.ch.SendText(ctx, userID, TextSubjectQuestion, keyboard.RemoveKeyboard())
	return state.Stay(), err
}

func (f *Flow) textAskQuestion(_ context.Context, _ AskQuestion, ev state.TextEvent) (state.Transition, error) {
	subject := strings.TrimSpace(ev.Text)
	if subject == "" {
		return state.Stay(), nil
	}
	return state.Override(AskFullQuestion{Subject: subject}), nil
}

func (f *Flow) enterAskFullQuestion(ctx context.Context, userID int64, _ AskFullQuestion) (state.Transition, error) {
	_, err := f.ch.SendText(ctx, userID, TextWordingQuestion, nil)
	return state.Stay(), err
}

func (f *Flow) textAskFullQuestion(_ context.Context, st AskFullQuestion, ev state.TextEvent) (state.Transition, error) {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return state.Stay(), nil
	}
	return state.Override(ChooseQuestionAreas{Subject: st.Subject, Question: text}), nil
}

// enterChooseAreas sends the selection keyboard and remembers its message.
func (f *Flow) enterChooseAreas(ctx context.Context, userID int64, st ChooseQuestionAreas) (state.Transition, error) {
	areas, err := f.svc.Areas(ctx)
	if err != nil {
		return state.Stay(), err
	}
	markup, err := f.areasKeyboard(areas, st)
	if err != nil {
		return state.Stay(), err
	}
	ref, err := f.ch.SendText(ctx, userID, TextChooseQuestionArea, markup)
	if err != nil {
		return state.Stay(), err
	}
	return state.Quiet(st.WithMessage(ref.MessageID)), nil
}

func (f *Flow) keyboardRef(userID int64, st ChooseQuestionAreas) state.MessageRef {
	return state.MessageRef{ChatID: userID, MessageID: st.MessageID}
}

// outdated reports a press on a keyboard other than the current one.
func outdated(st ChooseQuestionAreas, ev state.CallbackEvent) bool {
	return st.MessageID != 0 && ev.Origin.MessageID != 0 && ev.Origin.MessageID != st.MessageID
}

// toggleArea flips area and redraws the keyboard in place.
func (f *Flow) toggleArea(ctx context.Context, userID int64, st ChooseQuestionAreas, areas []qna.Area, area int64) (state.Transition, error) {
	next := st.Toggle(area)
	if st.MessageID == 0 {
		return state.Quiet(next), nil
	}
	markup, err := f.areasKeyboard(areas, next)
	if err != nil {
		return state.Quiet(next), err
	}
	return state.Quiet(next), f.ch.EditMarkup(ctx, f.keyboardRef(userID, st), markup)
}

// finish closes the selection. The keyboard is dropped so stale presses
// cannot reach the next step.
func (f *Flow) finish(ctx context.Context, userID int64, st ChooseQuestionAreas) (state.Transition, error) {
	var err error
	if st.MessageID != 0 {
		err = f.ch.EditMarkup(ctx, f.keyboardRef(userID, st), nil)
	}
	return state.Override(st.Finish()), err
}

func (f *Flow) selectArea(ctx context.Context, st ChooseQuestionAreas, q SelectAreaQuery, ev state.CallbackEvent) (state.Transition, error) {
	if outdated(st, ev) {
		return state.Stay(), f.ch.Answer(ctx, ev.CallbackID, TextOutdatedKeyboard)
	}
	areas, err := f.svc.Areas(ctx)
	if err != nil {
		return state.Stay(), err
	}
	if _, ok := areaByID(areas, q.Area); !ok {
		return state.Stay(), nil
	}
	return f.toggleArea(ctx, ev.UserID, st, areas, q.Area)
}

func (f *Flow) finishAreas(ctx context.Context, st ChooseQuestionAreas, _ FinishAreasQuery, ev state.CallbackEvent) (state.Transition, error) {
	if outdated(st, ev) {
		return state.Stay(), f.ch.Answer(ctx, ev.CallbackID, TextOutdatedKeyboard)
	}
	if len(st.Areas) == 0 {
		return state.Stay(), f.ch.Answer(ctx, ev.CallbackID, TextNoAreasSelected)
	}
	return f.finish(ctx, ev.UserID, st)
}

// textChooseAreas accepts typed area names and the Done label as an
// alternative to the inline buttons.
func (f *Flow) textChooseAreas(ctx context.Context, st ChooseQuestionAreas, ev state.TextEvent) (state.Transition, error) {
	text := strings.TrimSpace(ev.Text)
	if strings.EqualFold(text, ButtonDone) {
		if len(st.Areas) == 0 {
			_, err := f.ch.SendText(ctx, ev.UserID, TextNoAreasSelected, nil)
			return state.Stay(), err
		}
		return f.finish(ctx, ev.UserID, st)
	}

	areas, err := f.svc.Areas(ctx)
	if err != nil {
		return state.Stay(), err
	}
	if area, ok := areaByName(areas, text); ok {
		return f.toggleArea(ctx, ev.UserID, st, areas, area.ID)
	}
	_, err = f.ch.SendText(ctx, ev.UserID, TextUseAreaButtons, nil)
	return state.Stay(), err
}

func (f *Flow) enterChooseIntent(ctx context.Context, userID int64, _ ChooseQuestionIntent) (state.Transition, error) {
	_, err := f.ch.SendText(ctx, userID, TextAskingQuestionIntent, intentKeyboard())
	return state.Stay(), err
}

// textChooseIntent re-enters the same state on unknown input so the intent
// keyboard is shown again.
func (f *Flow) textChooseIntent(ctx context.Context, st ChooseQuestionIntent, ev state.TextEvent) (state.Transition, error) {
	intent, ok := intentByLabel(strings.TrimSpace(ev.Text))
	if !ok {
		_, err := f.ch.SendText(ctx, ev.UserID, TextInvalidQuestionIntent, nil)
		return state.Override(st), err
	}
	// TODO: route IntentQuestionToColleagues to the community channel once that flow exists.
	return state.Override(st.WithIntent(intent)), nil
}

func (f *Flow) enterSendQuestion(ctx context.Context, userID int64, _ SendQuestionToCommunity) (state.Transition, error) {
	_, err := f.ch.SendText(ctx, userID, TextCompletedQuestion, keyboard.ReplyButtons([]string{ButtonSendQuestion}))
	return state.Stay(), err
}

// textSendQuestion publishes the question on the confirm label and ignores
// any other text. A rejected question ends the dialog; a storage failure
// keeps it so the author can retry.
func (f *Flow) textSendQuestion(ctx context.Context, st SendQuestionToCommunity, ev state.TextEvent) (state.Transition, error) {
	if strings.TrimSpace(ev.Text) != ButtonSendQuestion {
		return state.Stay(), nil
	}

	q, err := f.svc.AddQuestion(ctx, ev.UserID, st.Intent, st.Subject, st.Question, st.Areas)
	if err != nil {
		_, sendErr := f.ch.SendText(ctx, ev.UserID, TextSendFailed, nil)
		if errors.Is(err, qna.ErrInvalid) {
			return state.Reset(), errors.Join(err, sendErr)
		}
		return state.Stay(), errors.Join(err, sendErr)
	}

	_, sendErr := f.ch.SendText(ctx, ev.UserID, TextSuccess, keyboard.RemoveKeyboard())
	f.publish(ctx, q)
	return state.Reset(), sendErr
}
