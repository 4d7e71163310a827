package flow

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/m3rciful/qnabot/core/telegram/callbacks"
	"github.com/m3rciful/qnabot/core/telegram/channel"
	"github.com/m3rciful/qnabot/core/telegram/sender"
	"github.com/m3rciful/qnabot/core/telegram/state"
	"github.com/m3rciful/qnabot/internal/qna"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	tele "gopkg.in/telebot.v4"
)

const (
	author     int64 = 10
	respondent int64 = 11
)

type fixture struct {
	repo   *qna.MemoryRepository
	svc    *qna.Service
	rec    *channel.Recorder
	fan    *sender.Dispatcher
	store  state.Store
	engine *state.Engine
	flow   *Flow
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := qna.NewMemoryRepository("Tax", "Law", "HR")
	svc := qna.NewService(repo, qna.ServiceOptions{})
	rec := channel.NewRecorder()
	fan := sender.NewDispatcher(sender.Options{Workers: 2, QueueSize: 32, RetryBackoff: time.Millisecond})
	t.Cleanup(fan.Close)

	f := New(Deps{Service: svc, Channel: rec, FanOut: fan})
	t.Cleanup(f.Wait)
	reg := state.NewRegistry(nil)
	require.NoError(t, f.Register(reg))
	store := state.NewMemoryStore()

	fx := &fixture{
		repo:   repo,
		svc:    svc,
		rec:    rec,
		fan:    fan,
		store:  store,
		engine: state.NewEngine(reg, store, svc, state.Options{}),
		flow:   f,
	}
	fx.member(t, author, "Ann", "")
	fx.member(t, respondent, "Bob", "+100")
	return fx
}

func (fx *fixture) member(t *testing.T, id int64, name, phone string) {
	t.Helper()
	require.NoError(t, fx.repo.UpsertUser(context.Background(), qna.Profile{UserID: id, Name: name, Phone: phone}))
}

func (fx *fixture) set(t *testing.T, user int64, st state.State) {
	t.Helper()
	require.NoError(t, fx.store.Set(context.Background(), user, st))
}

func (fx *fixture) current(t *testing.T, user int64) state.State {
	t.Helper()
	st, err := fx.engine.Current(context.Background(), user)
	require.NoError(t, err)
	return st
}

func (fx *fixture) text(user int64, text string) error {
	return fx.engine.Dispatch(context.Background(), state.TextEvent{UserID: user, ChatID: user, MessageID: 100, Text: text})
}

func (fx *fixture) press(t *testing.T, user int64, q callbacks.Query, origin int) error {
	t.Helper()
	tag, payload, err := fx.flow.queries.Encode(q)
	require.NoError(t, err)
	return fx.engine.Dispatch(context.Background(), state.CallbackEvent{
		UserID:     user,
		CallbackID: "cb-" + tag,
		Tag:        tag,
		Payload:    payload,
		Origin:     state.MessageRef{ChatID: user, MessageID: origin},
	})
}

func (fx *fixture) question(t *testing.T) qna.Question {
	t.Helper()
	q, err := fx.svc.AddQuestion(context.Background(), author, qna.IntentConsultation, "Taxes", "How do I file?", []int64{1})
	require.NoError(t, err)
	return q
}

func callsOf(calls []channel.Call, action string) []channel.Call {
	var out []channel.Call
	for _, c := range calls {
		if c.Action == action {
			out = append(out, c)
		}
	}
	return out
}

func buttons(markup *tele.ReplyMarkup) []tele.InlineButton {
	if markup == nil {
		return nil
	}
	var out []tele.InlineButton
	for _, row := range markup.InlineKeyboard {
		out = append(out, row...)
	}
	return out
}

func TestSubjectMovesToFullQuestion(t *testing.T) {
	fx := newFixture(t)
	fx.set(t, author, AskQuestion{})

	require.NoError(t, fx.text(author, "What is X?"))

	assert.Equal(t, AskFullQuestion{Subject: "What is X?"}, fx.current(t, author))
	assert.Equal(t, []string{TextWordingQuestion}, fx.rec.Texts(author))
}

func TestInvalidIntentReentersSameState(t *testing.T) {
	fx := newFixture(t)
	st := ChooseQuestionIntent{Subject: "s", Question: "q", Areas: []int64{1}}
	fx.set(t, author, st)

	require.NoError(t, fx.text(author, "no such option"))

	assert.Equal(t, st, fx.current(t, author))
	assert.Equal(t, []string{TextInvalidQuestionIntent, TextAskingQuestionIntent}, fx.rec.Texts(author))
}

func TestConfirmPublishesAndFansOut(t *testing.T) {
	fx := newFixture(t)
	fx.member(t, 12, "Cid", "")
	fx.member(t, 13, "Dee", "")
	fx.rec.FailFor(12, errors.New("bot was blocked by the user"))
	fx.set(t, author, SendQuestionToCommunity{
		Subject:  "Taxes",
		Question: "How do I file?",
		Areas:    []int64{1},
		Intent:   qna.IntentConsultation,
	})

	require.NoError(t, fx.text(author, ButtonSendQuestion))

	assert.Equal(t, state.Empty{}, fx.current(t, author))
	assert.Equal(t, []string{TextSuccess}, fx.rec.Texts(author))

	q, err := fx.svc.QuestionByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, author, q.AuthorID)
	assert.Equal(t, []int64{1}, q.Areas)

	want := TextQuestionMessage(q)
	assert.Eventually(t, func() bool {
		return slices.Contains(fx.rec.Texts(respondent), want) &&
			slices.Contains(fx.rec.Texts(13), want) &&
			fx.fan.ErrorCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, fx.rec.Texts(12))

	sent := callsOf(fx.rec.CallsTo(respondent), channel.ActionSendText)
	require.Len(t, sent, 1)
	btns := buttons(sent[0].Markup)
	require.Len(t, btns, 2)
	assert.Equal(t, AcceptQuestionQuery{}.Tag(), btns[0].Unique)
}

func TestFanOutWaitsForQueueRoom(t *testing.T) {
	fx := newFixture(t)
	fan := sender.NewDispatcher(sender.Options{Workers: 1, QueueSize: 4, RetryBackoff: time.Millisecond})
	t.Cleanup(fan.Close)
	fx.flow.fan = fan

	members := []int64{respondent}
	for id := int64(100); id < 120; id++ {
		fx.member(t, id, "Member", "")
		members = append(members, id)
	}
	fx.set(t, author, SendQuestionToCommunity{
		Subject:  "Taxes",
		Question: "How do I file?",
		Areas:    []int64{1},
		Intent:   qna.IntentFreeForm,
	})

	require.NoError(t, fx.text(author, ButtonSendQuestion))

	q, err := fx.svc.QuestionByID(context.Background(), 1)
	require.NoError(t, err)
	want := TextQuestionMessage(q)
	assert.Eventually(t, func() bool {
		for _, id := range members {
			if !slices.Contains(fx.rec.Texts(id), want) {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)
	fx.flow.Wait()
	assert.Zero(t, fan.ErrorCount())
}

func TestConfirmIgnoresOtherText(t *testing.T) {
	fx := newFixture(t)
	st := SendQuestionToCommunity{Subject: "s", Question: "q", Areas: []int64{1}, Intent: qna.IntentFreeForm}
	fx.set(t, author, st)

	require.NoError(t, fx.text(author, "wait"))

	assert.Equal(t, st, fx.current(t, author))
	assert.Empty(t, fx.rec.Calls())
}

func TestConfirmWithInvalidQuestionResets(t *testing.T) {
	fx := newFixture(t)
	fx.set(t, author, SendQuestionToCommunity{Subject: "s", Question: "q", Intent: qna.IntentFreeForm})

	err := fx.text(author, ButtonSendQuestion)
	assert.ErrorIs(t, err, qna.ErrInvalid)
	assert.Equal(t, state.Empty{}, fx.current(t, author))
	assert.Equal(t, []string{TextSendFailed}, fx.rec.Texts(author))
}

func TestAcceptMissingQuestionIsAnswered(t *testing.T) {
	fx := newFixture(t)

	require.NoError(t, fx.press(t, respondent, AcceptQuestionQuery{QuestionID: 99}, 5))

	assert.Equal(t, state.Empty{}, fx.current(t, respondent))
	answers := callsOf(fx.rec.Calls(), channel.ActionAnswer)
	require.Len(t, answers, 1)
	assert.Equal(t, TextQuestionNotFound, answers[0].Text)
	edits := callsOf(fx.rec.Calls(), channel.ActionEditMarkup)
	require.Len(t, edits, 1)
	assert.Equal(t, state.MessageRef{ChatID: respondent, MessageID: 5}, edits[0].Ref)
	assert.Nil(t, edits[0].Markup)
}

func TestFullDialog(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.engine.Enter(ctx, author, AskQuestion{}))
	require.NoError(t, fx.text(author, "Taxes"))
	require.NoError(t, fx.text(author, "How do I file?"))

	st, ok := fx.current(t, author).(ChooseQuestionAreas)
	require.True(t, ok)
	assert.Equal(t, 3, st.MessageID)

	require.NoError(t, fx.press(t, author, SelectAreaQuery{Area: 2}, 3))
	require.NoError(t, fx.press(t, author, SelectAreaQuery{Area: 99}, 3))
	require.NoError(t, fx.press(t, author, SelectAreaQuery{Area: 1}, 1))
	require.NoError(t, fx.text(author, "tax"))
	require.NoError(t, fx.text(author, "Tax"))
	assert.Equal(t, []int64{2}, fx.current(t, author).(ChooseQuestionAreas).Areas)

	require.NoError(t, fx.press(t, author, FinishAreasQuery{}, 3))
	require.NoError(t, fx.text(author, IntentLabel(qna.IntentFreeForm)))
	assert.Equal(t, SendQuestionToCommunity{
		Subject:  "Taxes",
		Question: "How do I file?",
		Areas:    []int64{2},
		Intent:   qna.IntentFreeForm,
	}, fx.current(t, author))

	require.NoError(t, fx.text(author, ButtonSendQuestion))
	assert.Equal(t, state.Empty{}, fx.current(t, author))

	assert.Equal(t, []string{
		TextSubjectQuestion,
		TextWordingQuestion,
		TextChooseQuestionArea,
		TextAskingQuestionIntent,
		TextCompletedQuestion,
		TextSuccess,
	}, fx.rec.Texts(author))

	answers := callsOf(fx.rec.Calls(), channel.ActionAnswer)
	require.Len(t, answers, 1)
	assert.Equal(t, TextOutdatedKeyboard, answers[0].Text)

	edits := callsOf(fx.rec.CallsTo(author), channel.ActionEditMarkup)
	require.Len(t, edits, 4)
	assert.Nil(t, edits[3].Markup)
}

func TestFinishWithoutAreasStays(t *testing.T) {
	fx := newFixture(t)
	st := ChooseQuestionAreas{Subject: "s", Question: "q", MessageID: 3}
	fx.set(t, author, st)

	require.NoError(t, fx.press(t, author, FinishAreasQuery{}, 3))

	assert.Equal(t, st, fx.current(t, author))
	answers := callsOf(fx.rec.Calls(), channel.ActionAnswer)
	require.Len(t, answers, 1)
	assert.Equal(t, TextNoAreasSelected, answers[0].Text)
}

func TestAcceptQuestionOffersRespondentToAuthor(t *testing.T) {
	fx := newFixture(t)
	q := fx.question(t)

	require.NoError(t, fx.press(t, respondent, AcceptQuestionQuery{QuestionID: q.ID}, 7))

	edits := callsOf(fx.rec.CallsTo(respondent), channel.ActionEditText)
	require.Len(t, edits, 1)
	assert.Equal(t, TextAcceptedQuestion(q), edits[0].Text)
	assert.Equal(t, []string{TextSentAgreement}, fx.rec.Texts(respondent))

	offers := callsOf(fx.rec.CallsTo(author), channel.ActionSendText)
	require.Len(t, offers, 1)
	assert.Equal(t, TextResponderOffer("Bob", q.Subject), offers[0].Text)
	btns := buttons(offers[0].Markup)
	require.Len(t, btns, 2)
	assert.Equal(t, AcceptUserQuery{}.Tag(), btns[0].Unique)
	assert.Equal(t, DeclineUserQuery{}.Tag(), btns[1].Unique)
	assert.Len(t, callsOf(fx.rec.Calls(), channel.ActionAnswer), 1)
}

func TestAcceptUserSharesContact(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	q := fx.question(t)
	resp, err := fx.svc.AddResponse(ctx, q.ID, respondent)
	require.NoError(t, err)

	require.NoError(t, fx.press(t, author, AcceptUserQuery{RespondentID: respondent, QuestionID: q.ID, ResponseID: resp.ID}, 4))

	contacts := callsOf(fx.rec.Calls(), channel.ActionSendContact)
	require.Len(t, contacts, 1)
	assert.Equal(t, author, contacts[0].UserID)
	assert.Equal(t, "+100", contacts[0].Phone)
	assert.Equal(t, []string{TextWaitingForCompanion(q.Subject)}, fx.rec.Texts(respondent))
	assert.Equal(t, []string{TextWriteToCompanion, q.Text, TextCopyQuestion}, fx.rec.Texts(author))
	assert.Equal(t, state.Empty{}, fx.current(t, author))
}

func TestAcceptUserRejectsForeignResponse(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.member(t, 12, "Cid", "+200")
	q := fx.question(t)
	other, err := fx.svc.AddQuestion(ctx, 12, qna.IntentFreeForm, "Law", "Who rents?", []int64{2})
	require.NoError(t, err)
	elsewhere, err := fx.svc.AddResponse(ctx, other.ID, respondent)
	require.NoError(t, err)
	own, err := fx.svc.AddResponse(ctx, q.ID, respondent)
	require.NoError(t, err)

	for _, query := range []AcceptUserQuery{
		{RespondentID: respondent, QuestionID: q.ID, ResponseID: elsewhere.ID},
		{RespondentID: 12, QuestionID: q.ID, ResponseID: own.ID},
	} {
		require.NoError(t, fx.press(t, author, query, 4))
	}

	assert.Empty(t, callsOf(fx.rec.Calls(), channel.ActionSendContact))
	assert.Empty(t, fx.rec.Texts(author))
	assert.Empty(t, fx.rec.Texts(respondent))
	answers := callsOf(fx.rec.Calls(), channel.ActionAnswer)
	require.Len(t, answers, 2)
	for _, a := range answers {
		assert.Equal(t, TextQuestionNotFound, a.Text)
	}
	got, err := fx.repo.Response(ctx, own.ID)
	require.NoError(t, err)
	assert.False(t, got.Accepted)
}

func TestAcceptUserWithoutPhoneSendsLink(t *testing.T) {
	fx := newFixture(t)
	fx.member(t, 12, "Cid", "")
	q := fx.question(t)
	resp, err := fx.svc.AddResponse(context.Background(), q.ID, 12)
	require.NoError(t, err)

	require.NoError(t, fx.press(t, author, AcceptUserQuery{RespondentID: 12, QuestionID: q.ID, ResponseID: resp.ID}, 4))

	assert.Empty(t, callsOf(fx.rec.Calls(), channel.ActionSendContact))
	assert.Equal(t, TextContactLink("Cid", 12), fx.rec.Texts(author)[0])
}

func TestAcceptUserByStrangerIsRejected(t *testing.T) {
	fx := newFixture(t)
	fx.member(t, 12, "Cid", "")
	q := fx.question(t)
	resp, err := fx.svc.AddResponse(context.Background(), q.ID, respondent)
	require.NoError(t, err)

	require.NoError(t, fx.press(t, 12, AcceptUserQuery{RespondentID: respondent, QuestionID: q.ID, ResponseID: resp.ID}, 4))

	answers := callsOf(fx.rec.Calls(), channel.ActionAnswer)
	require.Len(t, answers, 1)
	assert.Equal(t, TextNotYourQuestion, answers[0].Text)
	assert.Empty(t, fx.rec.Texts(respondent))
}

func TestDeclineUserNotifiesRespondent(t *testing.T) {
	fx := newFixture(t)

	require.NoError(t, fx.press(t, author, DeclineUserQuery{UserID: respondent}, 4))

	deletes := callsOf(fx.rec.Calls(), channel.ActionDelete)
	require.Len(t, deletes, 1)
	assert.Equal(t, state.MessageRef{ChatID: author, MessageID: 4}, deletes[0].Ref)
	assert.Equal(t, []string{TextQuestionResolved}, fx.rec.Texts(respondent))
}

func TestDeclineQuestionDeletesMessage(t *testing.T) {
	fx := newFixture(t)
	fx.set(t, respondent, AskFullQuestion{Subject: "mine"})

	require.NoError(t, fx.press(t, respondent, DeclineQuestionQuery{}, 6))

	assert.Equal(t, AskFullQuestion{Subject: "mine"}, fx.current(t, respondent))
	assert.Len(t, callsOf(fx.rec.Calls(), channel.ActionDelete), 1)
	assert.Len(t, callsOf(fx.rec.Calls(), channel.ActionAnswer), 1)
}

func TestUnregisteredUserIsUnroutable(t *testing.T) {
	fx := newFixture(t)
	fx.set(t, 50, AskQuestion{})

	err := fx.text(50, "subject")
	assert.ErrorIs(t, err, state.ErrUnroutable)
	assert.Equal(t, AskQuestion{}, fx.current(t, 50))
}

func TestToggleNeverMutatesReceiver(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		areas := rapid.SliceOfDistinct(rapid.Int64Range(1, 20), func(v int64) int64 { return v }).Draw(rt, "areas")
		slices.Sort(areas)
		if len(areas) == 0 {
			areas = nil
		}
		area := rapid.Int64Range(1, 20).Draw(rt, "area")

		st := ChooseQuestionAreas{Subject: "s", Areas: areas}
		before := slices.Clone(st.Areas)
		next := st.Toggle(area)

		if !slices.Equal(before, st.Areas) {
			rt.Fatalf("receiver changed: %v -> %v", before, st.Areas)
		}
		if next.Selected(area) == st.Selected(area) {
			rt.Fatalf("area %d not toggled", area)
		}
		if !slices.IsSorted(next.Areas) {
			rt.Fatalf("selection not sorted: %v", next.Areas)
		}
		if back := next.Toggle(area); !slices.Equal(back.Areas, st.Areas) {
			rt.Fatalf("double toggle: got %v want %v", back.Areas, st.Areas)
		}
	})
}
