package flow

import (
	"slices"

	"github.com/m3rciful/qnabot/core/telegram/state"
	"github.com/m3rciful/qnabot/internal/qna"
)

// State kinds of the ask-question dialog.
const (
	KindAskQuestion             state.Kind = "qna.ask_question"
	KindAskFullQuestion         state.Kind = "qna.ask_full_question"
	KindChooseQuestionAreas     state.Kind = "qna.choose_areas"
	KindChooseQuestionIntent    state.Kind = "qna.choose_intent"
	KindSendQuestionToCommunity state.Kind = "qna.send_question"
)

// AskQuestion waits for the subject of a new question.
type AskQuestion struct{}

func (AskQuestion) Kind() state.Kind { return KindAskQuestion }

// AskFullQuestion waits for the full wording.
type AskFullQuestion struct {
	Subject string `json:"subject"`
}

func (AskFullQuestion) Kind() state.Kind { return KindAskFullQuestion }

// ChooseQuestionAreas collects the areas of the question. MessageID points
// to the message carrying the selection keyboard once it was sent.
type ChooseQuestionAreas struct {
	Subject   string  `json:"subject"`
	Question  string  `json:"question"`
	Areas     []int64 `json:"areas,omitempty"`
	MessageID int     `json:"message_id,omitempty"`
}

func (ChooseQuestionAreas) Kind() state.Kind { return KindChooseQuestionAreas }

// Selected reports whether area is part of the selection.
func (s ChooseQuestionAreas) Selected(area int64) bool {
	return slices.Contains(s.Areas, area)
}

// Toggle returns a copy with area added to or removed from the selection.
// The selection stays sorted; s is not modified.
func (s ChooseQuestionAreas) Toggle(area int64) ChooseQuestionAreas {
	next := s
	if i := slices.Index(s.Areas, area); i >= 0 {
		next.Areas = slices.Delete(slices.Clone(s.Areas), i, i+1)
	} else {
		next.Areas = append(slices.Clone(s.Areas), area)
		slices.Sort(next.Areas)
	}
	if len(next.Areas) == 0 {
		next.Areas = nil
	}
	return next
}

// WithMessage returns a copy pointing at the selection keyboard message.
func (s ChooseQuestionAreas) WithMessage(id int) ChooseQuestionAreas {
	next := s
	next.Areas = slices.Clone(s.Areas)
	next.MessageID = id
	return next
}

// Finish moves on to the intent step.
func (s ChooseQuestionAreas) Finish() ChooseQuestionIntent {
	return ChooseQuestionIntent{
		Subject:  s.Subject,
		Question: s.Question,
		Areas:    slices.Clone(s.Areas),
	}
}

// ChooseQuestionIntent waits for the intent picked on the reply keyboard.
type ChooseQuestionIntent struct {
	Subject  string  `json:"subject"`
	Question string  `json:"question"`
	Areas    []int64 `json:"areas"`
}

func (ChooseQuestionIntent) Kind() state.Kind { return KindChooseQuestionIntent }

// WithIntent moves on to the confirmation step.
func (s ChooseQuestionIntent) WithIntent(intent qna.QuestionIntent) SendQuestionToCommunity {
	return SendQuestionToCommunity{
		Subject:  s.Subject,
		Question: s.Question,
		Areas:    slices.Clone(s.Areas),
		Intent:   intent,
	}
}

// SendQuestionToCommunity waits for the author to confirm publication.
type SendQuestionToCommunity struct {
	Subject  string             `json:"subject"`
	Question string             `json:"question"`
	Areas    []int64            `json:"areas"`
	Intent   qna.QuestionIntent `json:"intent"`
}

func (SendQuestionToCommunity) Kind() state.Kind { return KindSendQuestionToCommunity }
