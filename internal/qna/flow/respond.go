package flow

import (
	"context"
	"errors"

	"github.com/m3rciful/qnabot/core/telegram/state"
	"github.com/m3rciful/qnabot/internal/qna"
)

// Handlers of the buttons under delivered questions and responder offers.
// They work in any state and never change it.

func (f *Flow) declineQuestion(ctx context.Context, _ DeclineQuestionQuery, ev state.CallbackEvent) error {
	var errs []error
	if ev.Origin.MessageID != 0 {
		errs = append(errs, f.ch.Delete(ctx, ev.Origin))
	}
	errs = append(errs, f.ch.Answer(ctx, ev.CallbackID, ""))
	return errors.Join(errs...)
}

// acceptQuestion records the offer and forwards it to the author.
func (f *Flow) acceptQuestion(ctx context.Context, q AcceptQuestionQuery, ev state.CallbackEvent) error {
	question, err := f.svc.QuestionByID(ctx, q.QuestionID)
	if errors.Is(err, qna.ErrNotFound) {
		return f.notFound(ctx, ev, TextQuestionNotFound)
	}
	if err != nil {
		return err
	}

	resp, err := f.svc.AddResponse(ctx, question.ID, ev.UserID)
	if errors.Is(err, qna.ErrNotFound) {
		return f.notFound(ctx, ev, TextQuestionNotFound)
	}
	if err != nil {
		return err
	}

	var errs []error
	if ev.Origin.MessageID != 0 {
		errs = append(errs, f.ch.EditText(ctx, ev.Origin, TextAcceptedQuestion(question), nil))
	}
	_, err = f.ch.SendText(ctx, ev.UserID, TextSentAgreement, nil)
	errs = append(errs, err)
	errs = append(errs, f.offerToAuthor(ctx, question, resp))
	errs = append(errs, f.ch.Answer(ctx, ev.CallbackID, ""))
	return errors.Join(errs...)
}

func (f *Flow) offerToAuthor(ctx context.Context, question qna.Question, resp qna.Response) error {
	name := "A member"
	if p, err := f.svc.UserDetails(ctx, resp.RespondentID); err == nil {
		name = p.Name
	}
	markup, err := f.responderKeyboard(resp)
	if err != nil {
		return err
	}
	_, err = f.ch.SendText(ctx, question.AuthorID, TextResponderOffer(name, question.Subject), markup)
	return err
}

func (f *Flow) declineUser(ctx context.Context, q DeclineUserQuery, ev state.CallbackEvent) error {
	var errs []error
	if ev.Origin.MessageID != 0 {
		errs = append(errs, f.ch.Delete(ctx, ev.Origin))
	}
	_, err := f.ch.SendText(ctx, q.UserID, TextQuestionResolved, nil)
	errs = append(errs, err)
	errs = append(errs, f.ch.Answer(ctx, ev.CallbackID, ""))
	return errors.Join(errs...)
}

// acceptUser connects the author with the respondent: the author gets the
// respondent's contact and the question text to forward.
func (f *Flow) acceptUser(ctx context.Context, q AcceptUserQuery, ev state.CallbackEvent) error {
	question, err := f.svc.QuestionByID(ctx, q.QuestionID)
	if errors.Is(err, qna.ErrNotFound) {
		return f.notFound(ctx, ev, TextQuestionNotFound)
	}
	if err != nil {
		return err
	}
	if question.AuthorID != ev.UserID {
		return f.ch.Answer(ctx, ev.CallbackID, TextNotYourQuestion)
	}
	respondent, err := f.svc.UserDetails(ctx, q.RespondentID)
	if errors.Is(err, qna.ErrNotFound) {
		return f.notFound(ctx, ev, TextMemberNotFound)
	}
	if err != nil {
		return err
	}
	err = f.svc.AcceptResponse(ctx, q.QuestionID, q.RespondentID, q.ResponseID)
	if errors.Is(err, qna.ErrNotFound) {
		return f.notFound(ctx, ev, TextQuestionNotFound)
	}
	if err != nil {
		return err
	}

	var errs []error
	if ev.Origin.MessageID != 0 {
		errs = append(errs, f.ch.EditMarkup(ctx, ev.Origin, nil))
	}
	if respondent.Phone != "" {
		errs = append(errs, f.ch.SendContact(ctx, ev.UserID, respondent.Phone, respondent.Name))
	} else {
		_, err := f.ch.SendText(ctx, ev.UserID, TextContactLink(respondent.Name, respondent.UserID), nil)
		errs = append(errs, err)
	}
	for _, msg := range []struct {
		to   int64
		text string
	}{
		{q.RespondentID, TextWaitingForCompanion(question.Subject)},
		{ev.UserID, TextWriteToCompanion},
		{ev.UserID, question.Text},
		{ev.UserID, TextCopyQuestion},
	} {
		_, err := f.ch.SendText(ctx, msg.to, msg.text, nil)
		errs = append(errs, err)
	}
	errs = append(errs, f.ch.Answer(ctx, ev.CallbackID, ""))
	return errors.Join(errs...)
}
