package flow

import (
	"fmt"
	"strings"

	"github.com/m3rciful/qnabot/internal/qna"
)

// Texts shown by the ask-question dialog.
const (
	TextSubjectQuestion       = "What is your question about? Send a short subject."
	TextWordingQuestion       = "Now describe your question in full."
	TextChooseQuestionArea    = "Choose the areas your question belongs to, then press Done."
	TextUseAreaButtons        = "Tap the areas on the keyboard above or send an area name, then press Done."
	TextNoAreasSelected       = "Choose at least one area."
	TextOutdatedKeyboard      = "This keyboard is outdated."
	TextAskingQuestionIntent  = "What do you expect from the community?"
	TextInvalidQuestionIntent = "Please pick one of the options on the keyboard."
	TextCompletedQuestion     = "Your question is ready. Press \"" + ButtonSendQuestion + "\" to publish it."
	TextSuccess               = "Your question has been sent to the community."
	TextSendFailed            = "Could not publish the question. Please try again later."
	TextQuestionNotFound      = "This question no longer exists."
	TextMemberNotFound        = "This member is no longer registered."
	TextNotYourQuestion       = "Only the author can accept answers."
	TextSentAgreement         = "Thanks! The author will decide whether to contact you."
	TextQuestionResolved      = "The author has already resolved the question. Thank you for your help!"
	TextWriteToCompanion      = "Here is the contact of the member who will answer. Write to them and paste your question:"
	TextCopyQuestion          = "Copy the question above and send it to your companion."
	TextNotRegistered         = "Please send /start to join the community first."
	TextCancelled             = "Cancelled."
	TextSharePhone            = "Share your phone number so that authors can contact you when they accept your answers."
	TextPhoneSaved            = "Thanks, your phone number is saved."
	TextNoAreas               = "No areas are configured."
)

// Button labels.
const (
	ButtonDone         = "Done"
	ButtonSendQuestion = "Send question"
	ButtonAccept       = "Accept"
	ButtonDecline      = "Decline"
	ButtonSharePhone   = "Share phone number"
	checkMark          = "✅ "
)

var intentLabels = map[qna.QuestionIntent]string{
	qna.IntentConsultation:         "I need a consultation",
	qna.IntentQuestionToColleagues: "A question to colleagues",
	qna.IntentFreeForm:             "Free-form discussion",
}

// IntentLabel returns the keyboard label of an intent.
func IntentLabel(i qna.QuestionIntent) string {
	return intentLabels[i]
}

func intentByLabel(label string) (qna.QuestionIntent, bool) {
	for intent, l := range intentLabels {
		if l == label {
			return intent, true
		}
	}
	return "", false
}

// TextQuestionMessage is the question as delivered to potential respondents.
func TextQuestionMessage(q qna.Question) string {
	return fmt.Sprintf("New question: %s\n\n%s", q.Subject, q.Text)
}

// TextAcceptedQuestion replaces the delivered question once the member agreed to answer.
func TextAcceptedQuestion(q qna.Question) string {
	return fmt.Sprintf("You offered to answer: %s\n\n%s", q.Subject, q.Text)
}

// TextResponderOffer tells the author that someone wants to answer.
func TextResponderOffer(name, subject string) string {
	return fmt.Sprintf("%s is ready to answer your question %q.", name, subject)
}

// TextWaitingForCompanion tells the respondent that the author accepted.
func TextWaitingForCompanion(subject string) string {
	return fmt.Sprintf("The author accepted your offer on %q. They will write to you soon.", subject)
}

// TextContactLink stands in for a contact card when the member has no phone.
func TextContactLink(name string, userID int64) string {
	return fmt.Sprintf("%s: tg://user?id=%d", name, userID)
}

// TextWelcome greets a registered member.
func TextWelcome(name string) string {
	return fmt.Sprintf("Welcome, %s! Send /ask to ask the community a question and /notifications to choose what reaches you.", name)
}

// TextAreaReach lists how many members a question in each area reaches.
func TextAreaReach(reach []qna.AreaReach) string {
	if len(reach) == 0 {
		return TextNoAreas
	}
	var b strings.Builder
	b.WriteString("Members reached per area:")
	for _, r := range reach {
		fmt.Fprintf(&b, "\n%s: %d", r.Name, r.Members)
	}
	return b.String()
}
