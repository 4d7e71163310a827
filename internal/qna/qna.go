// Package qna holds the Q&A community domain: members, subject areas,
// questions, responses and notification settings, plus the use-cases the
// dialogs call.
package qna

import (
	"errors"
	"time"

	"github.com/m3rciful/qnabot/core/telegram/state"
)

var (
	// ErrNotFound reports a missing user, question or response.
	ErrNotFound = errors.New("qna: not found")
	// ErrInvalid reports input rejected by a use-case.
	ErrInvalid = errors.New("qna: invalid input")
)

// Roles resolved for dialog routing.
const (
	RoleNormal state.Role = "normal"
	RoleAdmin  state.Role = "admin"
)

// QuestionIntent is what the author expects from the community.
type QuestionIntent string

const (
	IntentConsultation         QuestionIntent = "consultation"
	IntentQuestionToColleagues QuestionIntent = "question_to_colleagues"
	IntentFreeForm             QuestionIntent = "free_form"
)

// Intents lists the intents in display order.
var Intents = []QuestionIntent{IntentConsultation, IntentQuestionToColleagues, IntentFreeForm}

// Valid reports whether i is a known intent.
func (i QuestionIntent) Valid() bool {
	for _, known := range Intents {
		if i == known {
			return true
		}
	}
	return false
}

// NotificationPreference selects which new questions reach a member.
type NotificationPreference string

const (
	// PreferAllAreas delivers questions of every area.
	PreferAllAreas NotificationPreference = "all_areas"
	// PreferMyAreas delivers questions of subscribed areas only.
	PreferMyAreas NotificationPreference = "my_areas"
)

// Preferences lists the preferences in display order.
var Preferences = []NotificationPreference{PreferAllAreas, PreferMyAreas}

// DefaultPreference applies to members who never chose one.
const DefaultPreference = PreferAllAreas

// Valid reports whether p is a known preference.
func (p NotificationPreference) Valid() bool {
	return p == PreferAllAreas || p == PreferMyAreas
}

// Profile is a registered member.
type Profile struct {
	UserID  int64  `db:"id"`
	Name    string `db:"name"`
	Phone   string `db:"phone"`
	IsAdmin bool   `db:"is_admin"`
}

// Area is a subject area questions are filed under.
type Area struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

// AreaReach is the number of members a question in the area would reach.
type AreaReach struct {
	Area
	Members int
}

// Question is a published question.
type Question struct {
	ID        int64
	AuthorID  int64
	Intent    QuestionIntent
	Subject   string
	Text      string
	Areas     []int64
	CreatedAt time.Time
}

// Response is a member's offer to answer a question.
type Response struct {
	ID           int64 `db:"id"`
	QuestionID   int64 `db:"question_id"`
	RespondentID int64 `db:"respondent_id"`
	Accepted     bool  `db:"accepted"`
}
