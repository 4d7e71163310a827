package flow

// Callback queries of the ask-question dialog. JSON keys are kept short:
// the encoded query must fit into 64 bytes of callback data.

// SelectAreaQuery toggles an area on the selection keyboard.
type SelectAreaQuery struct {
	Area int64 `json:"a"`
}

func (SelectAreaQuery) Tag() string { return "qa_area" }

// FinishAreasQuery confirms the area selection.
type FinishAreasQuery struct{}

func (FinishAreasQuery) Tag() string { return "qa_done" }

// AcceptQuestionQuery is a member's offer to answer a question.
type AcceptQuestionQuery struct {
	QuestionID int64 `json:"q"`
}

func (AcceptQuestionQuery) Tag() string { return "q_accept" }

// DeclineQuestionQuery hides a question from the member.
type DeclineQuestionQuery struct{}

func (DeclineQuestionQuery) Tag() string { return "q_decline" }

// AcceptUserQuery is the author accepting a respondent.
type AcceptUserQuery struct {
	RespondentID int64 `json:"u"`
	QuestionID   int64 `json:"q"`
	ResponseID   int64 `json:"r"`
}

func (AcceptUserQuery) Tag() string { return "u_accept" }

// DeclineUserQuery is the author turning a respondent down.
type DeclineUserQuery struct {
	UserID int64 `json:"u"`
}

func (DeclineUserQuery) Tag() string { return "u_decline" }
