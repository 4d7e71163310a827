package state

// Kind names a State variant. It is the routing key of the handler table and
// the discriminator of persisted states.
type Kind string

// AnyState is the wildcard kind for handlers that apply in every state.
const AnyState Kind = "*"

// State is a dialog step. Implementations are plain value types; a transition
// always carries a new value instead of mutating the stored one.
type State interface {
	Kind() Kind
}

// KindEmpty is the kind of the terminal Empty state.
const KindEmpty Kind = "empty"

// Empty is the terminal state and the state of every user never seen before.
type Empty struct{}

// Kind implements State.
func (Empty) Kind() Kind { return KindEmpty }

// IsEmpty reports whether s is nil or Empty.
func IsEmpty(s State) bool {
	return s == nil || s.Kind() == KindEmpty
}

// Role classifies a user for handler selection.
type Role string

const (
	// RoleUnauthenticated is used when the role lookup fails or times out.
	RoleUnauthenticated Role = "unauthenticated"
	// AnyRole matches every role.
	AnyRole Role = "*"
)

// MessageRef points to a message in a chat.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Event is an inbound update addressed to one user.
type Event interface {
	Sender() int64
}

// TextEvent is a plain text message.
type TextEvent struct {
	UserID    int64
	ChatID    int64
	MessageID int
	Text      string
}

// Sender implements Event.
func (e TextEvent) Sender() int64 { return e.UserID }

// CallbackEvent is an inline button press. Tag and Payload come from the
// button's callback data; Origin is the message the button belongs to.
type CallbackEvent struct {
	UserID     int64
	CallbackID string
	Tag        string
	Payload    string
	Origin     MessageRef
}

// Sender implements Event.
func (e CallbackEvent) Sender() int64 { return e.UserID }

type transitionOp uint8

const (
	opStay transitionOp = iota
	opOverride
	opQuiet
)

// Transition is the outcome of a handler: keep the stored state, or replace it.
type Transition struct {
	op   transitionOp
	next State
}

// Stay keeps the current state.
func Stay() Transition { return Transition{} }

// Override replaces the current state with next and fires its onEnter
// reaction, even when next equals the current state.
func Override(next State) Transition {
	if next == nil {
		next = Empty{}
	}
	return Transition{op: opOverride, next: next}
}

// Quiet replaces the current state with next without firing onEnter.
func Quiet(next State) Transition {
	if next == nil {
		next = Empty{}
	}
	return Transition{op: opQuiet, next: next}
}

// Reset ends the dialog.
func Reset() Transition { return Override(Empty{}) }

// IsStay reports whether t leaves the state untouched.
func (t Transition) IsStay() bool { return t.op == opStay }

// Next returns the state t commits, or nil for Stay.
func (t Transition) Next() State { return t.next }

// String describes the transition for logs.
func (t Transition) String() string {
	switch t.op {
	case opOverride:
		return "override:" + string(t.next.Kind())
	case opQuiet:
		return "quiet:" + string(t.next.Kind())
	default:
		return "stay"
	}
}
