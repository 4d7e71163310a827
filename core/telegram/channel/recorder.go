package channel

import (
	"context"
	"fmt"
	"sync"

	"github.com/m3rciful/qnabot/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

// Call is one operation captured by a Recorder.
type Call struct {
	Action     string
	UserID     int64
	Ref        state.MessageRef
	Text       string
	Markup     *tele.ReplyMarkup
	CallbackID string
	Phone      string
}

// Recorder is an in-memory Channel for tests and dry runs. Sent messages
// get sequential ids per chat.
type Recorder struct {
	mu     sync.Mutex
	calls  []Call
	nextID map[int64]int
	fail   map[string]error
	failTo map[int64]error
}

var _ Channel = (*Recorder)(nil)

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		nextID: make(map[int64]int),
		fail:   make(map[string]error),
		failTo: make(map[int64]error),
	}
}

// FailOn makes every later call of action return err. A nil err clears it.
func (r *Recorder) FailOn(action string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.fail, action)
		return
	}
	r.fail[action] = err
}

// FailFor makes every later call addressed to chat return err. A nil err clears it.
func (r *Recorder) FailFor(chat int64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.failTo, chat)
		return
	}
	r.failTo[chat] = err
}

// Calls returns a copy of the captured calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// CallsTo returns the captured calls that targeted chat.
func (r *Recorder) CallsTo(chat int64) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.UserID == chat || c.Ref.ChatID == chat {
			out = append(out, c)
		}
	}
	return out
}

// Texts returns the texts sent to chat, in order.
func (r *Recorder) Texts(chat int64) []string {
	var out []string
	for _, c := range r.CallsTo(chat) {
		if c.Action == ActionSendText {
			out = append(out, c.Text)
		}
	}
	return out
}

// Last returns the last captured call, if any.
func (r *Recorder) Last() (Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return Call{}, false
	}
	return r.calls[len(r.calls)-1], true
}

// Reset forgets captured calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

func (r *Recorder) record(c Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail[c.Action]; err != nil {
		return fmt.Errorf("%s: %w", c.Action, err)
	}
	chat := c.UserID
	if chat == 0 {
		chat = c.Ref.ChatID
	}
	if err := r.failTo[chat]; err != nil && chat != 0 {
		return fmt.Errorf("%s to %d: %w", c.Action, chat, err)
	}
	r.calls = append(r.calls, c)
	return nil
}

func (r *Recorder) sent(ctx context.Context, c Call) error {
	if err := r.record(c); err != nil {
		return err
	}
	MarkSent(ctx, c.Markup != nil)
	return nil
}

// SendText implements Channel.
func (r *Recorder) SendText(ctx context.Context, userID int64, text string, markup *tele.ReplyMarkup) (state.MessageRef, error) {
	r.mu.Lock()
	r.nextID[userID]++
	ref := state.MessageRef{ChatID: userID, MessageID: r.nextID[userID]}
	r.mu.Unlock()
	if err := r.record(Call{Action: ActionSendText, UserID: userID, Ref: ref, Text: text, Markup: markup}); err != nil {
		return state.MessageRef{}, err
	}
	MarkSent(ctx, markup != nil)
	return ref, nil
}

// EditText implements Channel.
func (r *Recorder) EditText(ctx context.Context, ref state.MessageRef, text string, markup *tele.ReplyMarkup) error {
	return r.sent(ctx, Call{Action: ActionEditText, Ref: ref, Text: text, Markup: markup})
}

// EditMarkup implements Channel.
func (r *Recorder) EditMarkup(ctx context.Context, ref state.MessageRef, markup *tele.ReplyMarkup) error {
	return r.sent(ctx, Call{Action: ActionEditMarkup, Ref: ref, Markup: markup})
}

// Delete implements Channel.
func (r *Recorder) Delete(_ context.Context, ref state.MessageRef) error {
	return r.record(Call{Action: ActionDelete, Ref: ref})
}

// SendContact implements Channel.
func (r *Recorder) SendContact(ctx context.Context, userID int64, phone, firstName string) error {
	return r.sent(ctx, Call{Action: ActionSendContact, UserID: userID, Phone: phone, Text: firstName})
}

// Answer implements Channel.
func (r *Recorder) Answer(ctx context.Context, callbackID, text string) error {
	if err := r.record(Call{Action: ActionAnswer, CallbackID: callbackID, Text: text}); err != nil {
		return err
	}
	MarkAnswered(ctx)
	return nil
}
