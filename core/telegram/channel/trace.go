package channel

import (
	"context"
	"sync/atomic"
)

type traceKey struct{}

// trace collects what the handlers of one update sent back.
type trace struct {
	answered atomic.Bool
	keyboard atomic.Bool
	sent     atomic.Int32
}

// WithTracking returns a context that records the outbound calls made while
// one update is handled. Channels record into it; routers read it back.
func WithTracking(ctx context.Context) context.Context {
	return context.WithValue(ctx, traceKey{}, new(trace))
}

func traceFrom(ctx context.Context) *trace {
	t, _ := ctx.Value(traceKey{}).(*trace)
	return t
}

// MarkAnswered records that the callback query was answered.
func MarkAnswered(ctx context.Context) {
	if t := traceFrom(ctx); t != nil {
		t.answered.Store(true)
	}
}

// MarkSent records a delivered message or edit.
func MarkSent(ctx context.Context, keyboard bool) {
	if t := traceFrom(ctx); t != nil {
		t.sent.Add(1)
		if keyboard {
			t.keyboard.Store(true)
		}
	}
}

// Answered reports whether MarkAnswered was called on ctx.
func Answered(ctx context.Context) bool {
	t := traceFrom(ctx)
	return t != nil && t.answered.Load()
}

// Sent reports how many messages were sent or edited and whether any of
// them carried a keyboard.
func Sent(ctx context.Context) (messages int, keyboard bool) {
	t := traceFrom(ctx)
	if t == nil {
		return 0, false
	}
	return int(t.sent.Load()), t.keyboard.Load()
}
