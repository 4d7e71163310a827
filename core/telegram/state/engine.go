package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/qnabot/core/logger"
	"github.com/m3rciful/qnabot/core/telegram/callbacks"
)

var (
	// ErrUnroutable reports an event with no handler for the user's role and state.
	// It is never shown to the user.
	ErrUnroutable = errors.New("state: no handler for event")
	// ErrEnterDepth reports onEnter reactions that keep overriding the state.
	ErrEnterDepth = errors.New("state: onEnter chain too deep")
)

// Event outcomes reported to the Observer.
const (
	OutcomeOK        = "ok"
	OutcomeFail      = "fail"
	OutcomeUnrouted  = "unrouted"
	OutcomeCancelled = "cancelled"
)

const (
	defaultRoleTimeout   = 3 * time.Second
	defaultMaxEnterDepth = 8
)

// RoleResolver maps a user to a role. It may do I/O.
type RoleResolver interface {
	Resolve(ctx context.Context, userID int64) (Role, error)
}

// RoleResolverFunc adapts a function to RoleResolver.
type RoleResolverFunc func(ctx context.Context, userID int64) (Role, error)

// Resolve implements RoleResolver.
func (f RoleResolverFunc) Resolve(ctx context.Context, userID int64) (Role, error) {
	return f(ctx, userID)
}

// Observer receives engine measurements.
type Observer interface {
	ObserveEvent(event, outcome string, took time.Duration)
	ObserveTransition(from, to string)
}

// Options configure an Engine.
type Options struct {
	// RoleTimeout bounds each role lookup; the user is unauthenticated past it.
	RoleTimeout time.Duration
	// MaxEnterDepth bounds chained onEnter overrides for a single event.
	MaxEnterDepth int
	Observer      Observer
}

// Engine routes events to the handlers of a frozen Registry and commits the
// resulting transitions. Events of one user never overlap: the whole
// load-handle-commit sequence runs under that user's lock, while different
// users proceed in parallel.
type Engine struct {
	reg   *Registry
	store Store
	roles RoleResolver
	locks *KeyedMutex
	opts  Options
}

// NewEngine wires an engine. The registry is frozen as a side effect.
func NewEngine(reg *Registry, store Store, roles RoleResolver, opts Options) *Engine {
	reg.Freeze()
	if opts.RoleTimeout <= 0 {
		opts.RoleTimeout = defaultRoleTimeout
	}
	if opts.MaxEnterDepth <= 0 {
		opts.MaxEnterDepth = defaultMaxEnterDepth
	}
	if roles == nil {
		roles = RoleResolverFunc(func(context.Context, int64) (Role, error) {
			return RoleUnauthenticated, nil
		})
	}
	return &Engine{reg: reg, store: store, roles: roles, locks: NewKeyedMutex(), opts: opts}
}

// Current returns the stored state of a user.
func (e *Engine) Current(ctx context.Context, userID int64) (State, error) {
	return e.store.Get(ctx, userID)
}

// Dispatch processes one inbound event. Unroutable events, including
// callbacks whose payload cannot be decoded, return an error wrapping
// ErrUnroutable and leave the state untouched.
//
// A non-Stay transition is committed even if the handler also returned an
// error. If ctx is done before the commit, nothing is committed.
func (e *Engine) Dispatch(ctx context.Context, ev Event) error {
	start := time.Now()
	name := eventName(ev)
	outcome := OutcomeOK
	defer func() {
		if e.opts.Observer != nil {
			e.opts.Observer.ObserveEvent(name, outcome, time.Since(start))
		}
	}()

	if err := ctx.Err(); err != nil {
		outcome = OutcomeCancelled
		return err
	}

	userID := ev.Sender()
	role := e.resolveRole(ctx, userID)

	unlock := e.locks.Lock(userID)
	defer unlock()

	cur, err := e.store.Get(ctx, userID)
	if err != nil {
		outcome = OutcomeFail
		logger.LogEvent(ctx, logger.FSM, slog.LevelError, "state.load",
			slog.String("status", "fail"),
			slog.Int64("user_id", userID),
			slog.Any("err", err),
		)
		return fmt.Errorf("load state: %w", err)
	}
	ctx = logger.WithState(ctx, string(cur.Kind()))

	var run func(context.Context) (Transition, error)
	switch ev := ev.(type) {
	case TextEvent:
		if fn := e.reg.textFor(role, cur.Kind()); fn != nil {
			run = func(ctx context.Context) (Transition, error) { return fn(ctx, cur, ev) }
		}
	case CallbackEvent:
		if fn := e.reg.callbackFor(role, cur.Kind(), ev.Tag); fn != nil {
			run = func(ctx context.Context) (Transition, error) { return fn(ctx, cur, ev) }
		}
	default:
		outcome = OutcomeFail
		return fmt.Errorf("state: unsupported event %T", ev)
	}
	if run == nil {
		outcome = OutcomeUnrouted
		e.logUnrouted(ctx, role, name, nil)
		return ErrUnroutable
	}

	tr, herr := run(ctx)
	if errors.Is(herr, callbacks.ErrUnrecognized) {
		outcome = OutcomeUnrouted
		e.logUnrouted(ctx, role, name, herr)
		return fmt.Errorf("%w: %w", ErrUnroutable, herr)
	}
	if cerr := ctx.Err(); cerr != nil {
		outcome = OutcomeCancelled
		logger.LogEvent(ctx, logger.FSM, slog.LevelWarn, "dialog.cancelled",
			slog.String("status", "cancelled"),
			slog.String("role", string(role)),
			slog.String("transition", tr.String()),
		)
		return errors.Join(herr, cerr)
	}
	if herr != nil {
		outcome = OutcomeFail
		logger.LogEvent(ctx, logger.FSM, slog.LevelWarn, "dialog.handler",
			slog.String("status", "fail"),
			slog.String("role", string(role)),
			slog.String("transition", tr.String()),
			slog.Any("err", herr),
		)
	}
	if tr.IsStay() {
		return herr
	}
	if cerr := e.apply(ctx, role, userID, cur, tr); cerr != nil {
		outcome = OutcomeFail
		return errors.Join(herr, cerr)
	}
	return herr
}

// Enter overrides the user's state with st and fires its onEnter reaction,
// serialized with the user's other events. Commands use it to start or
// abort a dialog.
func (e *Engine) Enter(ctx context.Context, userID int64, st State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	role := e.resolveRole(ctx, userID)

	unlock := e.locks.Lock(userID)
	defer unlock()

	cur, err := e.store.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.apply(logger.WithState(ctx, string(cur.Kind())), role, userID, cur, Override(st))
}

// apply commits tr and runs onEnter reactions for as long as they keep
// overriding the state. Each step is a single Store.Set, so a cancelled
// context leaves the last fully committed state in place.
func (e *Engine) apply(ctx context.Context, role Role, userID int64, from State, tr Transition) error {
	commitCtx := context.WithoutCancel(ctx)
	for depth := 0; ; depth++ {
		next := tr.Next()
		if err := e.store.Set(commitCtx, userID, next); err != nil {
			logger.LogEvent(ctx, logger.FSM, slog.LevelError, "state.commit",
				slog.String("status", "fail"),
				slog.String("from_state", string(from.Kind())),
				slog.String("to_state", string(next.Kind())),
				slog.Any("err", err),
			)
			return fmt.Errorf("commit state: %w", err)
		}
		if e.opts.Observer != nil {
			e.opts.Observer.ObserveTransition(string(from.Kind()), string(next.Kind()))
		}
		if logger.ShouldSampleDebug() {
			logger.LogEvent(ctx, logger.FSM, slog.LevelDebug, "dialog.transition",
				slog.String("status", "ok"),
				slog.String("role", string(role)),
				slog.String("from_state", string(from.Kind())),
				slog.String("to_state", string(next.Kind())),
				slog.String("transition", tr.String()),
				slog.Int("depth", depth),
			)
		}

		if tr.op != opOverride {
			return nil
		}
		enter := e.reg.enterFor(role, next.Kind())
		if enter == nil {
			return nil
		}
		if depth >= e.opts.MaxEnterDepth {
			return fmt.Errorf("%w: %d overrides into %q", ErrEnterDepth, depth, next.Kind())
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		enterCtx := logger.WithState(ctx, string(next.Kind()))
		nextTr, err := enter(enterCtx, userID, next)
		if err != nil {
			logger.LogEvent(enterCtx, logger.FSM, slog.LevelWarn, "dialog.enter",
				slog.String("status", "fail"),
				slog.String("role", string(role)),
				slog.Any("err", err),
			)
		}
		if nextTr.IsStay() {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return errors.Join(err, cerr)
		}
		from, tr = next, nextTr
	}
}

func (e *Engine) resolveRole(ctx context.Context, userID int64) Role {
	rctx, cancel := context.WithTimeout(ctx, e.opts.RoleTimeout)
	defer cancel()
	role, err := e.roles.Resolve(rctx, userID)
	if err != nil || role == "" {
		logger.LogEvent(ctx, logger.FSM, slog.LevelWarn, "role.resolve",
			slog.String("status", "fail"),
			slog.Int64("user_id", userID),
			slog.Any("err", err),
		)
		return RoleUnauthenticated
	}
	return role
}

func (e *Engine) logUnrouted(ctx context.Context, role Role, name string, cause error) {
	attrs := []slog.Attr{
		slog.String("status", "skip"),
		slog.String("outcome", OutcomeUnrouted),
		slog.String("role", string(role)),
		slog.String("event_type", name),
	}
	if cause != nil {
		attrs = append(attrs, slog.Any("cause", cause))
	}
	logger.LogEvent(ctx, logger.FSM, slog.LevelDebug, "dialog.drop", attrs...)
}

func eventName(ev Event) string {
	switch ev.(type) {
	case TextEvent:
		return "text"
	case CallbackEvent:
		return "callback"
	default:
		return "unknown"
	}
}
