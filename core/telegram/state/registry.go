package state

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/m3rciful/qnabot/core/telegram/callbacks"
)

var (
	// ErrDuplicateBinding reports a second handler for the same role, kind and reaction.
	ErrDuplicateBinding = errors.New("state: duplicate handler binding")
	// ErrFrozen reports registration after the registry was frozen.
	ErrFrozen = errors.New("state: registry is frozen")
	// ErrStateType reports a stored state whose Go type does not match the handler.
	ErrStateType = errors.New("state: unexpected state type")
)

type (
	enterFunc    func(ctx context.Context, userID int64, st State) (Transition, error)
	textFunc     func(ctx context.Context, st State, ev TextEvent) (Transition, error)
	callbackFunc func(ctx context.Context, st State, ev CallbackEvent) (Transition, error)
)

type bindingKey struct {
	role Role
	kind Kind
}

type callbackKey struct {
	role Role
	kind Kind
	tag  string
}

// Registry is the handler table of the engine: onEnter and onText reactions
// per state kind, and callback handlers per query tag scoped to a kind or to
// AnyState. Bindings carry a role filter; AnyRole matches everyone.
//
// Register everything at startup and call Freeze before dispatching. A frozen
// registry is read-only and safe for concurrent use.
type Registry struct {
	queries *callbacks.Codec
	states  *Codec
	frozen  atomic.Bool

	enter     map[bindingKey]enterFunc
	text      map[bindingKey]textFunc
	callbacks map[callbackKey]callbackFunc
}

// NewRegistry creates an empty registry. Query types bound to callbacks are
// registered in queries.
func NewRegistry(queries *callbacks.Codec) *Registry {
	if queries == nil {
		queries = callbacks.NewCodec()
	}
	return &Registry{
		queries:   queries,
		states:    NewCodec(),
		enter:     make(map[bindingKey]enterFunc),
		text:      make(map[bindingKey]textFunc),
		callbacks: make(map[callbackKey]callbackFunc),
	}
}

// Queries returns the callback codec used to build inline buttons.
func (r *Registry) Queries() *callbacks.Codec { return r.queries }

// States returns the codec of every state kind bound so far.
func (r *Registry) States() *Codec { return r.states }

// Freeze makes the registry read-only.
func (r *Registry) Freeze() { r.frozen.Store(true) }

func (r *Registry) checkOpen() error {
	if r.frozen.Load() {
		return ErrFrozen
	}
	return nil
}

func bindKind[S State](r *Registry) (Kind, error) {
	if err := r.checkOpen(); err != nil {
		return "", err
	}
	if err := RegisterKind[S](r.states); err != nil {
		return "", err
	}
	var zero S
	return zero.Kind(), nil
}

func asState[S State](st State) (S, error) {
	s, ok := st.(S)
	if !ok {
		var zero S
		return zero, fmt.Errorf("%w: have %T, want %T", ErrStateType, st, zero)
	}
	return s, nil
}

// OnEnter binds the reaction fired right after a user is overridden into S.
func OnEnter[S State](r *Registry, role Role, fn func(ctx context.Context, userID int64, st S) (Transition, error)) error {
	kind, err := bindKind[S](r)
	if err != nil {
		return err
	}
	key := bindingKey{role: role, kind: kind}
	if _, dup := r.enter[key]; dup {
		return fmt.Errorf("%w: onEnter %q for role %q", ErrDuplicateBinding, kind, role)
	}
	r.enter[key] = func(ctx context.Context, userID int64, st State) (Transition, error) {
		s, err := asState[S](st)
		if err != nil {
			return Stay(), err
		}
		return fn(ctx, userID, s)
	}
	return nil
}

// OnText binds the reaction to text messages received while in S.
func OnText[S State](r *Registry, role Role, fn func(ctx context.Context, st S, ev TextEvent) (Transition, error)) error {
	kind, err := bindKind[S](r)
	if err != nil {
		return err
	}
	key := bindingKey{role: role, kind: kind}
	if _, dup := r.text[key]; dup {
		return fmt.Errorf("%w: onText %q for role %q", ErrDuplicateBinding, kind, role)
	}
	r.text[key] = func(ctx context.Context, st State, ev TextEvent) (Transition, error) {
		s, err := asState[S](st)
		if err != nil {
			return Stay(), err
		}
		return fn(ctx, s, ev)
	}
	return nil
}

// OnCallback binds a handler for query Q that applies only while in S. It
// takes precedence over an any-state handler for the same tag.
func OnCallback[S State, Q callbacks.Query](r *Registry, role Role, fn func(ctx context.Context, st S, q Q, ev CallbackEvent) (Transition, error)) error {
	kind, err := bindKind[S](r)
	if err != nil {
		return err
	}
	return bindCallback[Q](r, role, kind, func(ctx context.Context, st State, q Q, ev CallbackEvent) (Transition, error) {
		s, err := asState[S](st)
		if err != nil {
			return Stay(), err
		}
		return fn(ctx, s, q, ev)
	})
}

// OnAnyCallback binds a handler for query Q in every state. Such handlers
// only have side effects; they never change the user's state.
func OnAnyCallback[Q callbacks.Query](r *Registry, role Role, fn func(ctx context.Context, q Q, ev CallbackEvent) error) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	return bindCallback[Q](r, role, AnyState, func(ctx context.Context, _ State, q Q, ev CallbackEvent) (Transition, error) {
		return Stay(), fn(ctx, q, ev)
	})
}

func bindCallback[Q callbacks.Query](r *Registry, role Role, kind Kind, fn func(context.Context, State, Q, CallbackEvent) (Transition, error)) error {
	if err := callbacks.Register[Q](r.queries); err != nil {
		return err
	}
	var zero Q
	key := callbackKey{role: role, kind: kind, tag: zero.Tag()}
	if _, dup := r.callbacks[key]; dup {
		return fmt.Errorf("%w: callback %q in %q for role %q", ErrDuplicateBinding, key.tag, kind, role)
	}
	r.callbacks[key] = func(ctx context.Context, st State, ev CallbackEvent) (Transition, error) {
		q, err := callbacks.Decode[Q](ev.Tag, ev.Payload)
		if err != nil {
			return Stay(), err
		}
		return fn(ctx, st, q, ev)
	}
	return nil
}

func (r *Registry) enterFor(role Role, kind Kind) enterFunc {
	if fn, ok := r.enter[bindingKey{role, kind}]; ok {
		return fn
	}
	return r.enter[bindingKey{AnyRole, kind}]
}

func (r *Registry) textFor(role Role, kind Kind) textFunc {
	if fn, ok := r.text[bindingKey{role, kind}]; ok {
		return fn
	}
	return r.text[bindingKey{AnyRole, kind}]
}

// callbackFor resolves a tag in order: (role, kind), (any role, kind),
// (role, any state), (any role, any state).
func (r *Registry) callbackFor(role Role, kind Kind, tag string) callbackFunc {
	for _, key := range [...]callbackKey{
		{role, kind, tag},
		{AnyRole, kind, tag},
		{role, AnyState, tag},
		{AnyRole, AnyState, tag},
	} {
		if fn, ok := r.callbacks[key]; ok {
			return fn
		}
	}
	return nil
}
