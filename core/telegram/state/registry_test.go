package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pickQuery struct {
	N int `json:"n"`
}

func (pickQuery) Tag() string { return "pick" }

func noopText[S State](context.Context, S, TextEvent) (Transition, error) { return Stay(), nil }

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, OnText(r, AnyRole, noopText[askName]))
	assert.ErrorIs(t, OnText(r, AnyRole, noopText[askName]), ErrDuplicateBinding)
	assert.NoError(t, OnText(r, "admin", noopText[askName]))

	enter := func(context.Context, int64, askName) (Transition, error) { return Stay(), nil }
	require.NoError(t, OnEnter(r, AnyRole, enter))
	assert.ErrorIs(t, OnEnter(r, AnyRole, enter), ErrDuplicateBinding)

	anyCb := func(context.Context, pickQuery, CallbackEvent) error { return nil }
	require.NoError(t, OnAnyCallback(r, AnyRole, anyCb))
	assert.ErrorIs(t, OnAnyCallback(r, AnyRole, anyCb), ErrDuplicateBinding)

	scoped := func(context.Context, askName, pickQuery, CallbackEvent) (Transition, error) { return Stay(), nil }
	require.NoError(t, OnCallback(r, AnyRole, scoped))
	assert.ErrorIs(t, OnCallback(r, AnyRole, scoped), ErrDuplicateBinding)
}

func TestRegistryFreeze(t *testing.T) {
	r := NewRegistry(nil)
	r.Freeze()
	assert.ErrorIs(t, OnText(r, AnyRole, noopText[askName]), ErrFrozen)
	assert.ErrorIs(t, OnAnyCallback(r, AnyRole, func(context.Context, pickQuery, CallbackEvent) error { return nil }), ErrFrozen)
}

func TestRegistryRecordsStateKinds(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, OnText(r, AnyRole, noopText[askAge]))

	raw, err := r.States().Marshal(askAge{Name: "x"})
	require.NoError(t, err)
	st, err := r.States().Unmarshal(raw)
	require.NoError(t, err)
	assert.Equal(t, askAge{Name: "x"}, st)
	assert.True(t, r.Queries() != nil)
}

func TestRegistryCallbackPrecedence(t *testing.T) {
	r := NewRegistry(nil)
	var hit string
	require.NoError(t, OnAnyCallback(r, AnyRole, func(context.Context, pickQuery, CallbackEvent) error {
		hit = "any/any"
		return nil
	}))
	require.NoError(t, OnAnyCallback(r, "admin", func(context.Context, pickQuery, CallbackEvent) error {
		hit = "admin/any"
		return nil
	}))
	require.NoError(t, OnCallback(r, AnyRole, func(context.Context, askName, pickQuery, CallbackEvent) (Transition, error) {
		hit = "any/scoped"
		return Stay(), nil
	}))
	r.Freeze()

	call := func(role Role, st State) string {
		hit = ""
		fn := r.callbackFor(role, st.Kind(), "pick")
		require.NotNil(t, fn)
		_, err := fn(context.Background(), st, CallbackEvent{Tag: "pick", Payload: `{"n":1}`})
		require.NoError(t, err)
		return hit
	}
	assert.Equal(t, "any/scoped", call("admin", askName{}))
	assert.Equal(t, "admin/any", call("admin", Empty{}))
	assert.Equal(t, "any/any", call("normal", Empty{}))
	assert.Nil(t, r.callbackFor("normal", KindEmpty, "unknown"))
}
