package channel

import (
	"context"
	"errors"
	"testing"

	"github.com/m3rciful/qnabot/core/telegram/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tele "gopkg.in/telebot.v4"
)

func TestAnswerTracking(t *testing.T) {
	plain := context.Background()
	MarkAnswered(plain)
	assert.False(t, Answered(plain))

	ctx := WithTracking(plain)
	assert.False(t, Answered(ctx))

	rec := NewRecorder()
	require.NoError(t, rec.Answer(ctx, "cb-1", ""))
	assert.True(t, Answered(ctx))
}

func TestSendTracking(t *testing.T) {
	ctx := WithTracking(context.Background())
	rec := NewRecorder()

	_, err := rec.SendText(ctx, 1, "a", nil)
	require.NoError(t, err)
	n, kb := Sent(ctx)
	assert.Equal(t, 1, n)
	assert.False(t, kb)

	require.NoError(t, rec.EditMarkup(ctx, state.MessageRef{ChatID: 1, MessageID: 1}, &tele.ReplyMarkup{}))
	n, kb = Sent(ctx)
	assert.Equal(t, 2, n)
	assert.True(t, kb)

	n, _ = Sent(context.Background())
	assert.Zero(t, n)
}

func TestRecorderAssignsMessageIDsPerChat(t *testing.T) {
	ctx := context.Background()
	rec := NewRecorder()

	a1, err := rec.SendText(ctx, 1, "a", nil)
	require.NoError(t, err)
	b1, err := rec.SendText(ctx, 2, "b", nil)
	require.NoError(t, err)
	a2, err := rec.SendText(ctx, 1, "c", nil)
	require.NoError(t, err)

	assert.Equal(t, state.MessageRef{ChatID: 1, MessageID: 1}, a1)
	assert.Equal(t, state.MessageRef{ChatID: 2, MessageID: 1}, b1)
	assert.Equal(t, state.MessageRef{ChatID: 1, MessageID: 2}, a2)
	assert.Equal(t, []string{"a", "c"}, rec.Texts(1))

	require.NoError(t, rec.Delete(ctx, a1))
	last, ok := rec.Last()
	require.True(t, ok)
	assert.Equal(t, ActionDelete, last.Action)
}

func TestRecorderFailOn(t *testing.T) {
	ctx := WithTracking(context.Background())
	rec := NewRecorder()
	boom := errors.New("boom")

	rec.FailOn(ActionAnswer, boom)
	assert.ErrorIs(t, rec.Answer(ctx, "cb", ""), boom)
	assert.False(t, Answered(ctx))
	assert.Empty(t, rec.Calls())

	rec.FailOn(ActionAnswer, nil)
	assert.NoError(t, rec.Answer(ctx, "cb", ""))
	assert.Len(t, rec.Calls(), 1)
}

func TestRecorderFailFor(t *testing.T) {
	ctx := context.Background()
	rec := NewRecorder()
	rec.FailFor(2, errors.New("blocked"))

	_, err := rec.SendText(ctx, 2, "hi", nil)
	assert.Error(t, err)
	_, err = rec.SendText(ctx, 3, "hi", nil)
	assert.NoError(t, err)
	assert.Error(t, rec.Delete(ctx, state.MessageRef{ChatID: 2, MessageID: 1}))

	rec.FailFor(2, nil)
	_, err = rec.SendText(ctx, 2, "hi", nil)
	assert.NoError(t, err)
	assert.Equal(t, []string{"hi"}, rec.Texts(2))
}
