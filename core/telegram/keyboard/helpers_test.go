package keyboard

import (
	"testing"

	"github.com/m3rciful/qnabot/core/telegram/callbacks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type toggleQuery struct {
	ID int64 `json:"i"`
}

func (toggleQuery) Tag() string { return "toggle" }

type finishQuery struct{}

func (finishQuery) Tag() string { return "finish" }

func TestQueryRows(t *testing.T) {
	codec := callbacks.NewCodec()
	require.NoError(t, callbacks.Register[toggleQuery](codec))
	require.NoError(t, callbacks.Register[finishQuery](codec))

	markup, err := QueryRows(codec,
		[]QueryBtn{{Text: "A", Query: toggleQuery{ID: 1}}, {Text: "B", Query: toggleQuery{ID: 2}}},
		[]QueryBtn{{Text: "Done", Query: finishQuery{}}},
	)
	require.NoError(t, err)
	require.Len(t, markup.InlineKeyboard, 2)
	require.Len(t, markup.InlineKeyboard[0], 2)

	b := markup.InlineKeyboard[0][1]
	assert.Equal(t, "B", b.Text)
	assert.Equal(t, "toggle", b.Unique)
	got, err := callbacks.Decode[toggleQuery](b.Unique, b.Data)
	require.NoError(t, err)
	assert.Equal(t, toggleQuery{ID: 2}, got)

	done := markup.InlineKeyboard[1][0]
	assert.Equal(t, "finish", done.Unique)
	assert.Empty(t, done.Data)
}

type strayQuery struct{}

func (strayQuery) Tag() string { return "stray" }

func TestQueryColumnRejectsUnregistered(t *testing.T) {
	_, err := QueryColumn(callbacks.NewCodec(), QueryBtn{Text: "x", Query: strayQuery{}})
	assert.Error(t, err)
}

func TestReplyButtons(t *testing.T) {
	markup := ReplyButtons([]string{"one"}, []string{"two", "three"})
	require.Len(t, markup.ReplyKeyboard, 2)
	assert.Equal(t, "three", markup.ReplyKeyboard[1][1].Text)
	assert.True(t, markup.ResizeKeyboard)
	assert.True(t, RemoveKeyboard().RemoveKeyboard)
}

func TestContactRequest(t *testing.T) {
	markup := ContactRequest("Share")
	require.Len(t, markup.ReplyKeyboard, 1)
	require.Len(t, markup.ReplyKeyboard[0], 1)
	btn := markup.ReplyKeyboard[0][0]
	assert.Equal(t, "Share", btn.Text)
	assert.True(t, btn.Contact)
	assert.True(t, markup.OneTimeKeyboard)
}
