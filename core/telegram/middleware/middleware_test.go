package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tele "gopkg.in/telebot.v4"
)

func offlineBot(t *testing.T) *tele.Bot {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{Offline: true, Synchronous: true})
	require.NoError(t, err)
	return b
}

func textUpdate(b *tele.Bot, updateID int, userID int64) tele.Context {
	return b.NewContext(tele.Update{
		ID: updateID,
		Message: &tele.Message{
			Text:   "hi",
			Sender: &tele.User{ID: userID},
			Chat:   &tele.Chat{ID: userID, Type: tele.ChatPrivate},
		},
	})
}

func TestUserLimiterBurstAndRefill(t *testing.T) {
	l := newUserLimiter(time.Second, 2)
	now := time.Unix(1_700_000_000, 0)

	assert.True(t, l.allow(1, now))
	assert.True(t, l.allow(1, now))
	assert.False(t, l.allow(1, now))
	assert.True(t, l.allow(2, now), "users have separate buckets")

	assert.True(t, l.allow(1, now.Add(time.Second)))
	assert.False(t, l.allow(1, now.Add(time.Second)))
}

func TestUserLimiterSweepsIdleVisitors(t *testing.T) {
	l := newUserLimiter(time.Second, 1)
	now := time.Unix(1_700_000_000, 0)
	l.allow(1, now)
	l.allow(2, now)
	assert.Equal(t, 2, l.size())

	l.allow(3, now.Add(limiterIdleTTL+2*time.Minute))
	assert.Equal(t, 1, l.size())
}

func TestRateLimitMiddleware(t *testing.T) {
	b := offlineBot(t)
	var passed, limited int
	var dropped []string
	h := RateLimitMiddleware(RateLimitOptions{
		Interval:  time.Hour,
		Burst:     1,
		OnLimited: func(tele.Context) error { limited++; return nil },
		OnDrop:    func(kind string) { dropped = append(dropped, kind) },
	})(func(tele.Context) error { passed++; return nil })

	require.NoError(t, h(textUpdate(b, 1, 10)))
	require.NoError(t, h(textUpdate(b, 2, 10)))
	require.NoError(t, h(textUpdate(b, 3, 11)))

	assert.Equal(t, 2, passed)
	assert.Equal(t, 1, limited)
	assert.Equal(t, []string{"message"}, dropped)
}

func TestRateLimitMiddlewareExcludes(t *testing.T) {
	b := offlineBot(t)
	passed := 0
	h := RateLimitMiddleware(RateLimitOptions{
		Interval: time.Hour,
		Exclude:  map[string]struct{}{"message": {}},
	})(func(tele.Context) error { passed++; return nil })

	for i := 0; i < 3; i++ {
		require.NoError(t, h(textUpdate(b, i, 10)))
	}
	assert.Equal(t, 3, passed)
}

func TestAdminOnlyMiddleware(t *testing.T) {
	b := offlineBot(t)
	var rejected int
	next := func(tele.Context) error { return errors.New("reached") }
	opts := AdminOptions{
		AdminID:  1,
		IsAdmin:  func(_ context.Context, id int64) bool { return id == 2 },
		OnReject: func(tele.Context) error { rejected++; return nil },
	}
	h := AdminOnlyMiddleware(opts)(next)

	assert.EqualError(t, h(textUpdate(b, 1, 1)), "reached")
	assert.EqualError(t, h(textUpdate(b, 2, 2)), "reached")
	assert.NoError(t, h(textUpdate(b, 3, 3)))
	assert.Equal(t, 1, rejected)

	open := AdminOnlyMiddleware(AdminOptions{})(next)
	assert.EqualError(t, open(textUpdate(b, 4, 3)), "reached")
}

func TestRecoverMiddlewareReturnsPanicAsError(t *testing.T) {
	b := offlineBot(t)
	h := RecoverMiddleware(func(tele.Context) error { panic("boom") })
	err := h(textUpdate(b, 1, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

type kinds []string

func (k *kinds) ObserveUpdate(kind string) { *k = append(*k, kind) }

func TestUpdateCounter(t *testing.T) {
	b := offlineBot(t)
	var seen kinds
	h := UpdateCounterMiddleware(&seen)(func(tele.Context) error { return nil })
	require.NoError(t, h(textUpdate(b, 1, 1)))
	require.NoError(t, UpdateCounterMiddleware(nil)(func(tele.Context) error { return nil })(textUpdate(b, 2, 1)))
	assert.Equal(t, kinds{"message"}, seen)
}

func TestPrivateChatMiddleware(t *testing.T) {
	b := offlineBot(t)
	calls := 0
	h := PrivateChatMiddleware(func(tele.Context) error { calls++; return nil })

	require.NoError(t, h(textUpdate(b, 1, 7)))
	assert.Equal(t, 1, calls)

	group := b.NewContext(tele.Update{ID: 2, Message: &tele.Message{
		Text:   "/start",
		Sender: &tele.User{ID: 7},
		Chat:   &tele.Chat{ID: -100, Type: tele.ChatGroup},
	}})
	require.NoError(t, h(group))

	channelPost := b.NewContext(tele.Update{ID: 3, ChannelPost: &tele.Message{
		Text: "/start",
		Chat: &tele.Chat{ID: -200, Type: tele.ChatChannel},
	}})
	require.NoError(t, h(channelPost))
	assert.Equal(t, 1, calls)
}
