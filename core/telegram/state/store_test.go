package state

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type askName struct{}

func (askName) Kind() Kind { return "ask_name" }

type askAge struct {
	Name string `json:"name"`
}

func (askAge) Kind() Kind { return "ask_age" }

type profileDraft struct {
	Name string   `json:"name"`
	Age  int      `json:"age"`
	Tags []string `json:"tags,omitempty"`
}

func (profileDraft) Kind() Kind { return "profile_draft" }

func testCodec(t *testing.T) *Codec {
	t.Helper()
	c := NewCodec()
	require.NoError(t, RegisterKind[askName](c))
	require.NoError(t, RegisterKind[askAge](c))
	require.NoError(t, RegisterKind[profileDraft](c))
	return c
}

func TestMemoryStoreDefaultsToEmpty(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	st, err := s.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, Empty{}, st)

	require.NoError(t, s.Set(ctx, 42, askAge{Name: "Ann"}))
	st, err = s.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, askAge{Name: "Ann"}, st)

	require.NoError(t, s.Set(ctx, 42, Empty{}))
	assert.Equal(t, 0, s.(*memoryStore).Len())
}

func setupRedisStore(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisStore(client, testCodec(t), RedisOptions{Prefix: "test:", TTL: ttl})
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	mr, s := setupRedisStore(t, 0)

	st, err := s.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, Empty{}, st)

	draft := profileDraft{Name: "Bob", Age: 30, Tags: []string{"go"}}
	require.NoError(t, s.Set(ctx, 7, draft))
	assert.True(t, mr.Exists("test:state:7"))

	st, err = s.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, draft, st)

	require.NoError(t, s.Set(ctx, 7, Empty{}))
	assert.False(t, mr.Exists("test:state:7"))
}

func TestRedisStoreAppliesTTL(t *testing.T) {
	ctx := context.Background()
	mr, s := setupRedisStore(t, time.Hour)

	require.NoError(t, s.Set(ctx, 1, askName{}))
	assert.Equal(t, time.Hour, mr.TTL("test:state:1"))

	mr.FastForward(2 * time.Hour)
	st, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, Empty{}, st)
}

func TestRedisStoreTreatsUnknownKindAsEmpty(t *testing.T) {
	ctx := context.Background()
	mr, s := setupRedisStore(t, 0)
	require.NoError(t, mr.Set("test:state:5", `{"kind":"retired","data":{}}`))

	st, err := s.Get(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, Empty{}, st)
}

func TestRedisStoreReportsConnectionErrors(t *testing.T) {
	mr, s := setupRedisStore(t, 0)
	mr.Close()

	_, err := s.Get(context.Background(), 1)
	assert.Error(t, err)
}

func TestCodecRejectsUnregistered(t *testing.T) {
	c := NewCodec()
	_, err := c.Marshal(askName{})
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = c.Unmarshal([]byte(`{"kind":"ask_name"}`))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestCodecRejectsConflictingKind(t *testing.T) {
	type fakeAskName struct{ askName }
	c := testCodec(t)
	assert.NoError(t, RegisterKind[askName](c))
	assert.Error(t, RegisterKind[fakeAskName](c))
}

func TestCodecRoundTripProperty(t *testing.T) {
	c := testCodec(t)
	rapid.Check(t, func(t *rapid.T) {
		var st State
		switch rapid.IntRange(0, 3).Draw(t, "variant") {
		case 0:
			st = Empty{}
		case 1:
			st = askName{}
		case 2:
			st = askAge{Name: rapid.String().Draw(t, "name")}
		default:
			st = profileDraft{
				Name: rapid.String().Draw(t, "name"),
				Age:  rapid.IntRange(0, 150).Draw(t, "age"),
				Tags: rapid.SliceOfN(rapid.StringN(1, 8, -1), 1, 4).Draw(t, "tags"),
			}
		}
		raw, err := c.Marshal(st)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		got, err := c.Unmarshal(raw)
		if err != nil {
			t.Fatalf("unmarshal %s: %v", raw, err)
		}
		assert.Equal(t, st, got)
	})
}
