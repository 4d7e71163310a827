package state

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailboxesPreservePerUserOrder(t *testing.T) {
	m := NewMailboxes(MailboxOptions{Workers: 4, Size: 256})
	ctx := context.Background()

	var mu sync.Mutex
	seen := map[int64][]int{}
	for i := 0; i < 100; i++ {
		for u := int64(1); u <= 3; u++ {
			i, u := i, u
			require.NoError(t, m.Submit(ctx, u, func(context.Context) {
				mu.Lock()
				seen[u] = append(seen[u], i)
				mu.Unlock()
			}))
		}
	}
	require.NoError(t, m.Close(ctx))

	for u := int64(1); u <= 3; u++ {
		require.Len(t, seen[u], 100)
		for i, v := range seen[u] {
			assert.Equal(t, i, v)
		}
	}
	assert.Equal(t, 0, m.Pending())
}

func TestMailboxesBoundWorkers(t *testing.T) {
	m := NewMailboxes(MailboxOptions{Workers: 2, Size: 8})
	ctx := context.Background()

	var running, peak atomic.Int64
	for u := int64(1); u <= 10; u++ {
		require.NoError(t, m.Submit(ctx, u, func(context.Context) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
		}))
	}
	require.NoError(t, m.Close(ctx))
	assert.LessOrEqual(t, peak.Load(), int64(2))
}

func TestMailboxesRejectWhenFull(t *testing.T) {
	m := NewMailboxes(MailboxOptions{Workers: 1, Size: 1})
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, m.Submit(ctx, 1, func(context.Context) {
		close(started)
		<-release
	}))
	<-started
	assert.ErrorIs(t, m.Submit(ctx, 1, func(context.Context) {}), ErrMailboxFull)
	assert.NoError(t, m.Submit(ctx, 2, func(context.Context) {}))

	close(release)
	require.NoError(t, m.Close(ctx))
	assert.ErrorIs(t, m.Submit(ctx, 1, func(context.Context) {}), ErrClosed)
}

func TestMailboxesRecoverPanics(t *testing.T) {
	m := NewMailboxes(MailboxOptions{Workers: 1, Size: 4})
	ctx := context.Background()

	var ran atomic.Bool
	require.NoError(t, m.Submit(ctx, 1, func(context.Context) { panic("boom") }))
	require.NoError(t, m.Submit(ctx, 1, func(context.Context) { ran.Store(true) }))
	require.NoError(t, m.Close(ctx))
	assert.True(t, ran.Load())
}

func TestMailboxesJobTimeoutAndForcedClose(t *testing.T) {
	m := NewMailboxes(MailboxOptions{Workers: 1, Size: 4, Timeout: 20 * time.Millisecond})

	var timedOut atomic.Bool
	require.NoError(t, m.Submit(context.Background(), 1, func(ctx context.Context) {
		<-ctx.Done()
		timedOut.Store(ctx.Err() == context.DeadlineExceeded)
	}))
	require.NoError(t, m.Close(context.Background()))
	assert.True(t, timedOut.Load())

	m = NewMailboxes(MailboxOptions{Workers: 1, Size: 4})
	var cancelled atomic.Bool
	require.NoError(t, m.Submit(context.Background(), 1, func(ctx context.Context) {
		<-ctx.Done()
		cancelled.Store(true)
	}))
	closeCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Close(closeCtx), context.DeadlineExceeded)
	assert.True(t, cancelled.Load())
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	k := NewKeyedMutex()
	var inside atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock(1)
			defer unlock()
			assert.EqualValues(t, 1, inside.Add(1))
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, k.Len())

	a := k.Lock(1)
	b := k.Lock(2)
	assert.Equal(t, 2, k.Len())
	a()
	a()
	b()
	assert.Equal(t, 0, k.Len())
}
