package idempotency

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"conductor/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func env(text string) *types.Envelope {
	return &types.Envelope{AssistantText: text}
}

func TestCache_GetPut(t *testing.T) {
	c := NewCache(10, time.Minute)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	e := env("hello")
	require.True(t, c.Put("turn-1", e))
	got, ok := c.Get("turn-1")
	require.True(t, ok)
	assert.Same(t, e, got)
}

func TestCache_FirstWriterWins(t *testing.T) {
	c := NewCache(10, time.Minute)

	first := env("first")
	require.True(t, c.Put("k", first))
	assert.False(t, c.Put("k", env("second")))

	got, _ := c.Get("k")
	assert.Same(t, first, got)
}

func TestCache_TTL(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}
	c := NewCache(10, 10*time.Minute, WithClock(clock.Now))

	c.Put("k", env("a"))
	clock.Advance(9 * time.Minute)
	_, ok := c.Get("k")
	assert.True(t, ok)

	clock.Advance(time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())

	// An expired entry can be replaced.
	c.Put("k", env("b"))
	clock.Advance(10 * time.Minute)
	assert.True(t, c.Put("k", env("c")))
	got, _ := c.Get("k")
	assert.Equal(t, "c", got.AssistantText)
}

func TestCache_LRUEviction(t *testing.T) {
	c := NewCache(3, 0)

	for i := 0; i < 3; i++ {
		c.Put(fmt.Sprintf("k%d", i), env(fmt.Sprint(i)))
	}
	// Touch k0 so k1 becomes the oldest.
	_, ok := c.Get("k0")
	require.True(t, ok)

	c.Put("k3", env("3"))

	assert.Equal(t, 3, c.Len())
	_, ok = c.Get("k1")
	assert.False(t, ok)
	for _, k := range []string{"k0", "k2", "k3"} {
		_, ok := c.Get(k)
		assert.True(t, ok, k)
	}
}

func TestCache_RejectsEmpty(t *testing.T) {
	c := NewCache(3, time.Minute)
	assert.False(t, c.Put("", env("x")))
	assert.False(t, c.Put("k", nil))
	assert.Equal(t, 0, c.Len())
}

func TestCache_Purge(t *testing.T) {
	c := NewCache(3, time.Minute)
	c.Put("a", env("a"))
	c.Put("b", env("b"))
	c.Purge()
	assert.Equal(t, 0, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := NewCache(50, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("k%d", (i*200+j)%80)
				c.Put(key, env(key))
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 50)
}

func TestGroup_CoalescesConcurrentCalls(t *testing.T) {
	var g Group
	var runs atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})

	fn := func() types.TurnResponse {
		if runs.Add(1) == 1 {
			close(started)
		}
		<-release
		return types.TurnResponse{HTTPStatus: 200, Envelope: env("shared")}
	}

	const callers = 5
	var wg sync.WaitGroup
	results := make([]types.TurnResponse, callers)
	coalesced := make([]bool, callers)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], coalesced[0], _ = g.Do(context.Background(), "k", fn)
	}()
	<-started
	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], coalesced[i], _ = g.Do(context.Background(), "k", fn)
		}(i)
	}
	// Give followers time to join the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), runs.Load())
	for _, r := range results {
		require.NotNil(t, r.Envelope)
		assert.Same(t, results[0].Envelope, r.Envelope)
	}
	assert.False(t, coalesced[0], "the caller that ran fn is not coalesced")
	for i := 1; i < callers; i++ {
		assert.True(t, coalesced[i], "caller %d joined the running call", i)
	}
}

func TestGroup_SoleCallerNotCoalesced(t *testing.T) {
	var g Group
	resp, coalesced, err := g.Do(context.Background(), "k", func() types.TurnResponse {
		return types.TurnResponse{HTTPStatus: 200, Envelope: env("alone")}
	})
	require.NoError(t, err)
	assert.False(t, coalesced)
	assert.Equal(t, 200, resp.HTTPStatus)
}

func TestGroup_CallerContextEndsFirst(t *testing.T) {
	var g Group
	release := make(chan struct{})
	done := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := g.Do(ctx, "k", func() types.TurnResponse {
		defer close(done)
		<-release
		return types.TurnResponse{HTTPStatus: 200}
	})
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	<-done
}
