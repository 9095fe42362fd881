package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClock() *clock { return &clock{t: time.Unix(1700000000, 0)} }

func TestKey(t *testing.T) {
	assert.Equal(t, "rl:login:1.2.3.4", Key("rl", "login", "1.2.3.4", ""))
	assert.Equal(t, "rl:api:1.2.3.4:u1", Key("rl", "api", "1.2.3.4", "u1"))
}

func TestLookup(t *testing.T) {
	assert.Equal(t, 5, Lookup(ClassLogin).Limit)
	assert.Equal(t, time.Hour, Lookup(ClassSignup).Window)
	assert.Equal(t, ClassDefault, Lookup("nope").Name)
	for _, name := range []string{ClassDefault, ClassAuth, ClassLogin, ClassSignup, ClassAPI} {
		assert.NotEmpty(t, Lookup(name).Message, name)
	}
}

func TestMemoryBackend_SlidingWindow(t *testing.T) {
	clk := newClock()
	b := NewMemoryBackend()
	b.now = clk.Now
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		res, err := b.Hit(ctx, "k", 5, time.Minute)
		require.NoError(t, err)
		require.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, 5-i, res.Remaining)
	}

	res, err := b.Hit(ctx, "k", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, time.Minute, res.RetryAfter)
	assert.Equal(t, clk.Now().Add(time.Minute), res.ResetAt)

	clk.Advance(time.Minute + time.Second)
	res, err = b.Hit(ctx, "k", 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 4, res.Remaining, "fresh window counts this request as 1")
}

func TestMemoryBackend_KeysAreIndependent(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()

	_, _ = b.Hit(ctx, "a", 1, time.Minute)
	res, _ := b.Hit(ctx, "a", 1, time.Minute)
	assert.False(t, res.Allowed)

	res, _ = b.Hit(ctx, "b", 1, time.Minute)
	assert.True(t, res.Allowed)
}

func TestMemoryBackend_Sweep(t *testing.T) {
	clk := newClock()
	b := NewMemoryBackend()
	b.now = clk.Now
	ctx := context.Background()

	_, _ = b.Hit(ctx, "short", 5, time.Second)
	_, _ = b.Hit(ctx, "long", 5, time.Hour)
	require.Equal(t, 2, b.Len())

	clk.Advance(2 * time.Second)
	assert.Equal(t, 1, b.Sweep(clk.Now()))
	assert.Equal(t, 1, b.Len())
}

func TestMemoryBackend_ConcurrentHitsDoNotCrash(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, err := b.Hit(ctx, "shared", 1000, time.Minute)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	res, err := b.Hit(ctx, "shared", 1000, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

func TestMemoryBackend_RejectsInvalidArguments(t *testing.T) {
	b := NewMemoryBackend()
	_, err := b.Hit(context.Background(), "", 1, time.Minute)
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = b.Hit(context.Background(), "k", 0, time.Minute)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

// fakeScripter stands in for a Redis server executing the hit script.
type fakeScripter struct {
	redis.Scripter

	mu     sync.Mutex
	counts map[string]int64
	ttlMS  int64
	err    error
	keys   []string
}

func (f *fakeScripter) EvalSha(ctx context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return f.eval(ctx, keys)
}

func (f *fakeScripter) Eval(ctx context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return f.eval(ctx, keys)
}

func (f *fakeScripter) eval(ctx context.Context, keys []string) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	cmd := redis.NewCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	if f.counts == nil {
		f.counts = map[string]int64{}
	}
	f.keys = append(f.keys, keys[0])
	f.counts[keys[0]]++
	cmd.SetVal([]interface{}{f.counts[keys[0]], f.ttlMS})
	return cmd
}

func TestRedisBackend_Hit(t *testing.T) {
	clk := newClock()
	fake := &fakeScripter{ttlMS: 30_000}
	b := NewRedisBackend(fake)
	b.now = clk.Now
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := b.Hit(ctx, "rl:login:1.2.3.4", 5, time.Minute)
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}
	res, err := b.Hit(ctx, "rl:login:1.2.3.4", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 30*time.Second, res.RetryAfter)
	assert.Equal(t, clk.Now().Add(30*time.Second), res.ResetAt)
	assert.Equal(t, "ratelimit:rl:login:1.2.3.4", fake.keys[0])
}

func TestRedisBackend_PropagatesErrors(t *testing.T) {
	b := NewRedisBackend(&fakeScripter{err: errors.New("connection refused")})
	_, err := b.Hit(context.Background(), "k", 5, time.Minute)
	require.Error(t, err)
}

func TestLimiter_FailsOpen(t *testing.T) {
	clk := newClock()
	l := New(NewRedisBackend(&fakeScripter{err: redis.ErrClosed}), WithClock(clk.Now))

	class := Lookup(ClassLogin)
	for i := 0; i < 10; i++ {
		res := l.Check(context.Background(), class, "k")
		require.True(t, res.Allowed)
		assert.Equal(t, 5, res.Limit)
		assert.Equal(t, 4, res.Remaining)
		assert.Equal(t, clk.Now().Add(time.Minute), res.ResetAt)
	}
}

type slowBackend struct{}

func (slowBackend) Hit(ctx context.Context, _ string, _ int, _ time.Duration) (Result, error) {
	<-ctx.Done()
	return Result{}, ctx.Err()
}

func TestLimiter_TimeoutFailsOpen(t *testing.T) {
	l := New(slowBackend{}, WithTimeout(20*time.Millisecond))
	res := l.Check(context.Background(), Lookup(ClassAPI), "k")
	assert.True(t, res.Allowed)
}
