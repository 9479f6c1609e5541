package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counter(v any) (Fetcher, *int32) {
	var calls int32
	return func(context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return v, nil
	}, &calls
}

func TestFetch_CachesFreshValue(t *testing.T) {
	c := New(Options{})
	defer c.Close()
	key := ListKey("schools", `{"page":1}`)
	fn, calls := counter("a")

	r1, err := c.Fetch(context.Background(), key, time.Minute, fn)
	require.NoError(t, err)
	r2, err := c.Fetch(context.Background(), key, time.Minute, fn)
	require.NoError(t, err)

	assert.Equal(t, "a", r1.Value)
	assert.Equal(t, "a", r2.Value)
	assert.False(t, r2.Stale)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestFetch_DeduplicatesConcurrentLoads(t *testing.T) {
	c := New(Options{})
	defer c.Close()
	key := DetailKey("staff", "s1")

	release := make(chan struct{})
	var calls int32
	fn := func(context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "staff", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := c.Fetch(context.Background(), key, time.Minute, fn)
			assert.NoError(t, err)
			assert.Equal(t, "staff", r.Value)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetch_ErrorIsNotCached(t *testing.T) {
	c := New(Options{})
	defer c.Close()
	key := ListKey("visits", "p")

	_, err := c.Fetch(context.Background(), key, time.Minute, func(context.Context) (any, error) {
		return nil, errors.New("boom")
	})
	require.Error(t, err)
	assert.False(t, c.Peek(key).Exists)

	r, err := c.Fetch(context.Background(), key, time.Minute, func(context.Context) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", r.Value)
}

func TestInvalidate_KeepsValueAndRefetches(t *testing.T) {
	c := New(Options{})
	defer c.Close()
	key := ListKey("schools", "p")

	var version int32
	fn := func(context.Context) (any, error) {
		return atomic.AddInt32(&version, 1), nil
	}
	_, err := c.Fetch(context.Background(), key, time.Minute, fn)
	require.NoError(t, err)

	n := c.Invalidate(Lists("schools"))
	assert.Equal(t, 1, n)

	c.Wait()
	snap := c.Peek(key)
	assert.True(t, snap.Exists)
	assert.False(t, snap.Stale)
	assert.Equal(t, int32(2), snap.Value)
}

func TestInvalidate_StaleUntilRefetchLands(t *testing.T) {
	c := New(Options{})
	defer c.Close()
	key := ListKey("schools", "p")

	release := make(chan struct{})
	var calls int32
	fn := func(context.Context) (any, error) {
		if atomic.AddInt32(&calls, 1) > 1 {
			<-release
			return "new", nil
		}
		return "old", nil
	}
	_, err := c.Fetch(context.Background(), key, time.Minute, fn)
	require.NoError(t, err)

	c.Invalidate(Lists("schools"))
	r, err := c.Fetch(context.Background(), key, time.Minute, fn)
	require.NoError(t, err)
	assert.Equal(t, "old", r.Value, "last known good value stays readable")
	assert.True(t, r.Stale)

	close(release)
	c.Wait()
	assert.Equal(t, "new", c.Peek(key).Value)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "invalidate and stale read share one refetch")
}

func TestBackground_SkipsWhenRefetchAlreadyLanded(t *testing.T) {
	c := New(Options{})
	defer c.Close()
	key := ListKey("schools", "p")
	fn, calls := counter("v")

	_, err := c.Fetch(context.Background(), key, time.Minute, fn)
	require.NoError(t, err)
	c.Invalidate(Lists("schools"))
	c.Wait()
	require.Equal(t, int32(2), atomic.LoadInt32(calls))

	// A stale read's refetch for the same version that got scheduled late.
	c.mu.Lock()
	flight := flightKey(key, c.entries[key].version)
	c.mu.Unlock()
	c.background(key, flight, fn)
	c.Wait()

	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
	assert.False(t, c.Peek(key).Stale)

	c.Remove(Entity("schools"))
	c.background(key, flight, fn)
	c.Wait()
	assert.Equal(t, int32(2), atomic.LoadInt32(calls), "removed entries are not reloaded")
}

func TestLoad_OlderResultDoesNotOverwriteNewer(t *testing.T) {
	c := New(Options{})
	defer c.Close()
	key := ListKey("schools", "p")

	slow := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = c.load(context.Background(), key, func(context.Context) (any, error) {
			close(started)
			<-slow
			return "older", nil
		})
	}()
	<-started

	_, err := c.load(context.Background(), key, func(context.Context) (any, error) {
		return "newer", nil
	})
	require.NoError(t, err)
	close(slow)

	require.Eventually(t, func() bool { return !c.Peek(key).Fetching }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "newer", c.Peek(key).Value)
}

func TestLoad_PreInvalidationResultKeepsStaleMark(t *testing.T) {
	c := New(Options{})
	defer c.Close()
	key := ListKey("schools", "p")

	slow := make(chan struct{})
	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.load(context.Background(), key, func(context.Context) (any, error) {
			close(started)
			<-slow
			return "pre", nil
		})
	}()
	<-started
	c.Invalidate(Lists("schools"))
	close(slow)
	<-done

	snap := c.Peek(key)
	assert.Equal(t, "pre", snap.Value)
	assert.True(t, snap.Stale)
}

func TestRemove_DropsEntry(t *testing.T) {
	c := New(Options{})
	defer c.Close()
	key := DetailKey("schools", "x")
	fn, _ := counter("x")
	_, _ = c.Fetch(context.Background(), key, time.Minute, fn)

	assert.Equal(t, 1, c.Remove(Detail("schools", "x")))
	assert.False(t, c.Peek(key).Exists)
	assert.Equal(t, 0, c.Remove(Detail("schools", "x")))
}

func TestFetch_TimeBasedStaleness(t *testing.T) {
	c := New(Options{})
	defer c.Close()
	now := time.Now()
	c.now = func() time.Time { return now }

	key := ListKey("schools", "p")
	fn, calls := counter("v")
	_, _ = c.Fetch(context.Background(), key, time.Second, fn)

	now = now.Add(2 * time.Second)
	r, err := c.Fetch(context.Background(), key, time.Second, fn)
	require.NoError(t, err)
	assert.True(t, r.Stale)
	c.Wait()
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestRefetch_Blocks(t *testing.T) {
	c := New(Options{})
	defer c.Close()
	key := ListKey("schools", "p")
	fn, calls := counter("v")
	_, _ = c.Fetch(context.Background(), key, time.Minute, fn)

	r, err := c.Refetch(context.Background(), key, time.Minute, fn)
	require.NoError(t, err)
	assert.False(t, r.Stale)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestCollect_EvictsIdleEntries(t *testing.T) {
	c := New(Options{})
	defer c.Close()
	now := time.Now()
	c.now = func() time.Time { return now }

	fn, _ := counter("v")
	_, _ = c.Fetch(context.Background(), ListKey("a", "1"), time.Minute, fn)
	now = now.Add(10 * time.Minute)
	_, _ = c.Fetch(context.Background(), ListKey("b", "1"), time.Minute, fn)

	assert.Equal(t, 1, c.collect(5*time.Minute))
	assert.Equal(t, 1, c.Len())
}

func TestMatchers(t *testing.T) {
	assert.True(t, Lists("a")(ListKey("a", "x")))
	assert.False(t, Lists("a")(DetailKey("a", "x")))
	assert.True(t, Detail("a", "1")(DetailKey("a", "1")))
	assert.False(t, Detail("a", "1")(DetailKey("a", "2")))
	assert.True(t, Entity("a")(DetailKey("a", "2")))
}
