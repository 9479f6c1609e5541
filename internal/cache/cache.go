// Package cache is the owned store for validated entity data. Reads go
// through Fetch; writes only come from fetchers (which run the full
// normalize-and-validate pipeline) so the cache never holds raw data.
package cache

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"golang.org/x/sync/singleflight"
)

// Fetcher loads a fresh value for one key.
type Fetcher func(ctx context.Context) (any, error)

type Options struct {
	// StaleTime is used when Fetch is called with a zero stale time.
	StaleTime time.Duration
	// GCTime evicts entries nobody read for this long. Zero disables GC.
	GCTime time.Duration
	// RefetchTimeout bounds background refetches.
	RefetchTimeout time.Duration
}

// Result is what a read observes.
type Result struct {
	Value     any
	UpdatedAt time.Time
	// Stale is set when the value is past its stale time or was
	// invalidated and the replacement has not landed yet.
	Stale bool
}

// Snapshot is a non-blocking view of one entry.
type Snapshot struct {
	Result
	Exists   bool
	Fetching bool
	Err      error
}

type entry struct {
	value     any
	hasValue  bool
	err       error
	updatedAt time.Time
	readAt    time.Time
	staleTime time.Duration
	fetcher   Fetcher

	// invalidated marks a value stale until a load started after the
	// invalidation (same version) lands.
	invalidated bool
	version     uint64
	// gen numbers loads; applied is the newest gen written.
	gen      uint64
	applied  uint64
	fetching int
}

func (e *entry) stale(now time.Time) bool {
	if e.invalidated {
		return true
	}
	return e.staleTime >= 0 && now.Sub(e.updatedAt) > e.staleTime
}

type Cache struct {
	mu      sync.Mutex
	entries map[Key]*entry
	group   singleflight.Group
	wg      conc.WaitGroup
	opts    Options
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func New(opts Options) *Cache {
	if opts.StaleTime == 0 {
		opts.StaleTime = time.Minute
	}
	if opts.RefetchTimeout == 0 {
		opts.RefetchTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		entries: make(map[Key]*entry),
		opts:    opts,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	if opts.GCTime > 0 {
		go c.runGC(opts.GCTime)
	} else {
		close(c.done)
	}
	return c
}

// Fetch returns the cached value for key when it is fresh. A stale value is
// returned immediately while a refetch runs in the background; a missing
// value is loaded, with concurrent callers for the same key sharing one
// load. staleTime <= 0 uses the cache default.
func (c *Cache) Fetch(ctx context.Context, key Key, staleTime time.Duration, fn Fetcher) (Result, error) {
	if staleTime <= 0 {
		staleTime = c.opts.StaleTime
	}
	now := c.now()

	c.mu.Lock()
	e := c.entryLocked(key)
	e.fetcher = fn
	e.staleTime = staleTime
	e.readAt = now
	if e.hasValue {
		res := Result{Value: e.value, UpdatedAt: e.updatedAt, Stale: e.stale(now)}
		flight := flightKey(key, e.version)
		c.mu.Unlock()
		if res.Stale {
			c.background(key, flight, fn)
		}
		return res, nil
	}
	flight := flightKey(key, e.version)
	c.mu.Unlock()

	return c.join(ctx, key, flight, fn)
}

// Refetch loads key now, ignoring freshness, and waits for the result.
func (c *Cache) Refetch(ctx context.Context, key Key, staleTime time.Duration, fn Fetcher) (Result, error) {
	if staleTime <= 0 {
		staleTime = c.opts.StaleTime
	}
	c.mu.Lock()
	e := c.entryLocked(key)
	e.fetcher = fn
	e.staleTime = staleTime
	e.readAt = c.now()
	// An entry already invalidated has a refetch for its current version
	// in flight (or about to be); join it instead of starting another.
	if !e.invalidated {
		e.invalidated = true
		e.version++
	}
	flight := flightKey(key, e.version)
	c.mu.Unlock()

	return c.join(ctx, key, flight, fn)
}

func (c *Cache) join(ctx context.Context, key Key, flight string, fn Fetcher) (Result, error) {
	ch := c.group.DoChan(flight, func() (any, error) {
		return c.load(context.WithoutCancel(ctx), key, fn)
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return Result{}, r.Err
		}
		return r.Val.(Result), nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// load runs fn and writes the result unless a newer load already landed or
// the entry was removed meanwhile. A load started before an invalidation
// may refresh the value but cannot clear the stale mark.
func (c *Cache) load(ctx context.Context, key Key, fn Fetcher) (any, error) {
	c.mu.Lock()
	e := c.entryLocked(key)
	e.gen++
	gen := e.gen
	version := e.version
	e.fetching++
	c.mu.Unlock()

	v, err := fn(ctx)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	e.fetching--

	res := Result{Value: v, UpdatedAt: now}
	if cur, ok := c.entries[key]; !ok || cur != e {
		if err != nil {
			return nil, err
		}
		return res, nil
	}
	if err != nil {
		e.err = err
		return nil, err
	}
	if gen < e.applied {
		// Superseded: hand the caller its own result, keep the newer one.
		return res, nil
	}
	e.applied = gen
	e.value = v
	e.hasValue = true
	e.err = nil
	e.updatedAt = now
	if version == e.version {
		e.invalidated = false
	}
	res.Stale = e.invalidated
	return res, nil
}

// background schedules a deduplicated load that nobody waits on.
func (c *Cache) background(key Key, flight string, fn Fetcher) {
	if c.ctx.Err() != nil {
		return
	}
	c.wg.Go(func() {
		ctx, cancel := context.WithTimeout(c.ctx, c.opts.RefetchTimeout)
		defer cancel()
		if _, err, _ := c.group.Do(flight, func() (any, error) {
			if !c.needsLoad(key) {
				return nil, nil
			}
			return c.load(ctx, key, fn)
		}); err != nil {
			log.Printf("WARN: cache refetch %s: %v", key, err)
		}
	})
}

// needsLoad reports whether a background refetch still has work to do. A
// refetch scheduled behind one that already landed finds the entry fresh.
func (c *Cache) needsLoad(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return false
	}
	return !e.hasValue || e.stale(c.now())
}

// Invalidate marks every matching entry stale and refetches, in the
// background, those that have been read before. Values stay readable until
// their replacement lands. Returns the number of entries matched.
func (c *Cache) Invalidate(match Matcher) int {
	type job struct {
		key    Key
		flight string
		fn     Fetcher
	}
	var jobs []job
	n := 0

	c.mu.Lock()
	for k, e := range c.entries {
		if !match(k) {
			continue
		}
		n++
		e.invalidated = true
		e.version++
		if e.fetcher != nil {
			jobs = append(jobs, job{key: k, flight: flightKey(k, e.version), fn: e.fetcher})
		}
	}
	c.mu.Unlock()

	for _, j := range jobs {
		c.background(j.key, j.flight, j.fn)
	}
	return n
}

// Remove drops matching entries outright. In-flight loads for them are
// discarded when they finish.
func (c *Cache) Remove(match Matcher) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.entries {
		if match(k) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Peek reports the entry state without loading.
func (c *Cache) Peek(key Key) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Snapshot{}
	}
	return Snapshot{
		Result: Result{
			Value:     e.value,
			UpdatedAt: e.updatedAt,
			Stale:     e.hasValue && e.stale(c.now()),
		},
		Exists:   e.hasValue,
		Fetching: e.fetching > 0,
		Err:      e.err,
	}
}

// Len is the number of entries, loaded or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Wait blocks until every background refetch scheduled so far finished.
func (c *Cache) Wait() {
	if r := c.wg.WaitAndRecover(); r != nil {
		log.Printf("ERROR: cache refetch panicked: %v", r.Value)
	}
}

// Close stops GC and background refetches.
func (c *Cache) Close() {
	c.cancel()
	<-c.done
	c.Wait()
}

func (c *Cache) entryLocked(key Key) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	return e
}

func (c *Cache) runGC(every time.Duration) {
	defer close(c.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.collect(every)
		}
	}
}

// collect evicts idle entries that are not loading.
func (c *Cache) collect(idle time.Duration) int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if e.fetching == 0 && now.Sub(e.readAt) > idle {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

func flightKey(k Key, version uint64) string {
	return fmt.Sprintf("%s#%d", k, version)
}
