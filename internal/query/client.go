// Package query is the read side of the data layer. It caches store reads
// per (entity, filter) key, shares in-flight requests, serves stale data
// while revalidating, and lets writers and the realtime synchronizer mark
// entries stale or merge confirmed rows into them.
package query

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/aTrapDeer/portfolio-backend/internal/apperrors"
	"github.com/aTrapDeer/portfolio-backend/internal/store"
)

const (
	DefaultStaleTime = 5 * time.Minute
	DefaultGCTime    = 30 * time.Minute
)

// Fetcher loads the value cached under one key.
type Fetcher func(ctx context.Context, s store.Store) (any, error)

type Options struct {
	// StaleTime is how long fetched data is served without a network call.
	StaleTime time.Duration
	// GCTime is how long an entry nobody reads stays in memory.
	GCTime time.Duration
	Now    func() time.Time
}

// Client is the query cache. Create one per process with New and release it
// with Close; values returned from it are shared and must not be modified.
type Client struct {
	store     store.Store
	logger    *zap.Logger
	staleTime time.Duration
	gcTime    time.Duration
	now       func() time.Time

	mu      sync.Mutex
	entries *cache.Cache
	closed  bool

	group  singleflight.Group
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	obsMu     sync.RWMutex
	observers map[int]Observer
	nextObs   int
}

type entry struct {
	key       Key
	data      any
	hasData   bool
	err       error
	fetchedAt time.Time
	stale     bool

	// epoch counts invalidations. A fetch that started in an older epoch
	// still stores its data but leaves the entry stale.
	epoch uint64

	// seq identifies the latest fetch; results of superseded fetches are
	// dropped.
	seq        uint64
	fetching   bool
	fetchEpoch uint64
}

func New(s store.Store, logger *zap.Logger, opts Options) *Client {
	if opts.StaleTime <= 0 {
		opts.StaleTime = DefaultStaleTime
	}
	if opts.GCTime <= 0 {
		opts.GCTime = DefaultGCTime
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		store:     s,
		logger:    logger.Named("query"),
		staleTime: opts.StaleTime,
		gcTime:    opts.GCTime,
		now:       opts.Now,
		entries:   cache.New(opts.GCTime, opts.GCTime),
		ctx:       ctx,
		cancel:    cancel,
		observers: make(map[int]Observer),
	}
}

// Close cancels background fetches, waits for them and drops every entry.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.cancel()
	c.mu.Unlock()

	c.wg.Wait()
	c.entries.Flush()
	return nil
}

// Snapshot is the state of one entry at the time of a read.
type Snapshot struct {
	Data    any
	HasData bool
	// Err is the error of the most recent fetch, kept alongside the last
	// good data.
	Err       error
	Stale     bool
	FetchedAt time.Time
}

// Fetch returns the value cached under key, fetching it with fn when
// needed. Fresh data is returned without a network call. Stale data is
// returned immediately while a background fetch refreshes it. With no data
// the caller waits for the fetch, or for ctx, whichever ends first; an
// abandoned fetch still completes for the cache and other waiters.
func (c *Client) Fetch(ctx context.Context, key Key, fn Fetcher) (Snapshot, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Snapshot{}, apperrors.ErrClosed
	}

	e := c.entryLocked(key)
	if e.hasData && !e.stale && c.now().Sub(e.fetchedAt) < c.staleTime {
		snap := e.snapshot()
		c.mu.Unlock()
		return snap, nil
	}

	ch := c.startFetchLocked(e, fn)
	if e.hasData {
		snap := e.snapshot()
		snap.Stale = true
		c.mu.Unlock()
		return snap, nil
	}
	c.mu.Unlock()

	select {
	case res := <-ch:
		if res.Err != nil {
			return Snapshot{Err: res.Err}, res.Err
		}
		return Snapshot{Data: res.Val, HasData: true, FetchedAt: c.now()}, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (c *Client) entryLocked(key Key) *entry {
	k := key.String()
	if v, ok := c.entries.Get(k); ok {
		e := v.(*entry)
		c.entries.Set(k, e, cache.DefaultExpiration)
		return e
	}
	e := &entry{key: key}
	c.entries.Set(k, e, cache.DefaultExpiration)
	return e
}

// startFetchLocked joins the entry's in-flight fetch, or starts one when
// there is none or the running one predates the latest invalidation.
func (c *Client) startFetchLocked(e *entry, fn Fetcher) <-chan singleflight.Result {
	if !e.fetching || e.fetchEpoch != e.epoch {
		e.seq++
		e.fetching = true
		e.fetchEpoch = e.epoch
		c.wg.Add(1)
	}
	seq, epoch := e.seq, e.fetchEpoch

	// While fetching is set the flight for seq is registered in the group,
	// so a joining caller never runs this closure.
	return c.group.DoChan(e.flightKey(), func() (any, error) {
		defer c.wg.Done()
		data, err := fn(c.ctx, c.store)
		c.complete(e, seq, epoch, data, err)
		return data, err
	})
}

func (e *entry) flightKey() string {
	return e.key.String() + "#" + strconv.FormatUint(e.seq, 10)
}

// complete applies a fetch result if the fetch is still the latest one for
// an entry that is still cached.
func (c *Client) complete(e *entry, seq, epoch uint64, data any, err error) {
	c.mu.Lock()
	if seq != e.seq || !c.currentLocked(e) {
		c.mu.Unlock()
		return
	}
	e.fetching = false

	if err != nil {
		if c.ctx.Err() != nil {
			c.mu.Unlock()
			return
		}
		e.err = err
		hasData := e.hasData
		c.mu.Unlock()

		c.logger.Warn("fetch failed",
			zap.String("key", e.key.String()),
			zap.Bool("has_data", hasData),
			zap.Error(err))
		c.notify(Event{Kind: EventFailed, Key: e.key})
		return
	}

	e.data = data
	e.hasData = true
	e.err = nil
	e.fetchedAt = c.now()
	e.stale = e.epoch != epoch
	c.mu.Unlock()

	c.notify(Event{Kind: EventUpdated, Key: e.key})
}

func (c *Client) currentLocked(e *entry) bool {
	v, ok := c.entries.Get(e.key.String())
	return ok && v.(*entry) == e
}

func (e *entry) snapshot() Snapshot {
	return Snapshot{
		Data:      e.data,
		HasData:   e.hasData,
		Err:       e.err,
		Stale:     e.stale,
		FetchedAt: e.fetchedAt,
	}
}

// entriesLocked returns the cached entries of entity.
func (c *Client) entriesLocked(entity string) []*entry {
	var out []*entry
	for _, item := range c.entries.Items() {
		if e := item.Object.(*entry); e.key.Entity == entity {
			out = append(out, e)
		}
	}
	return out
}

// Invalidate marks every cached entry of entity stale. Data is kept and
// served until the refetch triggered by the next read completes.
func (c *Client) Invalidate(entity string) {
	c.mu.Lock()
	n := 0
	for _, e := range c.entriesLocked(entity) {
		e.epoch++
		e.stale = true
		n++
	}
	c.mu.Unlock()

	c.logger.Debug("invalidated", zap.String("entity", entity), zap.Int("entries", n))
	c.notify(Event{Kind: EventInvalidated, Key: Key{Entity: entity}, All: true})
}

// InvalidateKey marks one entry stale.
func (c *Client) InvalidateKey(key Key) {
	c.mu.Lock()
	if v, ok := c.entries.Get(key.String()); ok {
		e := v.(*entry)
		e.epoch++
		e.stale = true
	}
	c.mu.Unlock()

	c.notify(Event{Kind: EventInvalidated, Key: key})
}

// MergeFunc rewrites the data cached under key. Returning false means the
// entry cannot be updated in place and is invalidated instead.
type MergeFunc func(key Key, data any) (any, bool)

// Merge applies fn to every entry of entity that holds data. Merged data
// supersedes any fetch still in flight for the entry. An entry still
// waiting for its first fetch cannot be merged into; its pending result
// may predate the write, so it lands stale.
func (c *Client) Merge(entity string, fn MergeFunc) {
	var invalidated []Key
	var merged []Key

	c.mu.Lock()
	for _, e := range c.entriesLocked(entity) {
		if !e.hasData {
			e.epoch++
			e.stale = true
			continue
		}
		data, ok := fn(e.key, e.data)
		if !ok {
			e.epoch++
			e.stale = true
			invalidated = append(invalidated, e.key)
			continue
		}
		e.data = data
		e.supersedeLocked()
		merged = append(merged, e.key)
	}
	c.mu.Unlock()

	for _, k := range merged {
		c.notify(Event{Kind: EventMerged, Key: k})
	}
	for _, k := range invalidated {
		c.notify(Event{Kind: EventInvalidated, Key: k})
	}
}

// supersedeLocked drops the result of the in-flight fetch, if any.
func (e *entry) supersedeLocked() {
	if e.fetching {
		e.seq++
		e.fetching = false
	}
}

// Patch is Merge with a way back: the returned rollback restores the data
// every patched entry held before, for entries that are still cached.
func (c *Client) Patch(entity string, fn MergeFunc) (rollback func()) {
	type saved struct {
		e    *entry
		data any
	}
	var snapshot []saved

	c.mu.Lock()
	for _, e := range c.entriesLocked(entity) {
		if e.hasData {
			snapshot = append(snapshot, saved{e: e, data: e.data})
		}
	}
	c.mu.Unlock()

	c.Merge(entity, fn)

	return func() {
		var restored []Key
		c.mu.Lock()
		for _, s := range snapshot {
			if !c.currentLocked(s.e) {
				continue
			}
			s.e.data = s.data
			s.e.supersedeLocked()
			restored = append(restored, s.e.key)
		}
		c.mu.Unlock()

		for _, k := range restored {
			c.notify(Event{Kind: EventMerged, Key: k})
		}
	}
}

// Phase is the tri-state view of an entry.
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseData
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseData:
		return "data"
	case PhaseError:
		return "error"
	default:
		return "loading"
	}
}

type State struct {
	Snapshot
	Phase    Phase
	Fetching bool
}

// Status reports the state of key without triggering a fetch.
func (c *Client) Status(key Key) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.entries.Get(key.String())
	if !ok {
		return State{Phase: PhaseLoading}
	}
	e := v.(*entry)
	st := State{Snapshot: e.snapshot(), Fetching: e.fetching}
	switch {
	case e.hasData:
		st.Phase = PhaseData
	case e.err != nil:
		st.Phase = PhaseError
	default:
		st.Phase = PhaseLoading
	}
	if e.hasData && c.now().Sub(e.fetchedAt) >= c.staleTime {
		st.Stale = true
	}
	return st
}
