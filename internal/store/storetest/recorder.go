// Package storetest provides a store.Store wrapper for tests that counts
// calls, injects failures and simulates dropped change feeds.
package storetest

import (
	"context"
	"sync"

	"github.com/aTrapDeer/portfolio-backend/internal/store"
)

type Op string

const (
	OpSelect    Op = "select"
	OpSingleton Op = "singleton"
	OpInsert    Op = "insert"
	OpUpdate    Op = "update"
	OpDelete    Op = "delete"
	OpCall      Op = "call"
	OpSubscribe Op = "subscribe"
)

// Hook runs before an operation reaches the wrapped store. A non-nil error
// fails the operation without calling the store. Hooks may block.
type Hook func(ctx context.Context, table string, payload store.Row) error

type Recorder struct {
	store.Store

	mu    sync.Mutex
	calls map[Op]map[string]int
	hooks map[Op]Hook
	subs  map[string][]*recordedSub
}

func NewRecorder(s store.Store) *Recorder {
	return &Recorder{
		Store: s,
		calls: make(map[Op]map[string]int),
		hooks: make(map[Op]Hook),
		subs:  make(map[string][]*recordedSub),
	}
}

// Calls returns how many times op was invoked for table (the procedure name
// for OpCall), including calls failed by a hook.
func (r *Recorder) Calls(op Op, table string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op][table]
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = make(map[Op]map[string]int)
}

// On installs h for op, replacing any previous hook. A nil h removes it.
func (r *Recorder) On(op Op, h Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h == nil {
		delete(r.hooks, op)
		return
	}
	r.hooks[op] = h
}

func (r *Recorder) before(ctx context.Context, op Op, table string, payload store.Row) error {
	r.mu.Lock()
	if r.calls[op] == nil {
		r.calls[op] = make(map[string]int)
	}
	r.calls[op][table]++
	h := r.hooks[op]
	r.mu.Unlock()

	if h == nil {
		return nil
	}
	return h(ctx, table, payload)
}

func (r *Recorder) Select(ctx context.Context, table string, q store.Query) ([]store.Row, error) {
	if err := r.before(ctx, OpSelect, table, nil); err != nil {
		return nil, err
	}
	return r.Store.Select(ctx, table, q)
}

func (r *Recorder) Singleton(ctx context.Context, table string) (store.Row, error) {
	if err := r.before(ctx, OpSingleton, table, nil); err != nil {
		return nil, err
	}
	return r.Store.Singleton(ctx, table)
}

func (r *Recorder) Insert(ctx context.Context, table string, payload store.Row) (store.Row, error) {
	if err := r.before(ctx, OpInsert, table, payload); err != nil {
		return nil, err
	}
	return r.Store.Insert(ctx, table, payload)
}

func (r *Recorder) Update(ctx context.Context, table string, payload store.Row, match store.Match) (store.Row, error) {
	if err := r.before(ctx, OpUpdate, table, payload); err != nil {
		return nil, err
	}
	return r.Store.Update(ctx, table, payload, match)
}

func (r *Recorder) Delete(ctx context.Context, table string, match store.Match) error {
	if err := r.before(ctx, OpDelete, table, nil); err != nil {
		return err
	}
	return r.Store.Delete(ctx, table, match)
}

func (r *Recorder) Call(ctx context.Context, procedure string, args store.Row) error {
	if err := r.before(ctx, OpCall, procedure, args); err != nil {
		return err
	}
	return r.Store.Call(ctx, procedure, args)
}

func (r *Recorder) Subscribe(ctx context.Context, table string) (store.Subscription, error) {
	if err := r.before(ctx, OpSubscribe, table, nil); err != nil {
		return nil, err
	}
	inner, err := r.Store.Subscribe(ctx, table)
	if err != nil {
		return nil, err
	}

	sub := &recordedSub{
		recorder: r,
		table:    table,
		inner:    inner,
		events:   make(chan store.Event, 16),
		done:     make(chan struct{}),
	}
	r.mu.Lock()
	r.subs[table] = append(r.subs[table], sub)
	r.mu.Unlock()

	go sub.forward()
	return sub, nil
}

// Live returns the number of open subscriptions to table.
func (r *Recorder) Live(table string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[table])
}

// Drop closes every open subscription to table the way a lost connection
// would: the event channels close without the subscriber asking.
func (r *Recorder) Drop(table string) {
	r.mu.Lock()
	subs := r.subs[table]
	r.mu.Unlock()
	for _, s := range subs {
		_ = s.Close()
	}
}

func (r *Recorder) remove(s *recordedSub) {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs := r.subs[s.table]
	for i, other := range subs {
		if other == s {
			r.subs[s.table] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

type recordedSub struct {
	recorder *Recorder
	table    string
	inner    store.Subscription
	events   chan store.Event
	done     chan struct{}
	once     sync.Once
}

func (s *recordedSub) forward() {
	defer close(s.events)
	for {
		select {
		case ev, ok := <-s.inner.Events():
			if !ok {
				s.recorder.remove(s)
				return
			}
			select {
			case s.events <- ev:
			case <-s.done:
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *recordedSub) Events() <-chan store.Event { return s.events }

func (s *recordedSub) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.recorder.remove(s)
		err = s.inner.Close()
	})
	return err
}
