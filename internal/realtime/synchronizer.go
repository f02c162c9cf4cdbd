// Package realtime keeps the query cache in step with writes made outside
// this process by watching the store's change feeds.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aTrapDeer/portfolio-backend/internal/retry"
	"github.com/aTrapDeer/portfolio-backend/internal/store"
)

var ErrAlreadyStarted = errors.New("synchronizer already started")

// Invalidator marks every cached entry of an entity stale.
type Invalidator interface {
	Invalidate(entity string)
}

type Option func(*Synchronizer)

// WithRetryConfig sets the backoff used to resubscribe after a feed drops.
func WithRetryConfig(cfg *retry.Config) Option {
	return func(s *Synchronizer) { s.retry = cfg }
}

// Synchronizer holds one subscription per watched table. Any event on a
// table invalidates the entity; payloads are never applied to the cache.
type Synchronizer struct {
	store  store.Store
	cache  Invalidator
	tables []string
	logger *zap.Logger
	retry  *retry.Config

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(s store.Store, cache Invalidator, tables []string, logger *zap.Logger, opts ...Option) *Synchronizer {
	r := &Synchronizer{
		store:  s,
		cache:  cache,
		tables: dedupe(tables),
		logger: logger.Named("realtime"),
		retry:  retry.ResubscribeConfig(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start subscribes to every watched table. It fails, holding no
// subscriptions, if any table cannot be subscribed.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}

	subs := make([]store.Subscription, 0, len(s.tables))
	for _, table := range s.tables {
		sub, err := s.store.Subscribe(ctx, table)
		if err != nil {
			for _, opened := range subs {
				_ = opened.Close()
			}
			return fmt.Errorf("subscribe to %s: %w", table, err)
		}
		subs = append(subs, sub)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.started = true
	for i, table := range s.tables {
		s.wg.Add(1)
		go s.watch(runCtx, table, subs[i])
	}

	s.logger.Info("realtime synchronizer started", zap.Strings("tables", s.tables))
	return nil
}

// Stop closes every subscription and waits for the watchers to exit.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.started = false
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("realtime synchronizer stopped")
}

func (s *Synchronizer) watch(ctx context.Context, table string, sub store.Subscription) {
	defer s.wg.Done()

	for {
		select {
		case ev, ok := <-sub.Events():
			if ok {
				s.logger.Debug("change event",
					zap.String("table", table),
					zap.String("type", string(ev.Type)))
				s.cache.Invalidate(table)
				continue
			}

			s.logger.Warn("change feed dropped, resubscribing", zap.String("table", table))
			_ = sub.Close()
			sub = s.resubscribe(ctx, table)
			if sub == nil {
				return
			}
			// events may have been missed while the feed was down
			s.cache.Invalidate(table)

		case <-ctx.Done():
			if err := sub.Close(); err != nil {
				s.logger.Warn("failed to close subscription", zap.String("table", table), zap.Error(err))
			}
			return
		}
	}
}

func (s *Synchronizer) resubscribe(ctx context.Context, table string) store.Subscription {
	cfg := *s.retry
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		s.logger.Warn("resubscribe failed",
			zap.String("table", table),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err))
	}

	sub, err := retry.DoWithResult(ctx, &cfg, func() (store.Subscription, error) {
		return s.store.Subscribe(ctx, table)
	})
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("giving up on change feed", zap.String("table", table), zap.Error(err))
		}
		return nil
	}
	s.logger.Info("change feed re-established", zap.String("table", table))
	return sub
}

func dedupe(tables []string) []string {
	seen := make(map[string]bool, len(tables))
	out := make([]string, 0, len(tables))
	for _, t := range tables {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
