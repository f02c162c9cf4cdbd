package feed

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/aTrapDeer/portfolio-backend/internal/apperrors"
	"github.com/aTrapDeer/portfolio-backend/internal/store"
)

// Broker is an in-process Feed. Delivery never blocks the publisher: when a
// subscriber's buffer is full the event is dropped, which is harmless for
// invalidation since the subscriber still has an undelivered event queued.
type Broker struct {
	mu     sync.Mutex
	subs   map[string]map[*brokerSub]struct{}
	closed bool
	logger *zap.Logger
}

func NewBroker(logger *zap.Logger) *Broker {
	return &Broker{
		subs:   make(map[string]map[*brokerSub]struct{}),
		logger: logger.Named("broker"),
	}
}

func (b *Broker) Publish(_ context.Context, ev store.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return apperrors.ErrClosed
	}
	for sub := range b.subs[ev.Table] {
		select {
		case sub.events <- ev:
		default:
			b.logger.Warn("subscriber buffer full, dropping event",
				zap.String("table", ev.Table), zap.String("type", string(ev.Type)))
		}
	}
	return nil
}

func (b *Broker) Subscribe(_ context.Context, table string) (store.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, apperrors.ErrClosed
	}
	sub := &brokerSub{broker: b, table: table, events: make(chan store.Event, defaultBuffer)}
	if b.subs[table] == nil {
		b.subs[table] = make(map[*brokerSub]struct{})
	}
	b.subs[table][sub] = struct{}{}
	return sub, nil
}

// Close ends every subscription.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for table, subs := range b.subs {
		for sub := range subs {
			close(sub.events)
		}
		delete(b.subs, table)
	}
	return nil
}

type brokerSub struct {
	broker *Broker
	table  string
	events chan store.Event
}

func (s *brokerSub) Events() <-chan store.Event { return s.events }

func (s *brokerSub) Close() error {
	b := s.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[s.table]
	if _, ok := subs[s]; !ok {
		return nil
	}
	delete(subs, s)
	close(s.events)
	return nil
}
