package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aTrapDeer/portfolio-backend/internal/store"
)

const channelPrefix = "portfolio:changes:" // portfolio:changes:{table}

// Redis is a Feed over Redis Pub/Sub, shared by every server instance
// pointed at the same Redis. go-redis reconnects and resubscribes on its
// own, so a subscription only ends on Close.
type Redis struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedis takes ownership of client.
func NewRedis(client *redis.Client, logger *zap.Logger) *Redis {
	return &Redis{client: client, logger: logger.Named("redis_feed")}
}

func (r *Redis) Publish(ctx context.Context, ev store.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := r.client.Publish(ctx, channelPrefix+ev.Table, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, table string) (store.Subscription, error) {
	ps := r.client.Subscribe(ctx, channelPrefix+table)
	// Wait for the subscription confirmation so no event published after
	// Subscribe returns can be missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", table, err)
	}

	sub := &redisSub{
		ps:     ps,
		events: make(chan store.Event, defaultBuffer),
		done:   make(chan struct{}),
	}
	go sub.run(r.logger.With(zap.String("table", table)))
	return sub, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

type redisSub struct {
	ps     *redis.PubSub
	events chan store.Event
	done   chan struct{}
	once   sync.Once
}

func (s *redisSub) run(logger *zap.Logger) {
	defer close(s.events)

	msgs := s.ps.Channel()
	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var ev store.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logger.Warn("discarding malformed change event", zap.Error(err))
				continue
			}
			select {
			case s.events <- ev:
			default:
				logger.Warn("subscriber buffer full, dropping event", zap.String("type", string(ev.Type)))
			}
		case <-s.done:
			return
		}
	}
}

func (s *redisSub) Events() <-chan store.Event { return s.events }

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
