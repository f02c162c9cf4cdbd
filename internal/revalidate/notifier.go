// Package revalidate tells the frontend to rebuild its static pages when
// cached content changes.
package revalidate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aTrapDeer/portfolio-backend/internal/query"
)

const (
	DefaultWindow  = time.Second
	requestTimeout = 10 * time.Second
)

// Notifier POSTs {"secret", "entity"} to a revalidation webhook whenever
// the query cache drops or merges entries of an entity. Bursts for one
// entity within the window are sent once.
type Notifier struct {
	url    string
	secret string
	window time.Duration
	client *http.Client
	logger *zap.Logger

	mu          sync.Mutex
	pending     map[string]*time.Timer
	closed      bool
	wg          sync.WaitGroup
	unsubscribe func()
}

type Option func(*Notifier)

func WithWindow(d time.Duration) Option {
	return func(n *Notifier) { n.window = d }
}

func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) { n.client = c }
}

func New(url, secret string, logger *zap.Logger, opts ...Option) *Notifier {
	n := &Notifier{
		url:     url,
		secret:  secret,
		window:  DefaultWindow,
		client:  &http.Client{Timeout: requestTimeout},
		logger:  logger.Named("revalidate"),
		pending: make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Attach starts observing c.
func (n *Notifier) Attach(c *query.Client) {
	unsubscribe := c.Subscribe(n.observe)
	n.mu.Lock()
	n.unsubscribe = unsubscribe
	n.mu.Unlock()
}

func (n *Notifier) observe(ev query.Event) {
	switch ev.Kind {
	case query.EventInvalidated, query.EventMerged:
		n.Schedule(ev.Key.Entity)
	}
}

// Schedule queues a webhook call for entity unless one is already queued.
func (n *Notifier) Schedule(entity string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed || n.pending[entity] != nil {
		return
	}
	n.wg.Add(1)
	n.pending[entity] = time.AfterFunc(n.window, func() {
		defer n.wg.Done()
		n.mu.Lock()
		delete(n.pending, entity)
		n.mu.Unlock()

		if err := n.trigger(entity); err != nil {
			n.logger.Warn("error triggering revalidation", zap.String("entity", entity), zap.Error(err))
			return
		}
		n.logger.Debug("revalidation triggered", zap.String("entity", entity))
	})
}

func (n *Notifier) trigger(entity string) error {
	payload, err := json.Marshal(map[string]string{
		"secret": n.secret,
		"entity": entity,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revalidation failed with status code: %d", resp.StatusCode)
	}
	return nil
}

// Close stops observing, drops queued calls and waits for any call in
// progress.
func (n *Notifier) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	unsubscribe := n.unsubscribe
	for entity, t := range n.pending {
		if t.Stop() {
			n.wg.Done()
		}
		delete(n.pending, entity)
	}
	n.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	n.wg.Wait()
	return nil
}
