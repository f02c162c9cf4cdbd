package postgrest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aTrapDeer/portfolio-backend/internal/store"
)

const (
	defaultHeartbeat = 25 * time.Second
	joinTimeout      = 10 * time.Second
	writeTimeout     = 5 * time.Second

	protocolVersion = "1.0.0"
	joinRef         = "1"
)

// Dialer opens the realtime websocket. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, header http.Header) (*websocket.Conn, *http.Response, error)
}

var defaultDialer Dialer = websocket.DefaultDialer

// Phoenix channel frames.
type outbound struct {
	Topic   string `json:"topic"`
	Event   string `json:"event"`
	Payload any    `json:"payload"`
	Ref     string `json:"ref"`
}

type inbound struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref"`
}

type replyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type changePayload struct {
	Data struct {
		Type      store.EventType `json:"type"`
		Table     string          `json:"table"`
		Record    store.Row       `json:"record"`
		OldRecord store.Row       `json:"old_record"`
	} `json:"data"`
}

func (c *Client) realtimeURL() string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = c.base.Path + "/realtime/v1/websocket"
	u.RawQuery = url.Values{"apikey": {c.apiKey}, "vsn": {protocolVersion}}.Encode()
	return u.String()
}

// Subscribe opens a websocket, joins the postgres_changes channel of table
// and returns once the server has acknowledged the join.
func (c *Client) Subscribe(ctx context.Context, table string) (store.Subscription, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.realtimeURL(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial realtime: %w", err)
	}

	sub := &subscription{
		conn:       conn,
		topic:      "realtime:public:" + table,
		table:      table,
		events:     make(chan store.Event, 16),
		done:       make(chan struct{}),
		readerDone: make(chan struct{}),
		logger:     c.logger.With(zap.String("table", table)),
	}
	sub.ref.Store(1)

	if err := sub.join(ctx, c.bearer(ctx)); err != nil {
		conn.Close()
		return nil, err
	}

	sub.wg.Add(2)
	go sub.read(2 * c.heartbeat)
	go sub.beat(c.heartbeat)

	sub.logger.Debug("joined realtime channel")
	return sub, nil
}

type subscription struct {
	conn   *websocket.Conn
	topic  string
	table  string
	events chan store.Event
	logger *zap.Logger

	writeMu sync.Mutex
	ref     atomic.Int64

	done       chan struct{}
	readerDone chan struct{}
	once       sync.Once
	wg         sync.WaitGroup
}

func (s *subscription) Events() <-chan store.Event {
	return s.events
}

func (s *subscription) write(msg outbound) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(msg)
}

func (s *subscription) nextRef() string {
	return strconv.FormatInt(s.ref.Add(1), 10)
}

func (s *subscription) join(ctx context.Context, token string) error {
	payload := map[string]any{
		"config": map[string]any{
			"broadcast": map[string]any{"self": false},
			"presence":  map[string]any{"key": ""},
			"postgres_changes": []map[string]string{
				{"event": "*", "schema": "public", "table": s.table},
			},
		},
		"access_token": token,
	}
	if err := s.write(outbound{Topic: s.topic, Event: "phx_join", Payload: payload, Ref: joinRef}); err != nil {
		return fmt.Errorf("join %s: %w", s.topic, err)
	}

	deadline := time.Now().Add(joinTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = s.conn.SetReadDeadline(deadline)
	defer s.conn.SetReadDeadline(time.Time{})

	for {
		var msg inbound
		if err := s.conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("join %s: %w", s.topic, err)
		}
		if msg.Event != "phx_reply" || msg.Ref != joinRef {
			continue
		}

		var reply replyPayload
		if err := json.Unmarshal(msg.Payload, &reply); err != nil {
			return fmt.Errorf("join %s: decode reply: %w", s.topic, err)
		}
		if reply.Status != "ok" {
			return fmt.Errorf("join %s rejected: %s %s", s.topic, reply.Status, string(reply.Response))
		}
		return nil
	}
}

// read delivers change events until the socket fails. The server answers
// every heartbeat, so a connection silent for longer than idle is treated
// as lost.
func (s *subscription) read(idle time.Duration) {
	defer s.wg.Done()
	defer close(s.events)
	defer close(s.readerDone)

	for {
		_ = s.conn.SetReadDeadline(time.Now().Add(idle))
		var msg inbound
		if err := s.conn.ReadJSON(&msg); err != nil {
			select {
			case <-s.done:
			default:
				s.logger.Warn("realtime connection lost", zap.Error(err))
				s.conn.Close()
			}
			return
		}
		if msg.Topic != s.topic {
			continue
		}

		switch msg.Event {
		case "postgres_changes":
			var p changePayload
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				s.logger.Warn("undecodable change payload", zap.Error(err))
				continue
			}
			ev := store.Event{
				Table:     s.table,
				Type:      p.Data.Type,
				Record:    p.Data.Record,
				OldRecord: p.Data.OldRecord,
			}
			select {
			case s.events <- ev:
			case <-s.done:
				return
			}
		case "phx_error", "phx_close":
			s.logger.Warn("realtime channel closed by server", zap.String("event", msg.Event))
			s.conn.Close()
			return
		}
	}
}

func (s *subscription) beat(every time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-s.readerDone:
			return
		case <-ticker.C:
			msg := outbound{Topic: "phoenix", Event: "heartbeat", Payload: struct{}{}, Ref: s.nextRef()}
			if err := s.write(msg); err != nil {
				s.logger.Warn("heartbeat failed", zap.Error(err))
				// Closing the socket ends the reader, which closes Events.
				s.conn.Close()
				return
			}
		}
	}
}

// Close leaves the channel, closes the socket and waits for the reader, so
// Events is closed when Close returns.
func (s *subscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		select {
		case <-s.readerDone:
		default:
			if err := s.write(outbound{Topic: s.topic, Event: "phx_leave", Payload: struct{}{}, Ref: s.nextRef()}); err != nil {
				s.logger.Debug("leave not sent", zap.Error(err))
			}
		}
		s.conn.Close()
		s.wg.Wait()
	})
	return nil
}
