// Package postgrest implements store.Store against a hosted PostgREST
// endpoint with a Supabase style auth and realtime service in front of it.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aTrapDeer/portfolio-backend/internal/apperrors"
	"github.com/aTrapDeer/portfolio-backend/internal/store"
)

const (
	requestTimeout = 15 * time.Second

	mediaJSON   = "application/json"
	mediaObject = "application/vnd.pgrst.object+json"
)

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithDialer replaces the websocket dialer used by Subscribe.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

func WithHeartbeat(every time.Duration) Option {
	return func(c *Client) { c.heartbeat = every }
}

// Client talks to the REST, auth and realtime services under one base URL.
type Client struct {
	base      *url.URL
	apiKey    string
	http      *http.Client
	dialer    Dialer
	heartbeat time.Duration
	logger    *zap.Logger
}

func New(rawURL, apiKey string, logger *zap.Logger, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(rawURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse store url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("store url must be http(s), got %q", u.Scheme)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("store api key is required")
	}

	c := &Client{
		base:      u,
		apiKey:    apiKey,
		http:      &http.Client{Timeout: requestTimeout},
		dialer:    defaultDialer,
		heartbeat: defaultHeartbeat,
		logger:    logger.Named("postgrest"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// apiError is the error body PostgREST returns.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, accept string, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.bearer(ctx))
	req.Header.Set("Accept", accept)
	if body != nil {
		req.Header.Set("Content-Type", mediaJSON)
	}
	if method != http.MethodGet {
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return c.translate(resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// bearer prefers a signed-in user's token so row level security applies.
func (c *Client) bearer(ctx context.Context) string {
	if token, ok := store.AccessToken(ctx); ok {
		return token
	}
	return c.apiKey
}

func (c *Client) translate(status int, body []byte) error {
	var e apiError
	_ = json.Unmarshal(body, &e)
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch {
	case e.Code == "23505":
		return fmt.Errorf("%w: %s", apperrors.ErrConflict, msg)
	case e.Code == "23514", e.Code == "23502", e.Code == "22P02", e.Code == "22007":
		return fmt.Errorf("%w: %s", apperrors.ErrInvalid, msg)
	case e.Code == "PGRST116", status == http.StatusNotAcceptable:
		if strings.Contains(e.Details, " 0 rows") {
			return fmt.Errorf("%w: %s", apperrors.ErrNotFound, msg)
		}
		return fmt.Errorf("%w: %s", apperrors.ErrMultipleRows, msg)
	case e.Code == "42501", status == http.StatusUnauthorized, status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", apperrors.ErrUnauthorized, msg)
	case e.Code == "PGRST205", e.Code == "42P01", status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", apperrors.ErrNotFound, msg)
	case status == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", apperrors.ErrInvalid, msg)
	}
	c.logger.Warn("store request failed",
		zap.Int("status", status),
		zap.String("code", e.Code),
		zap.String("message", msg))
	return fmt.Errorf("store error %d: %s", status, msg)
}

func checkTable(table string) error {
	if !store.ValidIdentifier(table) {
		return fmt.Errorf("%w: invalid table %q", apperrors.ErrInvalid, table)
	}
	return nil
}

func (c *Client) Select(ctx context.Context, table string, q store.Query) ([]store.Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalid, err)
	}

	var rows []store.Row
	if err := c.do(ctx, http.MethodGet, c.endpoint("/rest/v1/"+table, encodeQuery(q)), nil, mediaJSON, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) Singleton(ctx context.Context, table string) (store.Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	var row store.Row
	if err := c.do(ctx, http.MethodGet, c.endpoint("/rest/v1/"+table, url.Values{"select": {"*"}}), nil, mediaObject, &row); err != nil {
		return nil, fmt.Errorf("%s: %w", table, err)
	}
	return row, nil
}

func (c *Client) Insert(ctx context.Context, table string, payload store.Row) (store.Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	var rows []store.Row
	if err := c.do(ctx, http.MethodPost, c.endpoint("/rest/v1/"+table, nil), payload, mediaJSON, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert into %s returned no row", table)
	}
	return rows[0], nil
}

func (c *Client) Update(ctx context.Context, table string, payload store.Row, match store.Match) (store.Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	q, err := matchQuery(match)
	if err != nil {
		return nil, err
	}

	body := make(store.Row, len(payload))
	for k, v := range payload {
		if k != "id" {
			body[k] = v
		}
	}

	var rows []store.Row
	if err := c.do(ctx, http.MethodPatch, c.endpoint("/rest/v1/"+table, q), body, mediaJSON, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s %v: %w", table, match.Value, apperrors.ErrNotFound)
	}
	return rows[0], nil
}

func (c *Client) Delete(ctx context.Context, table string, match store.Match) error {
	if err := checkTable(table); err != nil {
		return err
	}
	q, err := matchQuery(match)
	if err != nil {
		return err
	}

	var rows []store.Row
	if err := c.do(ctx, http.MethodDelete, c.endpoint("/rest/v1/"+table, q), nil, mediaJSON, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("%s %v: %w", table, match.Value, apperrors.ErrNotFound)
	}
	return nil
}

func (c *Client) Call(ctx context.Context, procedure string, args store.Row) error {
	if !store.ValidIdentifier(procedure) {
		return fmt.Errorf("%w: invalid procedure %q", apperrors.ErrInvalid, procedure)
	}
	if args == nil {
		args = store.Row{}
	}
	return c.do(ctx, http.MethodPost, c.endpoint("/rest/v1/rpc/"+procedure, nil), args, mediaJSON, nil)
}

func matchQuery(m store.Match) (url.Values, error) {
	if !store.ValidIdentifier(m.Column) {
		return nil, fmt.Errorf("%w: invalid match column %q", apperrors.ErrInvalid, m.Column)
	}
	return url.Values{m.Column: {"eq." + literal(m.Value)}}, nil
}

// encodeQuery renders q in PostgREST's horizontal filtering syntax.
func encodeQuery(q store.Query) url.Values {
	v := url.Values{"select": {"*"}}
	for _, f := range q.Filters {
		switch f.Op {
		case store.OpEq:
			v.Add(f.Column, "eq."+literal(f.Value))
		case store.OpNeq:
			v.Add(f.Column, "neq."+literal(f.Value))
		case store.OpIsNull:
			v.Add(f.Column, "is.null")
		case store.OpSearch:
			pattern := quote("*" + escapeLike(literal(f.Value)) + "*")
			terms := make([]string, len(f.Columns))
			for i, col := range f.Columns {
				terms[i] = col + ".ilike." + pattern
			}
			v.Add("or", "("+strings.Join(terms, ",")+")")
		}
	}
	if len(q.Order) > 0 {
		parts := make([]string, len(q.Order))
		for i, o := range q.Order {
			dir := "asc"
			if o.Desc {
				dir = "desc"
			}
			parts[i] = o.Column + "." + dir
		}
		v.Set("order", strings.Join(parts, ","))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

func literal(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// escapeLike neutralises the wildcard characters a search term may contain.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`, `*`, `\*`)
	return r.Replace(s)
}

// quote wraps a value used inside an or=(...) group, which reserves commas,
// parentheses and double quotes.
func quote(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}
