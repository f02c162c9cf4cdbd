// Package store defines the contract of the remote data store: table level
// reads and writes, stored procedures, and per-table change feeds.
package store

import (
	"context"
)

// Row is a single table row as it crosses the store boundary. Callers
// decode rows into typed entities with Decode.
type Row map[string]any

// Store is the remote data store. Every method may block on the network
// and must honour ctx.
type Store interface {
	Select(ctx context.Context, table string, q Query) ([]Row, error)
	// Singleton returns the only row of table, apperrors.ErrNotFound when the
	// table is empty and apperrors.ErrMultipleRows when it holds more.
	Singleton(ctx context.Context, table string) (Row, error)
	Insert(ctx context.Context, table string, payload Row) (Row, error)
	Update(ctx context.Context, table string, payload Row, match Match) (Row, error)
	Delete(ctx context.Context, table string, match Match) error
	Call(ctx context.Context, procedure string, args Row) error
	Subscribe(ctx context.Context, table string) (Subscription, error)
}

// Match identifies the row targeted by Update and Delete.
type Match struct {
	Column string
	Value  any
}

func ByID(id string) Match {
	return Match{Column: "id", Value: id}
}

// Subscription is a live change feed for one table. Events is closed when
// the underlying transport drops or after Close; Close is idempotent.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Event is one row-level change notification.
type Event struct {
	Table     string    `json:"table"`
	Type      EventType `json:"type"`
	Record    Row       `json:"record,omitempty"`
	OldRecord Row       `json:"old_record,omitempty"`
}

type accessTokenKey struct{}

// WithAccessToken attaches a signed-in user's store token to ctx. Stores that
// enforce row level security send it instead of the public key.
func WithAccessToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, accessTokenKey{}, token)
}

func AccessToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(accessTokenKey{}).(string)
	return token, ok && token != ""
}
