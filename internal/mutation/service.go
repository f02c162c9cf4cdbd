// Package mutation performs admin and public writes against the store and
// reconciles the query cache once the store has confirmed them.
//
// Profile and contact messages merge the confirmed row into cached entries.
// Skills, experience, projects and social links invalidate every cached
// entry of their entity and rely on the refetch.
package mutation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/aTrapDeer/portfolio-backend/internal/apperrors"
	"github.com/aTrapDeer/portfolio-backend/internal/query"
	"github.com/aTrapDeer/portfolio-backend/internal/store"
)

// Columns the store assigns itself.
var systemColumns = []string{"id", "created_at", "updated_at"}

type Service struct {
	store  store.Store
	query  *query.Client
	logger *zap.Logger
}

func New(s store.Store, q *query.Client, logger *zap.Logger) *Service {
	return &Service{store: s, query: q, logger: logger.Named("mutation")}
}

func insert[T any](ctx context.Context, s store.Store, table string, in T, omit ...string) (T, error) {
	var out T
	payload, err := store.Encode(in, append(omit, systemColumns...)...)
	if err != nil {
		return out, err
	}
	row, err := s.Insert(ctx, table, payload)
	if err != nil {
		return out, err
	}
	if err := store.Decode(row, &out); err != nil {
		return out, fmt.Errorf("%w: store returned a malformed %s row: %v", apperrors.ErrInvalid, table, err)
	}
	return out, nil
}

func update[T any](ctx context.Context, s store.Store, table, id string, in T, omit ...string) (T, error) {
	var out T
	if id == "" {
		return out, fmt.Errorf("%w: id is required", apperrors.ErrInvalid)
	}
	payload, err := store.Encode(in, append(omit, systemColumns...)...)
	if err != nil {
		return out, err
	}
	row, err := s.Update(ctx, table, payload, store.ByID(id))
	if err != nil {
		return out, err
	}
	if err := store.Decode(row, &out); err != nil {
		return out, fmt.Errorf("%w: store returned a malformed %s row: %v", apperrors.ErrInvalid, table, err)
	}
	return out, nil
}

func (s *Service) remove(ctx context.Context, table, id string) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", apperrors.ErrInvalid)
	}
	return s.store.Delete(ctx, table, store.ByID(id))
}

func (s *Service) invalidate(table string) {
	s.query.Invalidate(table)
}
