// Package feed carries row change events from the process that performed a
// write to every subscriber of the table.
package feed

import (
	"context"

	"github.com/aTrapDeer/portfolio-backend/internal/store"
)

// Feed publishes and subscribes to per-table change events.
type Feed interface {
	Publish(ctx context.Context, ev store.Event) error
	Subscribe(ctx context.Context, table string) (store.Subscription, error)
	Close() error
}

const defaultBuffer = 64
