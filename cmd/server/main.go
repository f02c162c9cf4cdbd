package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aTrapDeer/portfolio-backend/config"
	"github.com/aTrapDeer/portfolio-backend/internal/api"
	"github.com/aTrapDeer/portfolio-backend/internal/auth"
	"github.com/aTrapDeer/portfolio-backend/internal/domain"
	"github.com/aTrapDeer/portfolio-backend/internal/feed"
	"github.com/aTrapDeer/portfolio-backend/internal/logging"
	"github.com/aTrapDeer/portfolio-backend/internal/mutation"
	"github.com/aTrapDeer/portfolio-backend/internal/query"
	"github.com/aTrapDeer/portfolio-backend/internal/realtime"
	"github.com/aTrapDeer/portfolio-backend/internal/revalidate"
	"github.com/aTrapDeer/portfolio-backend/internal/store"
	"github.com/aTrapDeer/portfolio-backend/internal/store/gormstore"
	"github.com/aTrapDeer/portfolio-backend/internal/store/postgrest"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

// backend is the opened data store plus whatever has to be closed with it.
type backend struct {
	store    store.Store
	provider auth.Provider
	closers  []func() error
}

func (b *backend) Close(logger *zap.Logger) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}
}

func openBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*backend, error) {
	b := &backend{}

	switch cfg.Store.Backend {
	case config.BackendPostgREST:
		c, err := postgrest.New(cfg.Store.URL, cfg.Store.APIKey, logger)
		if err != nil {
			return nil, err
		}
		b.store, b.provider = c, c
		logger.Info("using postgrest store", zap.String("url", cfg.Store.URL))
		return b, nil

	case config.BackendSQLite:
		f, err := openFeed(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, f.Close)

		gs, err := gormstore.Open(cfg.Store.Path, f, logger)
		if err != nil {
			b.Close(logger)
			return nil, err
		}
		b.closers = append(b.closers, gs.Close)
		b.store, b.provider = gs, gs

		if cfg.Auth.AdminPassword != "" {
			if err := provision(ctx, gs, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
				b.Close(logger)
				return nil, err
			}
		}
		logger.Info("using sqlite store", zap.String("path", cfg.Store.Path))
		return b, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

// openFeed picks the Redis feed when REDIS_URL is set so several instances
// invalidate each other, and the in-process broker otherwise.
func openFeed(ctx context.Context, cfg *config.Config, logger *zap.Logger) (feed.Feed, error) {
	if cfg.Store.RedisURL == "" {
		return feed.NewBroker(logger), nil
	}
	opts, err := redis.ParseURL(cfg.Store.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info("using redis change feed", zap.String("addr", opts.Addr))
	return feed.NewRedis(client, logger), nil
}

func provision(ctx context.Context, gs *gormstore.Store, email, password string) error {
	if err := gs.EnsureAdmin(ctx, email, password); err != nil {
		return fmt.Errorf("failed to provision admin: %w", err)
	}
	name, _, _ := strings.Cut(email, "@")
	if err := gs.EnsureProfile(ctx, domain.Profile{Name: name, Title: "Software Engineer"}); err != nil {
		return fmt.Errorf("failed to provision profile: %w", err)
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close(logger)

	q := query.New(b.store, logger, query.Options{
		StaleTime: cfg.Cache.StaleTime,
		GCTime:    cfg.Cache.GCTime,
	})
	defer q.Close()

	if cfg.Revalidation.URL != "" {
		n := revalidate.New(cfg.Revalidation.URL, cfg.Revalidation.Secret, logger)
		n.Attach(q)
		defer n.Close()
	}

	syncer := realtime.New(b.store, q, cfg.Store.RealtimeTables, logger)
	if err := syncer.Start(ctx); err != nil {
		// Reads still expire after the stale time without live updates.
		logger.Error("realtime updates disabled", zap.Error(err))
	} else {
		defer syncer.Stop()
	}

	sessions := auth.NewSessions(cfg.Auth.SessionSecret, cfg.Auth.SessionTTL, cfg.Auth.AdminEmail,
		cfg.Env != "development", logger)
	srv := api.New(api.Deps{
		Query:     q,
		Mutations: mutation.New(b.store, q, logger),
		Sessions:  sessions,
		Auth:      b.provider,
	}, api.Options{
		SiteURL:        cfg.SiteURL,
		AllowedOrigins: cfg.AllowedOrigins(),
	}, logger)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("portfolio backend listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}
