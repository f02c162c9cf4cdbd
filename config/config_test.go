package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("STORE_URL", "sqlite://./data/portfolio.db")
	t.Setenv("STORE_API_KEY", "local")
	t.Setenv("SITE_URL", "https://example.com")
	t.Setenv("ADMIN_EMAIL", "admin@example.com")
	t.Setenv("SESSION_SECRET", "0123456789abcdef0123")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8081", cfg.Port)
	assert.Equal(t, ":8081", cfg.Addr())
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, "./data/portfolio.db", cfg.Store.Path)
	assert.Equal(t, []string{"profile", "projects"}, cfg.Store.RealtimeTables)
	assert.Equal(t, 5*time.Minute, cfg.Cache.StaleTime)
	assert.Equal(t, 30*time.Minute, cfg.Cache.GCTime)
	assert.Equal(t, 24*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_MissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("SESSION_SECRET", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SESSION_SECRET")
}

func TestLoad_StoreURL(t *testing.T) {
	tests := []struct {
		url     string
		backend Backend
		wantErr bool
	}{
		{url: "sqlite://portfolio.db", backend: BackendSQLite},
		{url: "https://abc.supabase.co", backend: BackendPostgREST},
		{url: "http://localhost:54321", backend: BackendPostgREST},
		{url: "postgres://localhost/db", wantErr: true},
		{url: "sqlite://", wantErr: true},
		{url: "https://", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			setRequired(t)
			t.Setenv("STORE_URL", tt.url)

			cfg, err := Load("")
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "STORE_URL")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.backend, cfg.Store.Backend)
		})
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"short secret", "SESSION_SECRET", "short"},
		{"unknown realtime table", "REALTIME_TABLES", "profile,users"},
		{"revalidation without secret", "REVALIDATION_URL", "https://example.com/api/revalidate"},
		{"bad duration", "CACHE_STALE_TIME", "soon"},
		{"zero stale time", "CACHE_STALE_TIME", "0s"},
		{"zero gc time", "CACHE_GC_TIME", "0s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.val)

			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	setRequired(t)
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("PORT=9090\nLOG_LEVEL=debug\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("PORT")
		os.Unsetenv("LOG_LEVEL")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)

	_, err = Load(filepath.Join(dir, "missing.env"))
	assert.NoError(t, err)
}

func TestAllowedOrigins(t *testing.T) {
	setRequired(t)
	t.Setenv("FRONTEND_URLS", "https://a.example, https://b.example/")
	t.Setenv("FRONTEND_URL", "https://a.example")
	t.Setenv("FRONTEND_URL2", "https://c.example")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example", "https://c.example"}, cfg.AllowedOrigins())
}
