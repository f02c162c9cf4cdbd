// Package config loads the server configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/aTrapDeer/portfolio-backend/internal/domain"
)

type Backend string

const (
	BackendSQLite    Backend = "sqlite"
	BackendPostgREST Backend = "postgrest"
)

type Config struct {
	Env      string `env:"APP_ENV" env-default:"development"`
	LogLevel string `env:"LOG_LEVEL" env-default:"info"`
	Port     string `env:"PORT" env-default:"8081"`

	// SiteURL is the public frontend, used for sitemap links.
	SiteURL      string   `env:"SITE_URL" env-required:"true"`
	FrontendURLs []string `env:"FRONTEND_URLS" env-separator:","`
	// Single-origin variables kept from earlier deployments.
	FrontendURL  string `env:"FRONTEND_URL"`
	FrontendURL2 string `env:"FRONTEND_URL2"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"10s"`

	Store        StoreConfig
	Cache        CacheConfig
	Auth         AuthConfig
	Revalidation RevalidationConfig
}

type StoreConfig struct {
	URL            string   `env:"STORE_URL" env-required:"true"`
	APIKey         string   `env:"STORE_API_KEY" env-required:"true"`
	RedisURL       string   `env:"REDIS_URL"`
	RealtimeTables []string `env:"REALTIME_TABLES" env-separator:"," env-default:"profile,projects"`

	// Derived from URL.
	Backend Backend
	Path    string
}

type CacheConfig struct {
	StaleTime time.Duration `env:"CACHE_STALE_TIME" env-default:"5m"`
	GCTime    time.Duration `env:"CACHE_GC_TIME" env-default:"30m"`
}

type AuthConfig struct {
	AdminEmail string `env:"ADMIN_EMAIL" env-required:"true"`
	// AdminPassword provisions the admin user on the sqlite backend.
	AdminPassword string        `env:"ADMIN_PASSWORD"`
	SessionSecret string        `env:"SESSION_SECRET" env-required:"true"`
	SessionTTL    time.Duration `env:"SESSION_TTL" env-default:"24h"`
}

type RevalidationConfig struct {
	URL    string `env:"REVALIDATION_URL"`
	Secret string `env:"REVALIDATION_SECRET"`
}

const minSessionSecret = 16

// Load reads envFile if it exists, then the environment.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if err := c.Store.parseURL(); err != nil {
		return err
	}

	for i, t := range c.Store.RealtimeTables {
		t = strings.TrimSpace(t)
		if !slices.Contains(domain.Tables, t) {
			return fmt.Errorf("REALTIME_TABLES: unknown table %q", t)
		}
		c.Store.RealtimeTables[i] = t
	}

	if len(c.Auth.SessionSecret) < minSessionSecret {
		return fmt.Errorf("SESSION_SECRET must be at least %d characters", minSessionSecret)
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	if c.Cache.StaleTime <= 0 {
		return fmt.Errorf("CACHE_STALE_TIME must be positive")
	}
	if c.Cache.GCTime <= 0 {
		return fmt.Errorf("CACHE_GC_TIME must be positive")
	}
	if c.Revalidation.URL != "" && c.Revalidation.Secret == "" {
		return fmt.Errorf("REVALIDATION_SECRET is required when REVALIDATION_URL is set")
	}
	return nil
}

func (s *StoreConfig) parseURL() error {
	// sqlite paths are not valid URL hosts, so they are split off by hand.
	if path, ok := strings.CutPrefix(s.URL, "sqlite://"); ok {
		if path == "" {
			return fmt.Errorf("STORE_URL: sqlite url needs a file path")
		}
		s.Backend = BackendSQLite
		s.Path = path
		return nil
	}

	u, err := url.Parse(s.URL)
	if err != nil {
		return fmt.Errorf("STORE_URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return fmt.Errorf("STORE_URL: missing host")
		}
		s.Backend = BackendPostgREST
	default:
		return fmt.Errorf("STORE_URL: unsupported scheme %q, want sqlite, http or https", u.Scheme)
	}
	return nil
}

// AllowedOrigins merges the CORS origin variables, dropping blanks and
// duplicates.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range append(slices.Clone(c.FrontendURLs), c.FrontendURL, c.FrontendURL2) {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" && !slices.Contains(out, o) {
			out = append(out, o)
		}
	}
	return out
}

func (c *Config) Addr() string {
	return ":" + c.Port
}
