// Package config builds the process configuration from the environment at startup.
// No other package reads the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/storefront-edge/pkg/cache"
	"github.com/Sternrassler/storefront-edge/pkg/migration"
	"github.com/Sternrassler/storefront-edge/pkg/region"
	"github.com/Sternrassler/storefront-edge/pkg/session"
)

// Config is the storefront edge configuration.
type Config struct {
	Addr       string
	Production bool

	StoreHash        string
	StorefrontToken  string
	DefaultChannelID string
	GraphQLDomain    string

	// Revalidate is the anonymous cache revalidation interval.
	Revalidate time.Duration

	// RedisURL enables the shared cache, rate-limit state and durable migration markers.
	RedisURL string

	CustomerTokenCookie string
	CacheForCustomer    bool

	MigrationTimeout time.Duration
	UpstreamTimeout  time.Duration

	// WebhookSecret enables POST /api/revalidate.
	WebhookSecret string

	// RegionsFile points to a YAML region table; empty uses the built-in table.
	RegionsFile string

	LogLevel  string
	LogPretty bool
}

// Getenv looks up a variable; os.Getenv in production, a map in tests.
type Getenv func(key string) string

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return FromEnv(os.Getenv)
}

// FromEnv reads the configuration through getenv.
func FromEnv(getenv Getenv) (Config, error) {
	var errs []error

	duration := func(key string, def time.Duration) time.Duration {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return def
		}
		d, err := parseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return def
		}
		return d
	}
	boolean := func(key string) bool {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return false
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return b
	}

	cfg := Config{
		Addr:                withDefault(getenv("STOREFRONT_ADDR"), ":8080"),
		Production:          getenv("APP_ENV") == "production",
		StoreHash:           strings.TrimSpace(getenv("BIGCOMMERCE_STORE_HASH")),
		StorefrontToken:     strings.TrimSpace(getenv("BIGCOMMERCE_STOREFRONT_TOKEN")),
		DefaultChannelID:    strings.TrimSpace(getenv("BIGCOMMERCE_CHANNEL_ID")),
		GraphQLDomain:       withDefault(getenv("BIGCOMMERCE_GRAPHQL_DOMAIN"), "mybigcommerce.com"),
		Revalidate:          duration("DEFAULT_REVALIDATE_TARGET", cache.DefaultRevalidate),
		RedisURL:            strings.TrimSpace(getenv("REDIS_URL")),
		CustomerTokenCookie: withDefault(getenv("CUSTOMER_TOKEN_COOKIE"), session.DefaultCustomerTokenCookie),
		CacheForCustomer:    boolean("CACHE_FOR_CUSTOMER"),
		MigrationTimeout:    duration("CART_MIGRATION_TIMEOUT", migration.DefaultTimeout),
		UpstreamTimeout:     duration("UPSTREAM_TIMEOUT", 10*time.Second),
		WebhookSecret:       getenv("REVALIDATE_WEBHOOK_SECRET"),
		RegionsFile:         strings.TrimSpace(getenv("REGIONS_FILE")),
		LogLevel:            withDefault(getenv("LOG_LEVEL"), "info"),
		LogPretty:           boolean("LOG_PRETTY"),
	}

	if cfg.StoreHash == "" {
		errs = append(errs, errors.New("BIGCOMMERCE_STORE_HASH is required"))
	}
	if cfg.StorefrontToken == "" {
		errs = append(errs, errors.New("BIGCOMMERCE_STOREFRONT_TOKEN is required"))
	}
	if cfg.Production && cfg.WebhookSecret == "" {
		errs = append(errs, errors.New("REVALIDATE_WEBHOOK_SECRET is required in production"))
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Regions builds the region registry from RegionsFile, or the built-in table.
// DefaultChannelID falls back to the default region's channel when unset.
func (c *Config) Regions() (*region.Registry, error) {
	var (
		reg *region.Registry
		err error
	)
	if c.RegionsFile != "" {
		reg, err = region.LoadFile(c.RegionsFile)
	} else {
		reg, err = region.NewRegistry(region.Defaults())
	}
	if err != nil {
		return nil, err
	}
	if c.DefaultChannelID == "" {
		c.DefaultChannelID = reg.Default().ChannelID
	}
	return reg, nil
}

func withDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}

// parseDuration accepts Go durations and bare seconds ("3600").
func parseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("must be positive, got %d", secs)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", v)
	}
	return d, nil
}
