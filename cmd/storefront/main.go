package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/storefront-edge/internal/config"
	"github.com/Sternrassler/storefront-edge/pkg/cache"
	"github.com/Sternrassler/storefront-edge/pkg/client"
	"github.com/Sternrassler/storefront-edge/pkg/logging"
	"github.com/Sternrassler/storefront-edge/pkg/migration"
	"github.com/Sternrassler/storefront-edge/pkg/ratelimit"
	"github.com/Sternrassler/storefront-edge/pkg/session"
	"github.com/Sternrassler/storefront-edge/pkg/storefront"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const userAgent = "storefront-edge/0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logging.Setup(logging.Config{
		Level:   logging.LogLevel(cfg.LogLevel),
		Pretty:  cfg.LogPretty,
		Output:  os.Stderr,
		Service: "storefront",
	})

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = connectRedis(context.Background(), cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()
		log.Info().Msg("Connected to Redis")
	} else {
		log.Warn().Msg("REDIS_URL not set, running without shared cache and with in-process migration markers")
	}

	handler, err := buildHandler(&cfg, redisClient, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build server")
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", cfg.Addr).Str("store", cfg.StoreHash).Msg("Starting storefront edge")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	c := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return c, nil
}

// buildHandler wires the edge. redisClient may be nil; httpClient overrides the upstream
// transport when set.
func buildHandler(cfg *config.Config, redisClient *redis.Client, httpClient *http.Client) (http.Handler, error) {
	regions, err := cfg.Regions()
	if err != nil {
		return nil, fmt.Errorf("load regions: %w", err)
	}

	clientCfg := client.Config{
		StoreHash:        cfg.StoreHash,
		StorefrontToken:  cfg.StorefrontToken,
		DefaultChannelID: cfg.DefaultChannelID,
		Domain:           cfg.GraphQLDomain,
		Timeout:          cfg.UpstreamTimeout,
		UserAgent:        userAgent,
		RateLimiter:      ratelimit.NewTracker(redisClient, logging.NewLogger("rate-limit")),
		HTTPClient:       httpClient,
	}

	var (
		markers     migration.MarkerStore
		revalidator storefront.PathRevalidator
		invalidator storefront.Invalidator
		pinger      storefront.Pinger
	)
	if redisClient != nil {
		manager := cache.NewManager(redisClient)
		clientCfg.Cache = manager
		markers = migration.NewRedisMarkerStore(redisClient, migration.DefaultMarkerTTL)
		revalidator = manager
		invalidator = manager
		pinger = manager
	} else {
		markers = migration.NewMemoryMarkerStore(migration.DefaultMarkerTTL)
	}

	commerce, err := client.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create commerce client: %w", err)
	}

	migrationLogger := logging.NewLogger("cart-migration")
	orchestrator := migration.New(migration.Config{
		Carts:   commerce,
		Markers: markers,
		Timeout: cfg.MigrationTimeout,
		Logger:  &migrationLogger,
	})

	srv := storefront.NewServer(storefront.Config{
		Regions:          regions,
		Deriver:          cache.NewDeriver(cfg.StoreHash, cfg.DefaultChannelID),
		Selector:         cache.NewSelector(cfg.Revalidate),
		Cookies:          session.NewCookies(cfg.Production),
		Tokens:           session.CookieTokenResolver{Name: cfg.CustomerTokenCookie},
		Catalog:          commerce,
		Switcher:         storefront.NewSwitcher(regions, orchestrator, revalidator, logging.NewLogger("region-switch")),
		Migrator:         orchestrator,
		Invalidator:      invalidator,
		Pinger:           pinger,
		WebhookSecret:    cfg.WebhookSecret,
		CacheForCustomer: cfg.CacheForCustomer,
		Logger:           logging.NewLogger("storefront"),
	})
	return srv.Routes(), nil
}
