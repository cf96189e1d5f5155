// Package client provides the commerce storefront GraphQL client with per-channel routing,
// rate limiting, tag-aware caching, and error handling.
package client

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/storefront-edge/pkg/cache"
	"github.com/Sternrassler/storefront-edge/pkg/logging"
	"github.com/Sternrassler/storefront-edge/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// Prometheus metrics for upstream client operations.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_upstream_requests_total",
		Help: "Total commerce API requests by operation and status",
	}, []string{"operation", "status"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_upstream_request_duration_seconds",
		Help:    "Commerce API request duration in seconds by operation",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"operation"})

	upstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_upstream_errors_total",
		Help: "Total commerce API errors by class",
	}, []string{"class"})
)

// Header carrying the shopper's customer access token.
const HeaderCustomerToken = "X-Bc-Customer-Access-Token"

const (
	defaultDomain  = "mybigcommerce.com"
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 8 << 20
)

var tracer = otel.Tracer("github.com/Sternrassler/storefront-edge/pkg/client")

// Config holds the client configuration.
type Config struct {
	// StoreHash identifies the store on the commerce platform (REQUIRED)
	StoreHash string

	// StorefrontToken authorizes storefront API calls (REQUIRED)
	StorefrontToken string

	// DefaultChannelID is used for requests without a channel (default "1")
	DefaultChannelID string

	// Domain is the GraphQL host suffix (default "mybigcommerce.com")
	Domain string

	// Scheme of the GraphQL endpoint (default "https")
	Scheme string

	// Timeout bounds a single HTTP attempt (default 10s)
	Timeout time.Duration

	// UserAgent sent with every request
	UserAgent string

	// Cache enables the shared read-through cache for public policies (optional)
	Cache *cache.Manager

	// RateLimiter gates requests on the shared upstream budget (optional)
	RateLimiter *ratelimit.Tracker

	// RetryPolicy selects backoff per error class (default RetryConfigForErrorClass)
	RetryPolicy RetryPolicy

	// HTTPClient overrides the transport (optional)
	HTTPClient *http.Client
}

// Client is the commerce storefront API client.
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	group       singleflight.Group
	config      Config
	logger      zerolog.Logger
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.StoreHash == "" {
		return nil, fmt.Errorf("store hash is required")
	}
	if cfg.StorefrontToken == "" {
		return nil, fmt.Errorf("storefront token is required")
	}
	if cfg.DefaultChannelID == "" {
		cfg.DefaultChannelID = "1"
	}
	if cfg.Domain == "" {
		cfg.Domain = defaultDomain
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "https"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryPolicy == nil {
		cfg.RetryPolicy = RetryConfigForErrorClass
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		httpClient:  httpClient,
		rateLimiter: cfg.RateLimiter,
		cache:       cfg.Cache,
		config:      cfg,
		logger:      logging.NewLogger("commerce-client"),
	}, nil
}

// Endpoint returns the GraphQL URL serving channelID. Every channel, the default one
// included, has its own channel-suffixed host; the bare store host only serves the
// store's base channel.
func (c *Client) Endpoint(channelID string) string {
	if channelID == "" {
		channelID = c.config.DefaultChannelID
	}
	return fmt.Sprintf("%s://store-%s-%s.%s/graphql", c.config.Scheme, c.config.StoreHash, channelID, c.config.Domain)
}

// Request is one GraphQL operation against a channel.
type Request struct {
	// Operation names the request for metrics and cache keys
	Operation string

	// Document is the GraphQL query or mutation
	Document string

	// Variables of the document
	Variables map[string]any

	// ChannelID selects the channel endpoint (empty means the default channel)
	ChannelID string

	// CustomerToken is the shopper's access token, empty for guests
	CustomerToken string

	// Mutation marks a non-idempotent request. It is not retried after a failure the
	// upstream may already have acted on.
	Mutation bool
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// Fetch executes req and returns the GraphQL data object.
// The policy is resolved against req.CustomerToken on every call. Cacheable results are
// read through the shared cache and concurrent misses for the same key are collapsed;
// everything else goes straight upstream.
func (c *Client) Fetch(ctx context.Context, req Request, policy cache.Policy) (json.RawMessage, error) {
	resolved := policy.Resolve(req.CustomerToken)
	if c.cache == nil || !resolved.Cacheable() {
		return c.execute(ctx, req)
	}

	key, err := cacheKey(req, resolved)
	if err != nil {
		return nil, err
	}

	entry, err := c.cache.Get(ctx, key)
	if err == nil {
		c.logger.Debug().Str(logging.FieldOperation, req.Operation).Str("key", key.String()).Msg("Cache hit")
		return entry.Data, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn().Err(err).Str(logging.FieldOperation, req.Operation).Msg("Cache get error")
	}

	// The shared fetch outlives any single waiter's cancellation
	ch := c.group.DoChan(key.String(), func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.sharedFetchTimeout())
		defer cancel()

		data, err := c.execute(fetchCtx, req)
		if err != nil {
			return nil, err
		}
		if err := c.cache.Set(fetchCtx, key, cache.NewEntry(data, resolved)); err != nil {
			c.logger.Warn().Err(err).Str(logging.FieldOperation, req.Operation).Msg("Failed to cache response")
		}
		return data, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.logger.Debug().Str(logging.FieldOperation, req.Operation).Msg("Shared in-flight upstream response")
		}
		return res.Val.(json.RawMessage), nil
	}
}

// sharedFetchTimeout bounds a collapsed fetch: every attempt the retry policy allows for
// server errors, plus their backoff.
func (c *Client) sharedFetchTimeout() time.Duration {
	rc := c.config.RetryPolicy(ErrorClassServer)
	attempts := max(rc.MaxAttempts, 1)
	return time.Duration(attempts)*c.config.Timeout + time.Duration(attempts)*rc.MaxBackoff
}

func cacheKey(req Request, policy cache.Policy) (cache.CacheKey, error) {
	vars, err := json.Marshal(req.Variables)
	if err != nil {
		return cache.CacheKey{}, fmt.Errorf("marshal variables: %w", err)
	}
	sum := sha256.Sum256(append([]byte(req.Document+"\x00"), vars...))

	return cache.CacheKey{
		Operation: req.Operation,
		ChannelID: req.ChannelID,
		Params:    map[string]string{"q": hex.EncodeToString(sum[:8])},
		Customer:  policy.VaryBy,
	}, nil
}

// execute performs the request upstream with rate limiting and retries.
func (c *Client) execute(ctx context.Context, req Request) (json.RawMessage, error) {
	ctx, span := tracer.Start(ctx, "commerce."+req.Operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("commerce.operation", req.Operation),
			attribute.String("commerce.channel_id", req.ChannelID),
		))
	defer span.End()

	startTime := time.Now()
	defer func() {
		upstreamRequestDuration.WithLabelValues(req.Operation).Observe(time.Since(startTime).Seconds())
	}()

	if c.rateLimiter != nil {
		allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
		if err != nil {
			c.logger.Error().Err(err).Msg("Rate limit check failed")
			span.RecordError(err)
			return nil, fmt.Errorf("rate limit check: %w", err)
		}
		if !allowed {
			c.logger.Warn().Str(logging.FieldOperation, req.Operation).Msg("Request blocked by rate limiter")
			upstreamRequestsTotal.WithLabelValues(req.Operation, "rate_limited").Inc()
			span.SetStatus(codes.Error, ErrRateLimited.Error())
			return nil, ErrRateLimited
		}
	}

	body, err := json.Marshal(map[string]any{
		"query":     req.Document,
		"variables": req.Variables,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	policy := c.config.RetryPolicy
	if req.Mutation {
		policy = mutationRetryPolicy(policy)
	}

	var data json.RawMessage
	err = retryWithBackoff(ctx, policy, func() error {
		var attemptErr error
		data, attemptErr = c.attempt(ctx, req, body)
		return attemptErr
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return data, nil
}

// attempt performs a single HTTP round trip.
func (c *Client) attempt(ctx context.Context, req Request, body []byte) (json.RawMessage, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(req.ChannelID), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.StorefrontToken)
	if c.config.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.config.UserAgent)
	}
	if req.CustomerToken != "" {
		httpReq.Header.Set(HeaderCustomerToken, req.CustomerToken)
	}

	c.logger.Debug().
		Str(logging.FieldOperation, req.Operation).
		Str(logging.FieldChannel, req.ChannelID).
		Msg("Executing commerce request")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error().Err(err).Str(logging.FieldOperation, req.Operation).Msg("HTTP request failed")
		upstreamErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		upstreamRequestsTotal.WithLabelValues(req.Operation, "network_error").Inc()
		return nil, &UpstreamError{
			Operation:  req.Operation,
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	if c.rateLimiter != nil {
		if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}
	}

	upstreamRequestsTotal.WithLabelValues(req.Operation, strconv.Itoa(resp.StatusCode)).Inc()

	if class := classifyStatus(resp.StatusCode); class != "" {
		upstreamErrorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Str(logging.FieldOperation, req.Operation).
			Int(logging.FieldStatus, resp.StatusCode).
			Str(logging.FieldErrorClass, string(class)).
			Msg("Commerce request error")
		return nil, &UpstreamError{
			Operation:  req.Operation,
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Message:    resp.Status,
		}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		upstreamErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &UpstreamError{
			Operation:  req.Operation,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read body",
			Err:        err,
		}
	}

	var gqlResp graphQLResponse
	if err := json.Unmarshal(raw, &gqlResp); err != nil {
		upstreamErrorsTotal.WithLabelValues(string(ErrorClassServer)).Inc()
		return nil, &UpstreamError{
			Operation:  req.Operation,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassServer,
			Message:    "malformed response body",
			Err:        err,
		}
	}
	if len(gqlResp.Errors) > 0 {
		upstreamErrorsTotal.WithLabelValues(string(ErrorClassGraphQL)).Inc()
		return nil, &UpstreamError{
			Operation:  req.Operation,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassGraphQL,
			Message:    joinGraphQLErrors(gqlResp.Errors),
		}
	}

	return gqlResp.Data, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
