package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/storefront-edge/pkg/cache"
	"github.com/Sternrassler/storefront-edge/pkg/client"
	"github.com/Sternrassler/storefront-edge/pkg/logging"
	"github.com/Sternrassler/storefront-edge/pkg/metrics"
	"github.com/Sternrassler/storefront-edge/pkg/region"
	"github.com/Sternrassler/storefront-edge/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "storefront_http_request_duration_seconds",
	Help:    "Storefront HTTP request duration by route and status",
	Buckets: prometheus.DefBuckets,
}, []string{"route", "method", "status"})

// Catalog is the upstream data the edge serves.
type Catalog interface {
	GetCart(ctx context.Context, channelID, cartID string) (*client.Cart, error)
	GetProduct(ctx context.Context, channelID string, productID int64, customerToken string, policy cache.Policy) (*client.Product, error)
	GetCategory(ctx context.Context, channelID string, categoryID int64, customerToken string, policy cache.Policy) (*client.Category, error)
	GetCustomerGroup(ctx context.Context, channelID, customerToken string) (*client.CustomerGroup, error)
}

// Invalidator drops cached responses by tag.
type Invalidator interface {
	InvalidateTags(ctx context.Context, tags ...string) (int, error)
}

// Pinger reports backend readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds server dependencies.
type Config struct {
	Regions  *region.Registry
	Deriver  *cache.Deriver
	Selector *cache.Selector
	Cookies  *session.Cookies
	Tokens   session.CustomerTokenResolver
	Catalog  Catalog
	Switcher *Switcher

	// Migrator resumes pending migrations (optional)
	Migrator Migrator

	// Invalidator backs the revalidation webhook (optional)
	Invalidator Invalidator

	// Pinger backs /ready (optional)
	Pinger Pinger

	// WebhookSecret authenticates /api/revalidate; empty disables the webhook
	WebhookSecret string

	// CacheForCustomer lets identified shoppers' catalog reads be cached per customer
	CacheForCustomer bool

	// RequestTimeout bounds each request (default 30s)
	RequestTimeout time.Duration

	Logger zerolog.Logger
}

// Server serves the storefront edge API.
type Server struct {
	cfg    Config
	logger zerolog.Logger
}

// NewServer creates a server.
func NewServer(cfg Config) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.Tokens == nil {
		cfg.Tokens = session.CookieTokenResolver{}
	}
	return &Server{cfg: cfg, logger: cfg.Logger}
}

// Routes builds the router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", metrics.Handler())

	r.Post("/api/revalidate", s.handleRevalidate)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))
		r.Use(s.shopperContext)

		r.Post("/region", s.handleSwitchRegion)
		r.Get("/api/region", s.handleGetRegion)
		r.Get("/api/cart", s.handleGetCart)
		r.Get("/api/products/{id}", s.handleGetProduct)
		r.Get("/api/categories/{id}", s.handleGetCategory)
		r.Get("/api/customer/group", s.handleGetCustomerGroup)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequestDuration.WithLabelValues(route, r.Method, strconv.Itoa(status)).Observe(time.Since(start).Seconds())

		s.logger.Debug().
			Str(logging.FieldRequestID, middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("route", route).
			Int(logging.FieldStatus, status).
			Dur("duration", time.Since(start)).
			Msg("Request served")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.cfg.Pinger.Ping(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Readiness check failed")
			http.Error(w, "NOT READY", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("READY"))
}

func (s *Server) handleSwitchRegion(w http.ResponseWriter, r *http.Request) {
	shopper := mustShopper(r.Context())

	res, err := s.cfg.Switcher.SwitchRegion(r.Context(), shopper.Session, r.FormValue("region"))
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "region switch failed")
		return
	}

	w.Header().Set("X-Cart-Migration", res.State.String())
	http.Redirect(w, r, safeRedirect(r), http.StatusSeeOther)
}

// safeRedirect returns the path of a same-host Referer, or "/".
func safeRedirect(r *http.Request) string {
	ref, err := url.Parse(r.Referer())
	if err != nil || ref.Path == "" || (ref.Host != "" && ref.Host != r.Host) {
		return "/"
	}
	if ref.RawQuery != "" {
		return ref.Path + "?" + ref.RawQuery
	}
	return ref.Path
}

type regionView struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Label     string `json:"label"`
	Fallback  bool   `json:"fallback"`
}

func (s *Server) handleGetRegion(w http.ResponseWriter, r *http.Request) {
	shopper := mustShopper(r.Context())
	cache.WriteHeaders(w.Header(), s.cfg.Selector.DoNotCache(nil))
	writeJSON(w, http.StatusOK, regionView{
		ID:        shopper.Region.ID,
		ChannelID: shopper.Region.ChannelID,
		Label:     shopper.Region.Label,
		Fallback:  shopper.Fallback,
	})
}

func (s *Server) handleGetCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shopper := mustShopper(ctx)

	cartID, ok := shopper.Session.CartID()
	tags := s.cfg.Deriver.Tags(cache.TagInput{ChannelID: shopper.Region.ChannelID, EntityType: cache.EntityCart, EntityID: cartID})
	cache.WriteHeaders(w.Header(), s.cfg.Selector.DoNotCache(tags))

	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"cart": nil})
		return
	}

	cart, err := s.cfg.Catalog.GetCart(ctx, shopper.Region.ChannelID, cartID)
	if err != nil {
		if errors.Is(err, client.ErrCartNotFound) {
			shopper.Session.ClearCartID()
			writeJSON(w, http.StatusOK, map[string]any{"cart": nil})
			return
		}
		s.logger.Warn().Err(err).Str(logging.FieldCartID, cartID).Msg("Cart read failed")
		writeError(w, http.StatusBadGateway, "cart unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": cart})
}

func (s *Server) handleGetCustomerGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shopper := mustShopper(ctx)

	group, err := s.cfg.Catalog.GetCustomerGroup(ctx, shopper.Region.ChannelID, shopper.CustomerToken)
	if err != nil {
		cache.WriteHeaders(w.Header(), s.cfg.Selector.DoNotCache(nil))
		s.logger.Warn().Err(err).Msg("Customer group read failed")
		writeError(w, http.StatusBadGateway, "customer unavailable")
		return
	}

	in := cache.TagInput{ChannelID: shopper.Region.ChannelID, EntityType: cache.EntityCustomer}
	if group != nil {
		in.EntityID = strconv.FormatInt(group.EntityID, 10)
	}
	cache.WriteHeaders(w.Header(), s.cfg.Selector.DoNotCache(s.cfg.Deriver.Tags(in)))
	writeJSON(w, http.StatusOK, map[string]any{"customer": group})
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	s.serveEntity(w, r, cache.EntityProduct, func(ctx context.Context, sh *Shopper, id int64, p cache.Policy) (any, error) {
		return s.cfg.Catalog.GetProduct(ctx, sh.Region.ChannelID, id, sh.CustomerToken, p)
	})
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	s.serveEntity(w, r, cache.EntityCategory, func(ctx context.Context, sh *Shopper, id int64, p cache.Policy) (any, error) {
		return s.cfg.Catalog.GetCategory(ctx, sh.Region.ChannelID, id, sh.CustomerToken, p)
	})
}

type entityFetch func(ctx context.Context, shopper *Shopper, id int64, policy cache.Policy) (any, error)

// serveEntity reads one catalog entity under a shopper-conditional policy tagged with the
// entity and the request path.
func (s *Server) serveEntity(w http.ResponseWriter, r *http.Request, entityType cache.EntityType, fetch entityFetch) {
	ctx := r.Context()
	shopper := mustShopper(ctx)

	rawID := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+string(entityType)+" id")
		return
	}

	tags := s.cfg.Deriver.Tags(cache.TagInput{ChannelID: shopper.Region.ChannelID, EntityType: entityType, EntityID: rawID})
	tags = append(tags, cache.PathTags(r.URL.Path)...)
	policy := s.cfg.Selector.ShopperConditional(tags, s.cfg.CacheForCustomer)

	data, err := fetch(ctx, shopper, id, policy)
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			writeError(w, http.StatusNotFound, string(entityType)+" not found")
			return
		}
		s.logger.Warn().Err(err).Str("entity", string(entityType)).Int64("id", id).Msg("Catalog read failed")
		writeError(w, http.StatusBadGateway, "catalog unavailable")
		return
	}

	cache.WriteHeaders(w.Header(), policy.Resolve(shopper.CustomerToken))
	writeJSON(w, http.StatusOK, data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
