// Package migration moves a shopper's cart to another sales channel when the region changes.
//
// A migration reads the bound cart from the old channel, drafts its lines into a
// channel-agnostic form, clears the old binding, creates a cart in the new channel and binds
// the session to it. The session never ends up bound to a cart of the old channel: every
// failure after the read leaves the shopper cartless instead. Failures are logged and
// reported in the Result, never returned as errors.
package migration

import (
	"context"
	"errors"
	"time"

	"github.com/Sternrassler/storefront-edge/pkg/client"
	"github.com/Sternrassler/storefront-edge/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	migrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_cart_migrations_total",
		Help: "Cart migrations by operation and terminal state",
	}, []string{"operation", "state"})

	migrationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "storefront_cart_migration_duration_seconds",
		Help:    "Cart migration duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	migrationSkippedItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_cart_migration_skipped_items_total",
		Help: "Cart lines left out of a migration by reason",
	}, []string{"reason"})
)

var tracer = otel.Tracer("github.com/Sternrassler/storefront-edge/pkg/migration")

// DefaultTimeout bounds one migration including every upstream call.
const DefaultTimeout = 10 * time.Second

// State is a step of the migration protocol.
type State int

const (
	StateIdle State = iota
	StateReading
	StateDraining
	StateRecreating
	StateRebound
	StateNoOp
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReading:
		return "reading"
	case StateDraining:
		return "draining"
	case StateRecreating:
		return "recreating"
	case StateRebound:
		return "rebound"
	case StateNoOp:
		return "noop"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends a migration.
func (s State) Terminal() bool {
	return s == StateRebound || s == StateNoOp || s == StateFailed
}

// CartAPI is the upstream cart service.
type CartAPI interface {
	GetCart(ctx context.Context, channelID, cartID string) (*client.Cart, error)
	CreateCart(ctx context.Context, channelID string, items []client.CartLineItemInput) (string, error)
}

// Session is the shopper's cart binding and pending migration marker.
type Session interface {
	CartID() (string, bool)
	SetCartID(cartID string)
	ClearCartID()
	MigrationMarker() (string, bool)
	SetMigrationMarker(id string)
	ClearMigrationMarker()
}

// Result describes how a migration ended.
type Result struct {
	State State

	// Path lists every state entered, starting with StateIdle.
	Path []State

	OldCartID string
	NewCartID string

	// Drafted is the number of lines sent to the new cart.
	Drafted int
	Skipped []SkippedItem

	// DroppedSelections counts bare option selections that could not be sent.
	DroppedSelections int

	// MarkerID is set while a failed create can still be resumed.
	MarkerID string

	// Err is the absorbed failure of a StateFailed result.
	Err error
}

// Succeeded reports whether the migration ended without failure.
func (r Result) Succeeded() bool {
	return r.State == StateRebound || r.State == StateNoOp
}

// Config holds orchestrator dependencies.
type Config struct {
	// Carts is the upstream cart service (REQUIRED)
	Carts CartAPI

	// Markers persists pending migrations (default in-memory)
	Markers MarkerStore

	// Timeout bounds one migration (default DefaultTimeout)
	Timeout time.Duration

	Logger *zerolog.Logger
}

// Orchestrator runs cart migrations.
type Orchestrator struct {
	carts   CartAPI
	markers MarkerStore
	timeout time.Duration
	logger  zerolog.Logger
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Carts == nil {
		panic("migration: cart API cannot be nil")
	}
	o := &Orchestrator{
		carts:   cfg.Carts,
		markers: cfg.Markers,
		timeout: cfg.Timeout,
	}
	if o.markers == nil {
		o.markers = NewMemoryMarkerStore(DefaultMarkerTTL)
	}
	if o.timeout <= 0 {
		o.timeout = DefaultTimeout
	}
	if cfg.Logger != nil {
		o.logger = *cfg.Logger
	} else {
		o.logger = logging.NewLogger("cart-migration")
	}
	return o
}

type run struct {
	res Result
}

func (r *run) enter(s State) {
	r.res.State = s
	r.res.Path = append(r.res.Path, s)
}

func (r *run) fail(err error) {
	r.res.Err = err
	r.enter(StateFailed)
}

// Migrate moves the session's cart from fromChannelID to toChannelID.
// It always returns a terminal Result and never leaves the session bound to a cart of
// fromChannelID when the channels differ.
func (o *Orchestrator) Migrate(ctx context.Context, sess Session, fromChannelID, toChannelID string) Result {
	start := time.Now()
	r := &run{}
	r.enter(StateIdle)

	ctx, span := tracer.Start(ctx, "cart.migrate")
	defer span.End()
	span.SetAttributes(
		attribute.String("cart.from_channel", fromChannelID),
		attribute.String("cart.to_channel", toChannelID),
	)

	defer func() {
		migrationsTotal.WithLabelValues("migrate", r.res.State.String()).Inc()
		migrationDuration.Observe(time.Since(start).Seconds())
		span.SetAttributes(attribute.String("cart.migration_state", r.res.State.String()))
		if r.res.Err != nil {
			span.RecordError(r.res.Err)
			span.SetStatus(codes.Error, r.res.Err.Error())
		}
	}()

	r.enter(StateReading)
	cartID, ok := sess.CartID()
	if !ok {
		r.enter(StateNoOp)
		o.logger.Debug().Str("to_channel", toChannelID).Msg("No cart bound, nothing to migrate")
		return r.res
	}
	r.res.OldCartID = cartID

	if fromChannelID == toChannelID {
		r.enter(StateNoOp)
		o.logger.Debug().Str(logging.FieldCartID, cartID).Str(logging.FieldChannel, toChannelID).Msg("Channel unchanged, cart kept")
		return r.res
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	cart, err := o.carts.GetCart(ctx, fromChannelID, cartID)
	if err == nil && cart == nil {
		err = client.ErrCartNotFound
	}
	if err != nil {
		sess.ClearCartID()
		r.fail(err)
		o.logger.Warn().Err(err).
			Str(logging.FieldCartID, cartID).
			Str("from_channel", fromChannelID).
			Msg("Cart read failed, stale binding cleared")
		return r.res
	}

	r.enter(StateDraining)
	drafts, skipped := BuildDrafts(cart)
	r.res.Skipped = skipped
	for _, s := range skipped {
		migrationSkippedItems.WithLabelValues(string(s.Reason)).Inc()
		o.logger.Warn().
			Str(logging.FieldCartID, cartID).
			Str("line_item_id", s.LineItemID).
			Str("reason", string(s.Reason)).
			Msg("Line item skipped during migration")
	}

	if len(drafts) == 0 {
		sess.ClearCartID()
		r.enter(StateNoOp)
		o.logger.Info().
			Str(logging.FieldCartID, cartID).
			Int("skipped", len(skipped)).
			Msg("Cart had no migratable items, binding cleared")
		return r.res
	}

	r.enter(StateRecreating)
	items, dropped := ToInputs(drafts)
	r.res.Drafted = len(items)
	r.res.DroppedSelections = dropped
	if dropped > 0 {
		o.logger.Debug().Int("dropped_selections", dropped).Msg("Bare option selections dropped")
	}

	marker := NewMarker(cartID, fromChannelID, toChannelID, items)
	markerSaved := true
	if err := o.markers.Save(ctx, marker); err != nil {
		markerSaved = false
		o.logger.Warn().Err(err).Msg("Failed to save migration marker, continuing without recovery")
	} else {
		sess.SetMigrationMarker(marker.ID)
	}

	// The old binding goes first so no request sees an old-channel cart during the create
	sess.ClearCartID()

	newCartID, err := o.carts.CreateCart(ctx, toChannelID, items)
	if err != nil {
		r.fail(err)
		if markerSaved {
			r.res.MarkerID = marker.ID
		}
		o.logger.Warn().Err(err).
			Str("old_cart_id", cartID).
			Str("to_channel", toChannelID).
			Bool("resumable", markerSaved).
			Msg("Cart create failed, shopper left without cart")
		return r.res
	}

	sess.SetCartID(newCartID)
	r.res.NewCartID = newCartID
	r.enter(StateRebound)
	o.forget(ctx, sess, marker.ID, markerSaved)

	o.logger.Info().
		Str("old_cart_id", cartID).
		Str("new_cart_id", newCartID).
		Str("from_channel", fromChannelID).
		Str("to_channel", toChannelID).
		Int("items", len(items)).
		Int("skipped", len(skipped)).
		Msg("Cart migrated")
	return r.res
}

// Resume finishes a migration whose create failed or was interrupted. It re-issues the
// create once when the marker targets currentChannelID and the session is still cartless;
// otherwise the marker is stale and is discarded. The marker is gone afterwards either way.
func (o *Orchestrator) Resume(ctx context.Context, sess Session, currentChannelID string) Result {
	start := time.Now()
	r := &run{}
	r.enter(StateIdle)

	defer func() {
		migrationsTotal.WithLabelValues("resume", r.res.State.String()).Inc()
		migrationDuration.Observe(time.Since(start).Seconds())
	}()

	markerID, ok := sess.MigrationMarker()
	if !ok {
		r.enter(StateNoOp)
		return r.res
	}

	ctx, span := tracer.Start(ctx, "cart.resume_migration")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	r.enter(StateReading)
	marker, err := o.markers.Load(ctx, markerID)
	if err != nil {
		sess.ClearMigrationMarker()
		r.enter(StateNoOp)
		if !errors.Is(err, ErrMarkerNotFound) {
			o.logger.Warn().Err(err).Str(logging.FieldMarkerID, markerID).Msg("Failed to load migration marker")
		}
		return r.res
	}
	r.res.OldCartID = marker.FromCartID

	if _, bound := sess.CartID(); bound || marker.TargetChannelID != currentChannelID {
		o.forget(ctx, sess, markerID, true)
		r.enter(StateNoOp)
		o.logger.Debug().
			Str(logging.FieldMarkerID, markerID).
			Bool("cart_bound", bound).
			Str("target_channel", marker.TargetChannelID).
			Str("current_channel", currentChannelID).
			Msg("Stale migration marker discarded")
		return r.res
	}

	r.enter(StateRecreating)
	r.res.Drafted = len(marker.Items)

	newCartID, err := o.carts.CreateCart(ctx, marker.TargetChannelID, marker.Items)
	o.forget(ctx, sess, markerID, true)
	if err != nil {
		r.fail(err)
		span.RecordError(err)
		o.logger.Warn().Err(err).Str(logging.FieldMarkerID, markerID).Msg("Resumed cart create failed, marker dropped")
		return r.res
	}

	sess.SetCartID(newCartID)
	r.res.NewCartID = newCartID
	r.enter(StateRebound)
	o.logger.Info().
		Str(logging.FieldMarkerID, markerID).
		Str("new_cart_id", newCartID).
		Str(logging.FieldChannel, currentChannelID).
		Msg("Pending cart migration resumed")
	return r.res
}

func (o *Orchestrator) forget(ctx context.Context, sess Session, markerID string, stored bool) {
	sess.ClearMigrationMarker()
	if !stored {
		return
	}
	if err := o.markers.Delete(ctx, markerID); err != nil {
		o.logger.Warn().Err(err).Str(logging.FieldMarkerID, markerID).Msg("Failed to delete migration marker")
	}
}
