// Package storefront is the HTTP edge of the storefront: region switching, shopper context,
// cached catalog reads and the cache revalidation webhook.
package storefront

import (
	"context"

	"github.com/Sternrassler/storefront-edge/pkg/logging"
	"github.com/Sternrassler/storefront-edge/pkg/migration"
	"github.com/Sternrassler/storefront-edge/pkg/region"
	"github.com/Sternrassler/storefront-edge/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var regionSwitchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "storefront_region_switches_total",
	Help: "Region switches by target region and cart migration outcome",
}, []string{"region", "migration_state"})

// Migrator moves carts between channels.
type Migrator interface {
	Migrate(ctx context.Context, sess migration.Session, fromChannelID, toChannelID string) migration.Result
	Resume(ctx context.Context, sess migration.Session, currentChannelID string) migration.Result
}

// PathRevalidator drops cached responses below a path.
type PathRevalidator interface {
	RevalidatePath(ctx context.Context, path string) (int, error)
}

// Switcher handles region switches.
type Switcher struct {
	regions     *region.Registry
	migrator    Migrator
	revalidator PathRevalidator
	logger      zerolog.Logger
}

// NewSwitcher creates a switcher. revalidator may be nil when no shared cache is configured.
func NewSwitcher(regions *region.Registry, migrator Migrator, revalidator PathRevalidator, logger zerolog.Logger) *Switcher {
	return &Switcher{
		regions:     regions,
		migrator:    migrator,
		revalidator: revalidator,
		logger:      logger,
	}
}

// SwitchRegion validates regionID, stores it, migrates the cart to the region's channel and
// revalidates the site root. Only an unknown region fails the switch; migration and
// revalidation problems are logged and reported in the returned result.
func (s *Switcher) SwitchRegion(ctx context.Context, sess *session.Store, regionID string) (migration.Result, error) {
	target, ok := s.regions.Strict(regionID)
	if !ok {
		s.logger.Warn().Str(logging.FieldRegion, regionID).Msg("Rejected switch to unknown region")
		return migration.Result{}, &ValidationError{Field: "region", Value: regionID, Err: ErrInvalidRegion}
	}

	fromChannel := s.regions.ChannelID(sess.RegionID())
	sess.SetRegionID(target.ID)

	res := s.migrator.Migrate(ctx, sess, fromChannel, target.ChannelID)
	regionSwitchesTotal.WithLabelValues(target.ID, res.State.String()).Inc()

	if s.revalidator != nil {
		if n, err := s.revalidator.RevalidatePath(ctx, "/"); err != nil {
			s.logger.Warn().Err(err).Msg("Root revalidation failed")
		} else {
			s.logger.Debug().Int("entries", n).Msg("Root revalidated")
		}
	}

	ev := s.logger.Info()
	if res.Err != nil {
		ev = s.logger.Warn().Err(res.Err)
	}
	ev.Str(logging.FieldRegion, target.ID).
		Str("from_channel", fromChannel).
		Str("to_channel", target.ChannelID).
		Str("migration_state", res.State.String()).
		Msg("Region switched")

	return res, nil
}
