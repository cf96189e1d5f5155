package storefront

import (
	"context"
	"net/http"

	"github.com/Sternrassler/storefront-edge/pkg/logging"
	"github.com/Sternrassler/storefront-edge/pkg/region"
	"github.com/Sternrassler/storefront-edge/pkg/session"
)

type shopperKey struct{}

// Shopper is the per-request view of the browsing shopper.
type Shopper struct {
	Session *session.Store
	Region  region.Region

	// Fallback is true when the stored region was missing or unknown.
	Fallback bool

	// CustomerToken is empty for guests.
	CustomerToken string
}

// WithShopper returns a context carrying s.
func WithShopper(ctx context.Context, s *Shopper) context.Context {
	return context.WithValue(ctx, shopperKey{}, s)
}

// ShopperFrom returns the shopper stored in ctx.
func ShopperFrom(ctx context.Context) (*Shopper, bool) {
	s, ok := ctx.Value(shopperKey{}).(*Shopper)
	return s, ok && s != nil
}

func mustShopper(ctx context.Context) *Shopper {
	s, ok := ShopperFrom(ctx)
	if !ok {
		panic("storefront: handler mounted without shopper middleware")
	}
	return s
}

// shopperContext resolves region, channel and identity for every shopper request and
// finishes a pending cart migration for the current channel.
func (s *Server) shopperContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		store := s.cfg.Cookies.Store(w, r)
		res := s.cfg.Regions.Lookup(store.RegionID())

		shopper := &Shopper{
			Session:       store,
			Region:        res.Region,
			Fallback:      res.IsFallback(),
			CustomerToken: s.cfg.Tokens.CustomerAccessToken(r),
		}

		if res.Outcome == region.FallbackUnknown {
			s.logger.Debug().Str(logging.FieldRegion, store.RegionID()).Msg("Unknown region cookie, using default")
		}

		if _, pending := store.MigrationMarker(); pending && s.cfg.Migrator != nil {
			resumed := s.cfg.Migrator.Resume(r.Context(), store, shopper.Region.ChannelID)
			if resumed.Err != nil {
				s.logger.Warn().Err(resumed.Err).Msg("Pending cart migration could not be resumed")
			}
		}

		next.ServeHTTP(w, r.WithContext(WithShopper(r.Context(), shopper)))
	})
}
