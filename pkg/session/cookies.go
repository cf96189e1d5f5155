// Package session persists per-browser shopper state in cookies: the cart binding, the
// selected region and the pending cart migration marker.
//
// A Store is bound to one request/response pair. Writes are visible to later reads on the
// same Store, so a handler that rebinds the cart sees the new id immediately. A Store is not
// safe for concurrent use.
package session

import (
	"net/http"
	"time"
)

// Cookie names.
const (
	CartCookie      = "cartId"
	RegionCookie    = "region"
	MigrationCookie = "cartMigration"
)

// RegionMaxAge is how long a region preference is remembered.
const RegionMaxAge = 365 * 24 * time.Hour

// Cookies creates request-scoped stores with shared cookie attributes.
type Cookies struct {
	secure bool
}

// NewCookies returns a factory. Cookies are marked Secure only in production; insecure
// cookies are never issued when production is true.
func NewCookies(production bool) *Cookies {
	return &Cookies{secure: production}
}

// Store returns a store bound to w and r.
func (c *Cookies) Store(w http.ResponseWriter, r *http.Request) *Store {
	return &Store{
		w:       w,
		r:       r,
		secure:  c.secure,
		written: make(map[string]string),
		cleared: make(map[string]bool),
	}
}

// Store reads and writes shopper cookies for one request.
type Store struct {
	w      http.ResponseWriter
	r      *http.Request
	secure bool

	written map[string]string
	cleared map[string]bool
}

func (s *Store) get(name string) (string, bool) {
	if s.cleared[name] {
		return "", false
	}
	if v, ok := s.written[name]; ok {
		return v, true
	}
	c, err := s.r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func (s *Store) set(name, value string, maxAge time.Duration) {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge > 0 {
		cookie.MaxAge = int(maxAge.Seconds())
	}
	http.SetCookie(s.w, cookie)

	delete(s.cleared, name)
	s.written[name] = value
}

func (s *Store) clear(name string) {
	http.SetCookie(s.w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})

	delete(s.written, name)
	s.cleared[name] = true
}

// CartID returns the bound cart id, false when the shopper has no cart yet.
func (s *Store) CartID() (string, bool) {
	return s.get(CartCookie)
}

// SetCartID binds the session to cartID for the whole site. The binding lasts for the
// browser session.
func (s *Store) SetCartID(cartID string) {
	s.set(CartCookie, cartID, 0)
}

// ClearCartID removes the cart binding.
func (s *Store) ClearCartID() {
	s.clear(CartCookie)
}

// RegionID returns the stored region id, empty when none was chosen.
func (s *Store) RegionID() string {
	v, _ := s.get(RegionCookie)
	return v
}

// SetRegionID remembers the region preference for one year.
func (s *Store) SetRegionID(regionID string) {
	s.set(RegionCookie, regionID, RegionMaxAge)
}

// MigrationMarker returns the id of a pending cart migration, if any.
func (s *Store) MigrationMarker() (string, bool) {
	return s.get(MigrationCookie)
}

// SetMigrationMarker records a pending cart migration id.
func (s *Store) SetMigrationMarker(id string) {
	s.set(MigrationCookie, id, 24*time.Hour)
}

// ClearMigrationMarker removes the pending cart migration id.
func (s *Store) ClearMigrationMarker() {
	s.clear(MigrationCookie)
}
