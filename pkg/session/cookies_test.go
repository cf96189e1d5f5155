package session

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	var found *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			found = c
		}
	}
	require.NotNil(t, found, "cookie %s not set", name)
	return found
}

func TestStore_CartID_Absent(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	s := NewCookies(false).Store(rec, req)

	_, ok := s.CartID()
	assert.False(t, ok)
}

func TestStore_CartID_FromRequest(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CartCookie, Value: "cart-1"})
	s := NewCookies(false).Store(rec, req)

	id, ok := s.CartID()
	assert.True(t, ok)
	assert.Equal(t, "cart-1", id)
}

func TestStore_SetCartID_Attributes(t *testing.T) {
	tests := []struct {
		name       string
		production bool
	}{
		{name: "production", production: true},
		{name: "development", production: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			s := NewCookies(tt.production).Store(rec, req)

			s.SetCartID("cart-2")

			c := findCookie(t, rec, CartCookie)
			assert.Equal(t, "cart-2", c.Value)
			assert.Equal(t, "/", c.Path)
			assert.True(t, c.HttpOnly)
			assert.Equal(t, tt.production, c.Secure)
			assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
			assert.Zero(t, c.MaxAge, "cart binding is session-scoped")

			id, ok := s.CartID()
			assert.True(t, ok)
			assert.Equal(t, "cart-2", id)
		})
	}
}

func TestStore_ClearCartID(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CartCookie, Value: "cart-1"})
	s := NewCookies(true).Store(rec, req)

	s.ClearCartID()

	_, ok := s.CartID()
	assert.False(t, ok, "cleared binding must not fall back to the request cookie")

	c := findCookie(t, rec, CartCookie)
	assert.Equal(t, "", c.Value)
	assert.Less(t, c.MaxAge, 0)

	// Rebinding after a clear is visible again
	s.SetCartID("cart-3")
	id, ok := s.CartID()
	assert.True(t, ok)
	assert.Equal(t, "cart-3", id)
}

func TestStore_Region(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	s := NewCookies(true).Store(rec, req)

	assert.Equal(t, "", s.RegionID())

	s.SetRegionID("eu")
	assert.Equal(t, "eu", s.RegionID())

	c := findCookie(t, rec, RegionCookie)
	assert.Equal(t, int(RegionMaxAge.Seconds()), c.MaxAge)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
}

func TestStore_MigrationMarker(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	s := NewCookies(false).Store(rec, req)

	_, ok := s.MigrationMarker()
	assert.False(t, ok)

	s.SetMigrationMarker("m-1")
	id, ok := s.MigrationMarker()
	assert.True(t, ok)
	assert.Equal(t, "m-1", id)

	s.ClearMigrationMarker()
	_, ok = s.MigrationMarker()
	assert.False(t, ok)
}

func TestCookieTokenResolver(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", CookieTokenResolver{}.CustomerAccessToken(req))

	req.AddCookie(&http.Cookie{Name: DefaultCustomerTokenCookie, Value: " tok "})
	assert.Equal(t, "tok", CookieTokenResolver{}.CustomerAccessToken(req))

	custom := httptest.NewRequest(http.MethodGet, "/", nil)
	custom.AddCookie(&http.Cookie{Name: "auth", Value: "abc"})
	assert.Equal(t, "abc", CookieTokenResolver{Name: "auth"}.CustomerAccessToken(custom))
}
