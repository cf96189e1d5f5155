package session

import (
	"net/http"
	"strings"
)

// DefaultCustomerTokenCookie is where the auth layer leaves the customer access token.
const DefaultCustomerTokenCookie = "customerAccessToken"

// CustomerTokenResolver returns the customer access token of the requesting shopper, or an
// empty string for guests. Implementations must derive the token from r alone.
type CustomerTokenResolver interface {
	CustomerAccessToken(r *http.Request) string
}

// CookieTokenResolver reads the token from a cookie set by the auth layer.
type CookieTokenResolver struct {
	Name string
}

// CustomerAccessToken implements CustomerTokenResolver.
func (c CookieTokenResolver) CustomerAccessToken(r *http.Request) string {
	name := c.Name
	if name == "" {
		name = DefaultCustomerTokenCookie
	}
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}
