package api

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Cookie names the server uses for the session.
const (
	AccessCookie  = "Authorization"
	RefreshCookie = "RefreshToken"
)

// ErrNoSession is returned when the jar holds no access cookie.
var ErrNoSession = errors.New("api: no session cookie")

// Claims are the access token claims the server signs.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Expired reports whether the token's exp is in the past relative to now.
func (c *Claims) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}

// ParseClaims decodes an access token without verifying its signature. The
// client cannot verify it (the key is server-side); the claims are only
// used for display.
func ParseClaims(token string) (*Claims, error) {
	claims := &Claims{}

	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("api: parsing access token: %w", err)
	}

	return claims, nil
}

// SessionClaims reads the access cookie from the client's jar and decodes
// its claims.
func (c *Client) SessionClaims() (*Claims, error) {
	if c.httpClient.Jar == nil {
		return nil, ErrNoSession
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("api: parsing base URL: %w", err)
	}

	for _, ck := range c.httpClient.Jar.Cookies(u) {
		if ck.Name == AccessCookie && ck.Value != "" {
			return ParseClaims(ck.Value)
		}
	}

	return nil, ErrNoSession
}
