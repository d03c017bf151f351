package state

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"
)

const persistTimeout = 5 * time.Second

// Jar is an http.CookieJar whose contents survive process restarts. Matching
// rules are delegated to net/http/cookiejar; every cookie the server sets is
// also written through to the Store.
type Jar struct {
	mu     sync.RWMutex
	inner  *cookiejar.Jar
	store  *Store
	logger *slog.Logger
}

// NewJar creates a jar preloaded with the cookies persisted in store.
func NewJar(ctx context.Context, store *Store, logger *slog.Logger) (*Jar, error) {
	if logger == nil {
		logger = slog.Default()
	}

	inner, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("state: creating cookie jar: %w", err)
	}

	saved, err := store.LoadCookies(ctx)
	if err != nil {
		return nil, err
	}

	for origin, cookies := range saved {
		u, err := url.Parse(origin)
		if err != nil {
			logger.Warn("skipping cookies with unparsable origin",
				slog.String("origin", origin),
				slog.String("error", err.Error()),
			)

			continue
		}

		inner.SetCookies(u, cookies)
	}

	return &Jar{inner: inner, store: store, logger: logger}, nil
}

// SetCookies implements http.CookieJar.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.RLock()
	j.inner.SetCookies(u, cookies)
	j.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := j.store.SaveCookies(ctx, origin(u), cookies); err != nil {
		j.logger.Warn("failed to persist cookies",
			slog.String("host", u.Host),
			slog.String("error", err.Error()),
		)
	}
}

// Cookies implements http.CookieJar.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return j.inner.Cookies(u)
}

// Clear forgets every cookie, in memory and on disk.
func (j *Jar) Clear(ctx context.Context) error {
	inner, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("state: creating cookie jar: %w", err)
	}

	j.mu.Lock()
	j.inner = inner
	j.mu.Unlock()

	return j.store.ClearCookies(ctx)
}

func origin(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}
