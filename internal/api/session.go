package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/structured-notes/notes-go/internal/metrics"
)

// LoginPath is the entry point a failed refresh navigates to.
const LoginPath = "/login"

const (
	refreshRoute = "auth/refresh"
	refreshKey   = "refresh"
)

// Navigator performs the forced navigation after a session ends. A CLI
// prints a hint; an embedding UI would switch screens.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

// Navigate calls f(path).
func (f NavigatorFunc) Navigate(path string) { f(path) }

// Session owns the credential refresh protocol. At most one refresh request
// is in flight at any time: concurrent callers of Refresh attach to the
// running attempt and all observe its outcome. The in-flight handle is
// dropped as soon as the attempt settles, success or failure, so the next
// expired token starts a fresh attempt.
type Session struct {
	client  *Client
	logger  *slog.Logger
	metrics *metrics.Metrics
	group   singleflight.Group

	mu        sync.Mutex
	hooks     []func()
	navigator Navigator

	// onJoin, if set, is called after a caller has attached to the flight.
	// Tests use it to hold the refresh open until every caller has joined.
	onJoin func()
}

func newSession(c *Client, logger *slog.Logger, m *metrics.Metrics) *Session {
	return &Session{
		client:  c,
		logger:  logger,
		metrics: m,
	}
}

// OnLogout registers a hook run, in registration order, after a refresh
// fails and before waiters are released. Hooks clear local session state.
func (s *Session) OnLogout(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hooks = append(s.hooks, fn)
}

// SetNavigator sets where a failed refresh sends the user.
func (s *Session) SetNavigator(n Navigator) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.navigator = n
}

// Refresh obtains fresh credentials, sharing one network call among all
// concurrent callers. It returns nil once new cookies are in the jar and an
// error wrapping ErrRefreshFailed otherwise. The refresh itself is detached
// from ctx cancellation so one caller leaving cannot fail it for the rest;
// ctx only bounds how long this caller waits.
func (s *Session) Refresh(ctx context.Context) error {
	flightCtx := context.WithoutCancel(ctx)

	ch := s.group.DoChan(refreshKey, func() (any, error) {
		return nil, s.refresh(flightCtx)
	})

	if s.onJoin != nil {
		s.onJoin()
	}

	select {
	case r := <-ch:
		if r.Shared {
			s.logger.Debug("joined in-flight refresh")
		}

		return r.Err
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrRefreshFailed, ctx.Err())
	}
}

// refresh runs inside the single flight.
func (s *Session) refresh(ctx context.Context) error {
	s.logger.Info("refreshing access token")

	res, err := s.client.send(ctx, refreshRoute, http.MethodPost, struct{}{})
	if err == nil && res.OK() {
		s.metrics.RecordRefresh(true)
		s.logger.Info("access token refreshed")

		return nil
	}

	s.metrics.RecordRefresh(false)

	reason := res.Message
	if err != nil {
		reason = err.Error()
	}

	s.logger.Warn("refresh failed, logging out",
		slog.Int("status", res.StatusCode),
		slog.String("reason", reason),
	)

	s.expire()

	return fmt.Errorf("%w: %s", ErrRefreshFailed, reason)
}

// expire runs the logout hooks and navigates to the login entry point.
func (s *Session) expire() {
	s.mu.Lock()
	hooks := make([]func(), len(s.hooks))
	copy(hooks, s.hooks)
	nav := s.navigator
	s.mu.Unlock()

	for _, h := range hooks {
		h()
	}

	if nav != nil {
		nav.Navigate(LoginPath)
	}
}
