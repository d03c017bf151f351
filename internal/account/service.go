// Package account manages the signed-in user: login, registration, logout,
// and the local teardown that runs when the session ends for any reason.
package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/structured-notes/notes-go/internal/api"
	"github.com/structured-notes/notes-go/internal/nodecache"
	"github.com/structured-notes/notes-go/internal/state"
)

// Routes, relative to the API base URL.
const (
	loginRoute  = "auth"
	logoutRoute = "auth/logout"
	usersRoute  = "users"
	meRoute     = "users/@me"
)

const teardownTimeout = 5 * time.Second

// ErrNotLoggedIn is returned when an operation needs a known user.
var ErrNotLoggedIn = errors.New("account: not logged in")

// KV is the persistent marker store. *state.Store satisfies it.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// CookieStore drops the session cookies. *state.Jar satisfies it.
type CookieStore interface {
	Clear(ctx context.Context) error
}

// Clearer is any session-scoped cache emptied on logout, such as
// *nodecache.Cache and *media.Store.
type Clearer interface {
	Clear()
}

// Service owns the current user.
type Service struct {
	client   nodecache.Requester
	kv       KV
	cookies  CookieStore
	clearers []Clearer
	logger   *slog.Logger

	mu   sync.RWMutex
	user *User
}

// New creates the account service. cookies may be nil. clearers are emptied,
// in order, whenever the session ends.
func New(client nodecache.Requester, kv KV, cookies CookieStore, logger *slog.Logger, clearers ...Clearer) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		client:   client,
		kv:       kv,
		cookies:  cookies,
		clearers: clearers,
		logger:   logger,
	}
}

// Login authenticates with username and password. On success the server
// sets the session cookies, and the user and the logged-in marker are
// persisted.
func (s *Service) Login(ctx context.Context, username, password string) (User, error) {
	res := s.client.Request(ctx, loginRoute, http.MethodPost, map[string]string{
		"username": username,
		"password": password,
	})

	u, err := decodeUser(res)
	if err != nil {
		return User{}, err
	}

	if err := s.remember(ctx, u); err != nil {
		return User{}, err
	}

	if err := s.kv.Set(ctx, state.KeyLoggedIn, "true"); err != nil {
		return User{}, fmt.Errorf("account: saving login marker: %w", err)
	}

	s.logger.Info("logged in", slog.String("user_id", u.ID), slog.String("username", u.Username))

	return u, nil
}

// Register creates an account. It does not log in.
func (s *Service) Register(ctx context.Context, reg Registration) (User, error) {
	return decodeUser(s.client.Request(ctx, usersRoute, http.MethodPost, reg))
}

// Me fetches the current user from the server and remembers it.
func (s *Service) Me(ctx context.Context) (User, error) {
	u, err := decodeUser(s.client.Request(ctx, meRoute, http.MethodGet, nil))
	if err != nil {
		return User{}, err
	}

	if err := s.remember(ctx, u); err != nil {
		return User{}, err
	}

	return u, nil
}

// Logout ends the session on the server, then tears down local state. The
// local teardown runs even when the server call fails; that failure is
// still returned.
func (s *Service) Logout(ctx context.Context) error {
	res := s.client.Request(ctx, logoutRoute, http.MethodPost, struct{}{})

	s.PostLogout()

	if !res.OK() {
		return res.Err()
	}

	s.logger.Info("logged out")

	return nil
}

// PostLogout forgets the user, empties the session caches, and removes the
// logged-in marker and the cookies. It is registered as the session's
// logout hook so a failed credential refresh ends up here too.
func (s *Service) PostLogout() {
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()

	for _, c := range s.clearers {
		c.Clear()
	}

	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	for _, key := range []string{state.KeyLoggedIn, state.KeyUser} {
		if err := s.kv.Delete(ctx, key); err != nil {
			s.logger.Warn("failed to clear session marker",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.cookies != nil {
		if err := s.cookies.Clear(ctx); err != nil {
			s.logger.Warn("failed to clear cookies", slog.String("error", err.Error()))
		}
	}

	s.logger.Debug("local session state cleared")
}

// Restore reloads the user remembered by a previous run.
func (s *Service) Restore(ctx context.Context) error {
	raw, err := s.kv.Get(ctx, state.KeyUser)
	if errors.Is(err, state.ErrNotFound) {
		return ErrNotLoggedIn
	}

	if err != nil {
		return fmt.Errorf("account: loading user: %w", err)
	}

	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return fmt.Errorf("account: decoding saved user: %w", err)
	}

	s.mu.Lock()
	s.user = &u
	s.mu.Unlock()

	return nil
}

// User returns the current user, if any.
func (s *Service) User() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return User{}, false
	}

	return *s.user, true
}

// LoggedIn reports whether the persisted logged-in marker is set.
func (s *Service) LoggedIn(ctx context.Context) bool {
	_, err := s.kv.Get(ctx, state.KeyLoggedIn)
	return err == nil
}

func (s *Service) remember(ctx context.Context, u User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("account: encoding user: %w", err)
	}

	if err := s.kv.Set(ctx, state.KeyUser, string(data)); err != nil {
		return fmt.Errorf("account: saving user: %w", err)
	}

	s.mu.Lock()
	s.user = &u
	s.mu.Unlock()

	return nil
}

func decodeUser(res api.Result) (User, error) {
	rec, err := api.Decode[userRecord](res)
	if err != nil {
		return User{}, err
	}

	return rec.toUser(), nil
}
