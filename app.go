package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/structured-notes/notes-go/internal/account"
	"github.com/structured-notes/notes-go/internal/api"
	"github.com/structured-notes/notes-go/internal/config"
	"github.com/structured-notes/notes-go/internal/media"
	"github.com/structured-notes/notes-go/internal/metrics"
	"github.com/structured-notes/notes-go/internal/nodecache"
	"github.com/structured-notes/notes-go/internal/state"
)

var errNotLoggedIn = errors.New("not logged in; run 'notes-go login' first")

// App holds the wired client stack for one command invocation: persistent
// state, the cookie-carrying API client, the node cache, the media store and
// the account service. A failed credential refresh clears all of it through
// the account service's logout hook.
type App struct {
	Store   *state.Store
	Jar     *state.Jar
	Client  *api.Client
	Cache   *nodecache.Cache
	Media   *media.Store
	Account *account.Service
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// newApp opens the state database and builds the client stack from the
// resolved config. The caller must Close the returned App.
func newApp(ctx context.Context, cfg *config.Resolved, logger *slog.Logger) (*App, error) {
	store, err := state.Open(ctx, cfg.StatePath(), logger)
	if err != nil {
		return nil, fmt.Errorf("opening state: %w", err)
	}

	jar, err := state.NewJar(ctx, store, logger)
	if err != nil {
		store.Close()

		return nil, fmt.Errorf("loading cookies: %w", err)
	}

	m := metrics.New()
	client := api.NewClient(cfg.Server.BaseURL, newHTTPClient(cfg, jar, logger), logger, cfg.Network.UserAgent, m)
	cache := nodecache.New(client, logger, m)
	mediaStore := media.New(client, cache, logger)
	svc := account.New(client, store, jar, logger, cache, mediaStore)

	client.Session().OnLogout(svc.PostLogout)
	client.Session().SetNavigator(api.NavigatorFunc(func(string) {
		fmt.Fprintln(os.Stderr, "Session expired. Run 'notes-go login' to sign in again.")
	}))

	if err := svc.Restore(ctx); err != nil && !errors.Is(err, account.ErrNotLoggedIn) {
		logger.Warn("could not restore saved user", slog.String("error", err.Error()))
	}

	return &App{
		Store:   store,
		Jar:     jar,
		Client:  client,
		Cache:   cache,
		Media:   mediaStore,
		Account: svc,
		Metrics: m,
		Logger:  logger,
	}, nil
}

// Close releases the state database.
func (a *App) Close() error {
	return a.Store.Close()
}

// requireLogin fails fast when no session was ever established, instead of
// letting the first request discover it through a refresh round trip.
func (a *App) requireLogin(ctx context.Context) error {
	if !a.Account.LoggedIn(ctx) {
		return errNotLoggedIn
	}

	return nil
}

// newHTTPClient returns an HTTP client with the configured timeouts and
// request rate. The connect timeout bounds dialing and the TLS handshake;
// the data timeout bounds a whole request.
func newHTTPClient(cfg *config.Resolved, jar http.CookieJar, logger *slog.Logger) *http.Client {
	connect := cfg.Network.ConnectTimeoutDuration()

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connect}).DialContext
	transport.TLSHandshakeTimeout = connect

	return &http.Client{
		Jar:       jar,
		Timeout:   cfg.Network.DataTimeoutDuration(),
		Transport: api.NewRateLimitedTransport(transport, cfg.Network.RequestsPerSecond, logger),
	}
}

// withApp builds the App for a command, runs fn, and closes the App.
func withApp(ctx context.Context, fn func(cc *CLIContext, app *App) error) error {
	cc := mustCLIContext(ctx)

	app, err := newApp(ctx, cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}

	defer func() {
		if cerr := app.Close(); cerr != nil {
			cc.Logger.Warn("closing state", slog.String("error", cerr.Error()))
		}
	}()

	return fn(cc, app)
}
