// Creates the E2E account on a test server so the E2E suite can sign in.
// Reads the account from .env or the NOTES_GO_E2E_* environment variables.
//
// Usage: go run ./cmd/integration-bootstrap
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"os"
	"path/filepath"
	"time"

	"github.com/structured-notes/notes-go/internal/account"
	"github.com/structured-notes/notes-go/internal/api"
	"github.com/structured-notes/notes-go/testutil"
)

const bootstrapTimeout = 30 * time.Second

func main() {
	testutil.LoadDotEnv(filepath.Join(testutil.FindModuleRoot("."), ".env"))
	env := testutil.RequireE2EEnv()

	ctx, cancel := context.WithTimeout(context.Background(), bootstrapTimeout)
	defer cancel()

	logger := slog.Default()

	if err := bootstrap(ctx, env, logger); err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("E2E account %s is ready on %s.\n", env.Username, env.Server)
}

// bootstrap registers the account, treating an existing account as success
// as long as its credentials still work.
func bootstrap(ctx context.Context, env testutil.E2EEnv, logger *slog.Logger) error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}

	client := api.NewClient(env.Server, &http.Client{Jar: jar, Timeout: bootstrapTimeout}, logger, "", nil)
	svc := account.New(client, memKV{}, nil, logger)

	_, err = svc.Register(ctx, account.Registration{
		Username: env.Username,
		Email:    env.Email,
		Password: env.Password,
	})

	switch {
	case err == nil:
		logger.Info("registered E2E account", slog.String("username", env.Username))
	case errors.Is(err, api.ErrConflict) || errors.Is(err, api.ErrBadRequest):
		logger.Info("E2E account already exists", slog.String("username", env.Username))
	default:
		return fmt.Errorf("registering %s: %w", env.Username, err)
	}

	if _, err := svc.Login(ctx, env.Username, env.Password); err != nil {
		return fmt.Errorf("signing in as %s: %w", env.Username, err)
	}

	return svc.Logout(ctx)
}

// memKV discards the session markers; bootstrap keeps no local state.
type memKV struct{}

func (memKV) Get(context.Context, string) (string, error) { return "", account.ErrNotLoggedIn }
func (memKV) Set(context.Context, string, string) error   { return nil }
func (memKV) Delete(context.Context, string) error        { return nil }
