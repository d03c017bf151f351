// Package testutil provides shared test environment helpers for E2E and
// integration tooling. It depends only on stdlib so that E2E tests (which
// exercise the built binary, not internal/) can use it.
package testutil

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Environment variables that describe the live server E2E runs against.
const (
	EnvE2EServer         = "NOTES_GO_E2E_SERVER"
	EnvE2EUsername       = "NOTES_GO_E2E_USERNAME"
	EnvE2EPassword       = "NOTES_GO_E2E_PASSWORD"
	EnvE2EEmail          = "NOTES_GO_E2E_EMAIL"
	EnvE2EAllowedServers = "NOTES_GO_E2E_ALLOWED_SERVERS"
)

// E2EEnv is the live-server account E2E tests sign in with.
type E2EEnv struct {
	Server   string
	Username string
	Password string
	Email    string
}

// LoadDotEnv reads KEY=VALUE pairs from a .env file at the given path.
// Missing file is not an error (CI sets env vars directly).
// Existing env vars take precedence over .env values.
func LoadDotEnv(envPath string) {
	f, err := os.Open(envPath)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), "\"'")

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// RequireE2EEnv reads the E2E account from the environment and crashes the
// process when it is incomplete or when the server is not in
// NOTES_GO_E2E_ALLOWED_SERVERS. The allowlist keeps a stray .env from
// pointing destructive tests at a real deployment.
func RequireE2EEnv() E2EEnv {
	env := E2EEnv{
		Server:   os.Getenv(EnvE2EServer),
		Username: os.Getenv(EnvE2EUsername),
		Password: os.Getenv(EnvE2EPassword),
		Email:    os.Getenv(EnvE2EEmail),
	}

	for name, v := range map[string]string{
		EnvE2EServer:   env.Server,
		EnvE2EUsername: env.Username,
		EnvE2EPassword: env.Password,
	} {
		if v == "" {
			fatalf("%s not set\nSet it in .env or as an environment variable.", name)
		}
	}

	if env.Email == "" {
		env.Email = env.Username + "@example.test"
	}

	allowlist := os.Getenv(EnvE2EAllowedServers)
	if allowlist == "" {
		fatalf("%s not set\nExample: %s=http://localhost:8080/api", EnvE2EAllowedServers, EnvE2EAllowedServers)
	}

	for _, a := range strings.Split(allowlist, ",") {
		if strings.TrimSuffix(strings.TrimSpace(a), "/") == strings.TrimSuffix(env.Server, "/") {
			return env
		}
	}

	fatalf("%s=%q is not in %s=%q", EnvE2EServer, env.Server, EnvE2EAllowedServers, allowlist)

	return E2EEnv{}
}

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns the fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FATAL: "+format+"\n", args...)
	os.Exit(1)
}
