package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/structured-notes/notes-go/internal/api"
	"github.com/structured-notes/notes-go/internal/config"
)

func newTestWatcher(t *testing.T, srv *notesServer, login bool) *watcher {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Server.BaseURL = srv.URL + "/api"
	cfg.Watch.Listen = "127.0.0.1:0"

	dir := t.TempDir()
	resolved := &config.Resolved{Config: *cfg, ConfigPath: filepath.Join(dir, "config.toml"), StateDir: dir}

	app, err := newApp(context.Background(), resolved, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })

	if login {
		_, err := app.Account.Login(context.Background(), "ann", "secret")
		require.NoError(t, err)
	}

	return &watcher{
		app:    app,
		holder: config.NewHolder(cfg, resolved.ConfigPath),
		logger: slog.Default(),
		poke:   make(chan struct{}, 1),
	}
}

func TestWatcher_WakeCoalesces(t *testing.T) {
	w := &watcher{poke: make(chan struct{}, 1)}

	w.wake()
	w.wake()
	w.wake()

	assert.Len(t, w.poke, 1)
}

func TestWatcher_PollLoopPollsOnWake(t *testing.T) {
	srv := newNotesServer(t)
	w := newTestWatcher(t, srv, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)

	go func() { done <- w.pollLoop(ctx) }()

	require.Eventually(t, func() bool { return srv.lists.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 3, w.app.Cache.Len())

	w.wake()

	require.Eventually(t, func() bool { return srv.lists.Load() == 2 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestWatcher_PollLoopEndsWhenSessionEnds(t *testing.T) {
	srv := newNotesServer(t)
	w := newTestWatcher(t, srv, false)

	err := w.pollLoop(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrAuthFailed)
	assert.Contains(t, err.Error(), "session ended")
}

func TestWatcher_RunStopsCleanlyOnCancel(t *testing.T) {
	srv := newNotesServer(t)
	w := newTestWatcher(t, srv, true)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)

	go func() { done <- w.run(ctx, nil) }()

	require.Eventually(t, func() bool { return srv.lists.Load() >= 1 }, 5*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}
