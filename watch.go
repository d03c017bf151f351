package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/structured-notes/notes-go/internal/api"
	"github.com/structured-notes/notes-go/internal/config"
	"github.com/structured-notes/notes-go/internal/feed"
)

// serverShutdownTimeout bounds how long in-flight HTTP handlers get to finish.
const serverShutdownTimeout = 5 * time.Second

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the node cache fresh and stream changes over a websocket",
		Long: `Run in the foreground, refetching your nodes every poll_interval. Cache
changes are streamed as JSON events to websocket clients on [watch] listen
at /feed, and Prometheus metrics are served on [watch] metrics_listen at
/metrics when set. The config file is reloaded when it changes. SIGHUP (or
'notes-go refresh') triggers an immediate poll.`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}

	cmd.Flags().StringSlice("origin", nil, "extra browser origins allowed to connect to the feed")

	return cmd
}

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Ask a running watch to poll now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			if err := sendSIGHUP(cc.Cfg.PIDPath()); err != nil {
				return err
			}

			cc.Statusf("Asked the running watch to refresh.\n")

			return nil
		},
	}
}

func runWatch(cmd *cobra.Command, _ []string) error {
	origins, _ := cmd.Flags().GetStringSlice("origin")

	cc := mustCLIContext(cmd.Context())

	cleanup, err := writePIDFile(cc.Cfg.PIDPath())
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := shutdownContext(cmd.Context(), cc.Logger)

	return withApp(ctx, func(cc *CLIContext, app *App) error {
		if err := app.requireLogin(ctx); err != nil {
			return err
		}

		holder := config.NewHolder(&cc.Cfg.Config, cc.Cfg.ConfigPath)

		w := &watcher{
			app:    app,
			holder: holder,
			logger: cc.Logger,
			poke:   make(chan struct{}, 1),
		}

		return w.run(ctx, origins)
	})
}

// watcher drives the watch daemon: a poll loop over the node cache, the
// feed and metrics listeners, and config reloads.
type watcher struct {
	app    *App
	holder *config.Holder
	logger *slog.Logger
	poke   chan struct{}
}

func (w *watcher) run(ctx context.Context, origins []string) error {
	cfg := w.holder.Config()

	mux := http.NewServeMux()
	mux.Handle("/feed", feed.New(w.app.Cache, w.logger, w.app.Metrics, origins...))
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusNoContent)
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return w.serve(gctx, "feed", cfg.Watch.Listen, mux) })

	if cfg.Watch.MetricsListen != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", w.app.Metrics.Handler())

		g.Go(func() error { return w.serve(gctx, "metrics", cfg.Watch.MetricsListen, metricsMux) })
	}

	g.Go(func() error {
		err := config.Watch(gctx, w.holder, w.logger, func(*config.Config) { w.wake() })
		if err != nil {
			// The daemon still works on the config it started with.
			w.logger.Warn("config reload disabled", slog.String("error", err.Error()))
		}

		return nil
	})

	g.Go(func() error { return w.forwardHangups(gctx) })
	g.Go(func() error { return w.pollLoop(gctx) })

	w.logger.Info("watch started",
		slog.String("listen", cfg.Watch.Listen),
		slog.String("metrics_listen", cfg.Watch.MetricsListen),
		slog.Duration("poll_interval", cfg.Watch.PollIntervalDuration()),
	)

	err := g.Wait()

	w.logger.Info("watch stopped")

	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

// serve runs an HTTP server until ctx is done, then shuts it down.
func (w *watcher) serve(ctx context.Context, name, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)

	go func() {
		w.logger.Debug("listening", slog.String("server", name), slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("%s server: %w", name, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), serverShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		w.logger.Warn("server shutdown", slog.String("server", name), slog.String("error", err.Error()))
	}

	return ctx.Err()
}

// pollLoop refetches the whole cache on every tick or poke. A session that
// can no longer be refreshed ends the loop; other failures are logged and
// retried on the next tick.
func (w *watcher) pollLoop(ctx context.Context) error {
	interval := w.holder.Config().Watch.PollIntervalDuration()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := w.poll(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-w.poke:
		}

		if next := w.holder.Config().Watch.PollIntervalDuration(); next != interval {
			w.logger.Info("poll interval changed", slog.Duration("from", interval), slog.Duration("to", next))
			interval = next
			ticker.Reset(interval)
		}
	}
}

func (w *watcher) poll(ctx context.Context) error {
	start := time.Now()

	nodes, err := w.app.Cache.FetchAll(ctx)

	switch {
	case err == nil:
		w.logger.Debug("poll complete",
			slog.Int("node_count", nodes.Len()),
			slog.Duration("elapsed", time.Since(start)),
		)

		return nil
	case errors.Is(err, api.ErrAuthFailed):
		return fmt.Errorf("session ended: %w", err)
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		w.logger.Warn("poll failed", slog.String("error", err.Error()))

		return nil
	}
}

// wake requests an immediate poll. Pokes that arrive while one is pending
// are coalesced.
func (w *watcher) wake() {
	select {
	case w.poke <- struct{}{}:
	default:
	}
}

// forwardHangups turns SIGHUP into a poke until ctx is done.
func (w *watcher) forwardHangups(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)

	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sigCh:
			w.logger.Info("received SIGHUP, polling now")
			w.wake()
		}
	}
}
