package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events editors produce when saving.
const reloadDebounce = 200 * time.Millisecond

// Watch reloads the holder's config file whenever it changes, until ctx is
// cancelled. The parent directory is watched rather than the file, because
// editors commonly save by renaming a temporary file over the original. A
// file that fails to parse or validate is logged and the previous config is
// kept. onReload, if non-nil, runs after each successful reload.
func Watch(ctx context.Context, h *Holder, logger *slog.Logger, onReload func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: creating watcher: %w", err)
	}
	defer watcher.Close()

	dir, name := filepath.Dir(h.Path()), filepath.Base(h.Path())
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("config: watching %s: %w", dir, err)
	}

	logger.Debug("watching config file", slog.String("path", h.Path()))

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)

	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Base(ev.Name) != name || ev.Op == fsnotify.Chmod {
				continue
			}

			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}

			fire = timer.C

		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.Warn("config watcher error", slog.String("error", werr.Error()))

		case <-fire:
			fire = nil

			cfg, err := LoadOrDefault(h.Path())
			if err != nil {
				logger.Warn("config reload failed, keeping previous config",
					slog.String("path", h.Path()),
					slog.String("error", err.Error()),
				)

				continue
			}

			h.Update(cfg)
			logger.Info("config reloaded", slog.String("path", h.Path()))

			if onReload != nil {
				onReload(cfg)
			}
		}
	}
}
