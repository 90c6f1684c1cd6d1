package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events editors emit on save.
const reloadDebounce = 300 * time.Millisecond

// Watch reloads path whenever it changes and calls onChange with the freshly
// loaded config. Invalid files are logged and skipped. The parent directory
// is watched so atomic rename-on-save is picked up. Watch blocks until ctx
// is done.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("config watcher: watch %s: %w", filepath.Dir(abs), err)
	}
	slog.Info("config watcher started", "path", abs)

	var (
		timer    *time.Timer
		fire     <-chan time.Time
		lastHash string
	)
	if cur, err := Load(abs); err == nil {
		lastHash = cur.Hash()
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			fire = timer.C

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config watcher error", "error", err)

		case <-fire:
			fire = nil
			cfg, err := Load(abs)
			if err != nil {
				slog.Warn("config reload failed, keeping previous", "error", err)
				continue
			}
			if err := cfg.Validate(); err != nil {
				slog.Warn("config reload rejected", "error", err)
				continue
			}
			if h := cfg.Hash(); h == lastHash {
				continue
			} else {
				lastHash = h
			}
			slog.Info("config reloaded", "path", abs)
			onChange(cfg)
		}
	}
}
