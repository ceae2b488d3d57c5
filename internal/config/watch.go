package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/oshokin/persistent-last-changed/internal/logger"
)

// reloadDebounce coalesces the burst of events editors emit for one save.
const reloadDebounce = 250 * time.Millisecond

// Watch blocks until ctx is done, calling onChange with every valid new
// version of the configuration file. Invalid versions are logged and skipped.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	path, err := resolvePath(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	defer func() {
		_ = watcher.Close()
	}()

	// Watch the directory: editors replace files by renaming over them.
	if err = watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	debounce := time.NewTimer(reloadDebounce)
	debounce.Stop()

	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(event.Name) != path {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				debounce.Reset(reloadDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.WarnKV(ctx, "Config watcher error", "error", err)
		case <-debounce.C:
			cfg, err := Load(path)
			if err != nil {
				logger.WarnKV(ctx, "Ignoring invalid configuration change", "path", path, "error", err)

				continue
			}

			logger.InfoKV(ctx, "Configuration changed", "path", path, "sensors", len(cfg.Sensors))
			onChange(cfg)
		}
	}
}
