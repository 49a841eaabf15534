package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/platinummonkey/campus/pkg/observability"
)

// Watch reloads the configuration file whenever it is written and passes
// every valid result to onChange. Invalid files are logged and ignored.
// Watch blocks until ctx is done.
//
// The directory is watched rather than the file so editors that replace the
// file on save are picked up.
func Watch(ctx context.Context, path string, logger *observability.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(path)
			if err != nil {
				logger.WithError(err).Warn("Ignoring invalid configuration change")
				continue
			}
			logger.WithField("file", path).Info("Configuration reloaded")
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("Configuration watcher error")
		}
	}
}
