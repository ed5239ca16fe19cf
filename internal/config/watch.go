package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/huishype/huishype/pkg/logger"
	"github.com/huishype/huishype/pkg/metrics"
)

// Watch monitors path and calls onChange with the reloaded Config each time
// the file is written or recreated. It runs until ctx is cancelled.
//
// The parent directory is watched so that saves which rename a temp file
// over path keep being observed.
//
// A reload that fails to parse or validate is logged and skipped; the
// previous config stays active.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	log := logger.Get().Named("config")

	path = filepath.Clean(path)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: watch %s: %v", ErrLoadConfig, path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: watcher: %v", ErrLoadConfig, err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("%w: watch %s: %v", ErrLoadConfig, path, err)
	}
	log.Info(ctx, "watching config for changes", logger.String("path", path))

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
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := LoadFile(ctx, path)
			if err != nil {
				metrics.RecordConfigReload("error")
				log.Error(ctx, "config reload failed, keeping previous config",
					logger.String("path", path), logger.Error(err))
				continue
			}

			metrics.RecordConfigReload("ok")
			log.Info(ctx, "config reloaded", logger.String("path", path))
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error(ctx, "config watcher error", logger.Error(err))
		}
	}
}
