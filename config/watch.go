package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Editors often write a file in several steps. Changes closer together
// than this are reported once.
const watchDebounce = 500 * time.Millisecond

// Watch calls onChange whenever cfile is written, created or replaced
// until ctx is done. The directory is watched so that editors replacing
// the file are noticed as well.
func Watch(ctx context.Context, cfile string, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("can't create config watcher: %w", err)
	}
	abs, err := filepath.Abs(cfile)
	if err != nil {
		watcher.Close()
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("can't watch %s: %w", filepath.Dir(abs), err)
	}

	go func() {
		defer watcher.Close()
		var debounce <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
					debounce = time.After(watchDebounce)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("Config watcher error", "error", err)
			case <-debounce:
				debounce = nil
				slog.Info("Config file changed", "file", cfile)
				onChange()
			}
		}
	}()
	return nil
}
