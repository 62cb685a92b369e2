package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the config whenever the file changes and delivers the
// fresh copy to onChange. Writes are debounced so editors that truncate
// and rewrite do not trigger a reload per syscall. The watcher stops when
// ctx is cancelled.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch the directory, not the file: rename-and-replace saves would
	// otherwise drop the watch.
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		watcher.Close()
		return err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()

		debounce := time.NewTimer(time.Hour)
		debounce.Stop()
		defer debounce.Stop()

		dirty := false
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != path {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
					dirty = true
					if !debounce.Stop() {
						select {
						case <-debounce.C:
						default:
						}
					}
					debounce.Reset(500 * time.Millisecond)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				fmt.Fprintf(os.Stderr, "config watcher error: %v\n", err)
			case <-debounce.C:
				if !dirty {
					continue
				}
				dirty = false
				cfg, err := LoadFrom(path)
				if err != nil {
					fmt.Fprintf(os.Stderr, "config reload error: %v\n", err)
					continue
				}
				onChange(cfg)
			}
		}
	}()

	return nil
}
