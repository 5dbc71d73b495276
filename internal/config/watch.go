// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tomtom215/screenline/internal/logging"
)

// watchDebounce collapses the burst of events editors emit on save.
const watchDebounce = 100 * time.Millisecond

// Watch calls onChange each time the config file at path is written,
// replaced or recreated, until ctx is done. The parent directory is watched
// so atomic rename-on-save is observed.
func Watch(ctx context.Context, path string, onChange func()) error {
	if path == "" {
		return fmt.Errorf("watch: no config file to watch")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watch: resolve %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch: add %s: %w", filepath.Dir(abs), err)
	}

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(watchDebounce)
		case <-timer.C:
			onChange()
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Warn().Err(werr).Str("path", abs).Msg("Config watcher error")
		}
	}
}
