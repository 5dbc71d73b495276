// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package services

import (
	"context"
	"fmt"

	"github.com/tomtom215/screenline/internal/config"
)

// WatchFunc blocks until ctx is done, calling onChange whenever the file at
// path changes. config.Watch is the production implementation.
type WatchFunc func(ctx context.Context, path string, onChange func()) error

// ConfigWatchService runs a config file watcher under suture.
type ConfigWatchService struct {
	path     string
	onChange func()
	watch    WatchFunc
}

// NewConfigWatchService watches path with config.Watch.
func NewConfigWatchService(path string, onChange func()) *ConfigWatchService {
	return &ConfigWatchService{path: path, onChange: onChange, watch: config.Watch}
}

// Serve implements suture.Service.
func (s *ConfigWatchService) Serve(ctx context.Context) error {
	if err := s.watch(ctx, s.path, s.onChange); err != nil {
		return fmt.Errorf("config watch: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("config watch on %s stopped", s.path)
}

func (s *ConfigWatchService) String() string {
	return "config-watch"
}
