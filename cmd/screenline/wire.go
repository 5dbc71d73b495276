// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tomtom215/screenline/internal/api"
	"github.com/tomtom215/screenline/internal/config"
	"github.com/tomtom215/screenline/internal/credentials"
	"github.com/tomtom215/screenline/internal/database"
	"github.com/tomtom215/screenline/internal/events"
	"github.com/tomtom215/screenline/internal/logging"
	"github.com/tomtom215/screenline/internal/media"
	"github.com/tomtom215/screenline/internal/publish"
	"github.com/tomtom215/screenline/internal/reconcile"
	"github.com/tomtom215/screenline/internal/signage"
	"github.com/tomtom215/screenline/internal/wal"
	"github.com/tomtom215/screenline/internal/yodeck"
)

// configCredentials serves the token from the config file. The token is
// swapped in place when the file changes.
type configCredentials struct {
	mu    sync.RWMutex
	creds signage.StaticCredentials
}

func newConfigCredentials(y config.YodeckConfig) *configCredentials {
	return &configCredentials{creds: signage.StaticCredentials{Label: y.TokenLabel, Value: y.TokenValue}}
}

// Load implements signage.CredentialSource.
func (c *configCredentials) Load(ctx context.Context) (*signage.Credentials, error) {
	c.mu.RLock()
	creds := c.creds
	c.mu.RUnlock()
	return creds.Load(ctx)
}

// update stores the token from y and reports whether it changed.
func (c *configCredentials) update(y config.YodeckConfig) bool {
	next := signage.StaticCredentials{Label: y.TokenLabel, Value: y.TokenValue}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.creds == next {
		return false
	}
	c.creds = next
	return true
}

func yodeckOptions(y config.YodeckConfig) yodeck.Options {
	return yodeck.Options{
		BaseURL:            y.BaseURL,
		MaxConcurrent:      y.MaxConcurrent,
		Timeout:            y.Timeout,
		UploadTimeout:      y.UploadTimeout,
		MaxRetries:         y.MaxRetries,
		RetryBase:          y.RetryBase,
		PageSize:           y.PageSize,
		RequestsPerSecond:  y.RequestsPerSecond,
		Burst:              y.Burst,
		BreakerMaxFailures: y.BreakerMaxFailures,
		BreakerTimeout:     y.BreakerTimeout,
	}
}

func mediaOptions(m config.MediaConfig) media.Options {
	return media.Options{
		PollInitialDelay: m.PollInitialDelay,
		PollMaxDelay:     m.PollMaxDelay,
		PollAttempts:     m.PollAttempts,
		HasFileInterval:  m.HasFileInterval,
		HasFileTimeout:   m.HasFileTimeout,
	}
}

// app holds the components shared by the commands. Fields a command does
// not open stay nil.
type app struct {
	cfg      *config.Config
	static   *configCredentials
	store    *credentials.Store
	provider *signage.Provider
	db       *database.DB
	bus      *events.Bus
	wal      *wal.WAL
	plans    *publish.Orchestrator
	rec      *reconcile.Reconciler

	closers []func() error
}

// openSignage builds the platform provider. The config token is tried
// before the credential store. With requireStore unset, a store that cannot
// be opened is skipped as long as the config carries a token, which lets
// one-shot commands run next to a server holding the store lock.
func openSignage(cfg *config.Config, requireStore bool) (*app, error) {
	a := &app{cfg: cfg, static: newConfigCredentials(cfg.Yodeck)}
	sources := []signage.CredentialSource{a.static}

	switch {
	case cfg.Credentials.Secret == "":
		logging.Info().Msg("Credential store disabled (no CREDENTIALS_SECRET)")
	default:
		store, err := credentials.Open(cfg.Credentials)
		switch {
		case err == nil:
			a.store = store
			a.closers = append(a.closers, store.Close)
			sources = append(sources, store)
		case requireStore || !cfg.Yodeck.HasToken():
			return nil, fmt.Errorf("credential store: %w", err)
		default:
			logging.Warn().Err(err).Msg("Credential store unavailable; using the configured token")
		}
	}

	a.provider = signage.NewProvider(yodeckOptions(cfg.Yodeck), cfg.Cache.TTL, sources...)
	return a, nil
}

// openDatabase adds the DuckDB store and the reconciler.
func (a *app) openDatabase() error {
	db, err := database.Open(&a.cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, db.Close)
	a.rec = reconcile.New(db, db, a.provider, reconcile.WithDownloadSlots(a.cfg.Publish.UseDownloadSlots))
	return nil
}

// openPublishing adds the event bus, the optional event WAL in front of it
// and the publish orchestrator.
func (a *app) openPublishing() error {
	bus, err := events.NewBus(a.cfg.Events, nil)
	if err != nil {
		return fmt.Errorf("open event bus: %w", err)
	}
	a.bus = bus
	a.closers = append(a.closers, bus.Close)

	var pub publish.EventPublisher = bus
	if a.cfg.Events.WALEnabled {
		w, err := wal.Open(wal.ConfigFrom(a.cfg.Events))
		if err != nil {
			return fmt.Errorf("open event WAL: %w", err)
		}
		a.wal = w
		a.closers = append(a.closers, w.Close)
		pub = wal.NewDurablePublisher(w, bus)
	}

	p := a.cfg.Publish
	a.plans = publish.New(a.db, a.db, a.provider, publish.Options{
		TargetConcurrency: p.TargetConcurrency,
		PushAfterPublish:  p.PushAfterPublish,
		UseDownloadSlots:  p.UseDownloadSlots,
		ItemDuration:      p.ItemDuration,
		AttemptTimeout:    p.AttemptTimeout,
		Media:             mediaOptions(a.cfg.Media),
	}, publish.WithAlerts(a.db), publish.WithEvents(pub))
	return nil
}

// apiDependencies wires the handler. A missing credential store stays a
// nil interface so the handlers answer 503 for it.
func (a *app) apiDependencies() api.Dependencies {
	deps := api.Dependencies{
		Plans:        a.plans,
		Reconciler:   a.rec,
		Store:        a.db,
		Platforms:    a.provider,
		MediaOptions: mediaOptions(a.cfg.Media),
	}
	if a.store != nil {
		deps.Credentials = a.store
	}
	return deps
}

// reload re-reads the config file. A changed Yodeck token resets the
// provider so the next request builds a client with it.
func (a *app) reload() {
	cfg, err := config.LoadFrom(a.cfg.File)
	if err != nil {
		logging.Warn().Err(err).Str("path", a.cfg.File).Msg("Config reload failed; keeping current configuration")
		return
	}
	logging.Init(loggingConfig(cfg.Logging))

	if a.static.update(cfg.Yodeck) {
		a.provider.Reset()
		logging.Info().
			Str("token_label", cfg.Yodeck.TokenLabel).
			Str("token", config.MaskToken(cfg.Yodeck.TokenValue)).
			Msg("Yodeck token changed; platform reset")
	}
}

// Close releases everything in reverse opening order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func closeApp(a *app) {
	if err := a.Close(); err != nil {
		logging.Error().Err(err).Msg("Error during shutdown")
	}
}
