// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package signage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/screenline/internal/cache"
	"github.com/tomtom215/screenline/internal/logging"
	"github.com/tomtom215/screenline/internal/yodeck"
)

// ErrNotConfigured is returned when no integration credentials exist.
var ErrNotConfigured = errors.New("signage integration not configured")

// Credentials is a Yodeck API token.
type Credentials struct {
	Label string
	Value string
}

// CredentialSource yields credentials, or nil when it holds none.
type CredentialSource interface {
	Load(ctx context.Context) (*Credentials, error)
}

// StaticCredentials serves credentials taken from configuration.
type StaticCredentials Credentials

// Load implements CredentialSource.
func (s StaticCredentials) Load(context.Context) (*Credentials, error) {
	if s.Label == "" || s.Value == "" {
		return nil, nil
	}
	c := Credentials(s)
	return &c, nil
}

// Provider lazily builds the Platform from the first source that has
// credentials and rebuilds it after Reset.
type Provider struct {
	opts     yodeck.Options
	cacheTTL time.Duration
	cacheOpt []cache.Option
	sources  []CredentialSource

	mu       sync.Mutex
	platform *Platform
}

// NewProvider creates a Provider. opts carries everything but the token.
func NewProvider(opts yodeck.Options, cacheTTL time.Duration, sources ...CredentialSource) *Provider {
	return &Provider{opts: opts, cacheTTL: cacheTTL, sources: sources}
}

// WithCacheOptions sets options applied to every cache of future platforms.
func (p *Provider) WithCacheOptions(opts ...cache.Option) *Provider {
	p.cacheOpt = opts
	return p
}

// Platform returns the current platform, building it on first use.
func (p *Provider) Platform(ctx context.Context) (*Platform, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.platform != nil {
		return p.platform, nil
	}

	creds, err := p.credentials(ctx)
	if err != nil {
		return nil, err
	}
	opts := p.opts
	opts.TokenLabel = creds.Label
	opts.TokenValue = creds.Value
	client, err := yodeck.New(opts)
	if err != nil {
		return nil, fmt.Errorf("build signage client: %w", err)
	}

	p.platform = NewPlatform(client, p.cacheTTL, p.cacheOpt...)
	logging.Info().Str("token_label", creds.Label).Msg("Signage platform initialized")
	return p.platform, nil
}

func (p *Provider) credentials(ctx context.Context) (*Credentials, error) {
	for _, src := range p.sources {
		c, err := src.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load signage credentials: %w", err)
		}
		if c != nil {
			return c, nil
		}
	}
	return nil, ErrNotConfigured
}

// Configured reports whether a platform can be built.
func (p *Provider) Configured(ctx context.Context) bool {
	_, err := p.Platform(ctx)
	return err == nil
}

// Reset discards the current platform and its caches. The next Platform call
// rebuilds it with whatever credentials the sources hold then.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.platform != nil {
		p.platform.ClearCaches()
		p.platform = nil
		logging.Info().Msg("Signage platform reset")
	}
}

// ClearCaches clears the caches of the current platform, if any.
func (p *Provider) ClearCaches() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.platform != nil {
		p.platform.ClearCaches()
	}
}
