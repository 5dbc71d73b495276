// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateYodeck(); err != nil {
		return err
	}
	if err := c.validateMedia(); err != nil {
		return err
	}
	if err := c.validatePublish(); err != nil {
		return err
	}
	if err := c.validateReconcile(); err != nil {
		return err
	}
	if err := c.validateEvents(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateYodeck() error {
	y := c.Yodeck
	if err := validateHTTPURL(y.BaseURL, "YODECK_BASE_URL"); err != nil {
		return err
	}
	if (y.TokenLabel == "") != (y.TokenValue == "") {
		return fmt.Errorf("YODECK_TOKEN_LABEL and YODECK_TOKEN_VALUE must be set together")
	}
	if y.MaxConcurrent < 1 {
		return fmt.Errorf("YODECK_MAX_CONCURRENT must be at least 1, got %d", y.MaxConcurrent)
	}
	if y.Timeout <= 0 || y.UploadTimeout <= 0 {
		return fmt.Errorf("YODECK_TIMEOUT and YODECK_UPLOAD_TIMEOUT must be positive")
	}
	if y.MaxRetries < 0 {
		return fmt.Errorf("YODECK_MAX_RETRIES must be non-negative, got %d", y.MaxRetries)
	}
	if y.RetryBase <= 0 {
		return fmt.Errorf("YODECK_RETRY_BASE_DELAY must be positive")
	}
	if y.PageSize < 1 || y.PageSize > 1000 {
		return fmt.Errorf("YODECK_PAGE_SIZE must be between 1 and 1000, got %d", y.PageSize)
	}
	if y.RequestsPerSecond < 0 {
		return fmt.Errorf("YODECK_REQUESTS_PER_SECOND must be non-negative")
	}
	return nil
}

func (c *Config) validateMedia() error {
	m := c.Media
	if m.PollInitialDelay <= 0 || m.PollMaxDelay < m.PollInitialDelay {
		return fmt.Errorf("media poll delays must be positive with max >= initial")
	}
	if m.PollAttempts < 0 {
		return fmt.Errorf("MEDIA_POLL_ATTEMPTS must be non-negative")
	}
	if m.HasFileInterval <= 0 || m.HasFileTimeout < m.HasFileInterval {
		return fmt.Errorf("media has-file interval must be positive and not exceed the timeout")
	}
	return nil
}

func (c *Config) validatePublish() error {
	if c.Publish.TargetConcurrency < 1 {
		return fmt.Errorf("PUBLISH_TARGET_CONCURRENCY must be at least 1")
	}
	if c.Publish.ItemDuration < 1 {
		return fmt.Errorf("PUBLISH_ITEM_DURATION_SECONDS must be at least 1")
	}
	if c.Publish.AttemptTimeout <= 0 {
		return fmt.Errorf("PUBLISH_ATTEMPT_TIMEOUT must be positive")
	}
	if c.Publish.RecoveryInterval <= 0 {
		return fmt.Errorf("PUBLISH_RECOVERY_INTERVAL must be positive")
	}
	return nil
}

func (c *Config) validateReconcile() error {
	if c.Reconcile.Enabled && c.Reconcile.Interval <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must be positive when the reconciler is enabled")
	}
	return nil
}

func (c *Config) validateEvents() error {
	switch c.Events.Driver {
	case "gochannel":
	case "nats":
		u, err := url.Parse(c.Events.NATSURL)
		if err != nil || (u.Scheme != "nats" && u.Scheme != "tls") || u.Host == "" {
			return fmt.Errorf("NATS_URL must be a nats:// or tls:// URL, got %q", c.Events.NATSURL)
		}
	default:
		return fmt.Errorf("EVENTS_DRIVER must be gochannel or nats, got %q", c.Events.Driver)
	}
	if c.Events.Topic == "" {
		return fmt.Errorf("EVENTS_TOPIC is required")
	}
	if c.Events.WALEnabled {
		if c.Events.WALPath == "" {
			return fmt.Errorf("EVENTS_WAL_PATH is required when the event WAL is enabled")
		}
		if c.Events.WALRetryInterval <= 0 || c.Events.WALMaxRetries < 1 || c.Events.WALEntryTTL <= 0 {
			return fmt.Errorf("EVENTS_WAL_RETRY_INTERVAL and EVENTS_WAL_ENTRY_TTL must be positive and EVENTS_WAL_MAX_RETRIES at least 1")
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if !c.Server.RateLimitDisabled {
		if c.Server.RateLimitReqs < 1 {
			return fmt.Errorf("RATE_LIMIT_REQUESTS must be at least 1")
		}
		if c.Server.RateLimitWindow <= 0 {
			return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

func validateHTTPURL(raw, field string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is invalid: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", field, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", field)
	}
	return nil
}
