// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Yodeck.MaxConcurrent != 5 {
		t.Errorf("MaxConcurrent = %d, want 5", cfg.Yodeck.MaxConcurrent)
	}
	if cfg.Yodeck.RetryBase != time.Second || cfg.Yodeck.MaxRetries != 3 {
		t.Errorf("retry defaults = %v x%d, want 1s x3", cfg.Yodeck.RetryBase, cfg.Yodeck.MaxRetries)
	}
	if cfg.Cache.TTL != 10*time.Minute {
		t.Errorf("Cache.TTL = %v, want 10m", cfg.Cache.TTL)
	}
	if cfg.Media.PollAttempts != 6 || cfg.Media.HasFileTimeout != time.Minute {
		t.Errorf("media defaults = %+v", cfg.Media)
	}
}

func TestLoadFromFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
yodeck:
  token_label: ops
  token_value: secret-token
  max_concurrent: 3
cache:
  ttl: 2m
server:
  port: 9090
`)
	t.Setenv("YODECK_MAX_CONCURRENT", "4")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.File != path {
		t.Errorf("File = %q, want %q", cfg.File, path)
	}
	if !cfg.Yodeck.HasToken() {
		t.Error("expected token from file")
	}
	if cfg.Yodeck.MaxConcurrent != 4 {
		t.Errorf("MaxConcurrent = %d, env should override file", cfg.Yodeck.MaxConcurrent)
	}
	if cfg.Cache.TTL != 2*time.Minute {
		t.Errorf("Cache.TTL = %v, want 2m", cfg.Cache.TTL)
	}
	if cfg.Server.Addr() != "0.0.0.0:9090" {
		t.Errorf("Addr = %q", cfg.Server.Addr())
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
}

func TestLoadFromRejectsInvalid(t *testing.T) {
	path := writeConfig(t, "yodeck:\n  token_label: only-label\n")
	_, err := LoadFrom(path)
	if err == nil || !strings.Contains(err.Error(), "must be set together") {
		t.Fatalf("expected token pairing error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad base url", func(c *Config) { c.Yodeck.BaseURL = "ftp://x" }, "YODECK_BASE_URL"},
		{"zero concurrency", func(c *Config) { c.Yodeck.MaxConcurrent = 0 }, "YODECK_MAX_CONCURRENT"},
		{"page size", func(c *Config) { c.Yodeck.PageSize = 0 }, "YODECK_PAGE_SIZE"},
		{"poll delays", func(c *Config) { c.Media.PollMaxDelay = time.Millisecond }, "poll delays"},
		{"target concurrency", func(c *Config) { c.Publish.TargetConcurrency = 0 }, "PUBLISH_TARGET_CONCURRENCY"},
		{"attempt timeout", func(c *Config) { c.Publish.AttemptTimeout = 0 }, "PUBLISH_ATTEMPT_TIMEOUT"},
		{"recovery interval", func(c *Config) { c.Publish.RecoveryInterval = -time.Second }, "PUBLISH_RECOVERY_INTERVAL"},
		{"reconcile interval", func(c *Config) { c.Reconcile.Interval = 0 }, "RECONCILE_INTERVAL"},
		{"events driver", func(c *Config) { c.Events.Driver = "kafka" }, "EVENTS_DRIVER"},
		{"nats url", func(c *Config) { c.Events.Driver = "nats"; c.Events.NATSURL = "http://x" }, "NATS_URL"},
		{"wal path", func(c *Config) { c.Events.WALEnabled = true; c.Events.WALPath = "" }, "EVENTS_WAL_PATH"},
		{"wal retries", func(c *Config) { c.Events.WALEnabled = true; c.Events.WALMaxRetries = 0 }, "EVENTS_WAL_MAX_RETRIES"},
		{"port", func(c *Config) { c.Server.Port = 70000 }, "HTTP_PORT"},
		{"log level", func(c *Config) { c.Logging.Level = "chatty" }, "LOG_LEVEL"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	t.Parallel()

	if got := envTransformFunc("YODECK_TOKEN_VALUE"); got != "yodeck.token_value" {
		t.Errorf("got %q", got)
	}
	if got := envTransformFunc("HOME"); got != "" {
		t.Errorf("unmapped variable should be ignored, got %q", got)
	}
}

func TestTokenCipher(t *testing.T) {
	t.Parallel()

	c, err := NewTokenCipher("rotate-me")
	if err != nil {
		t.Fatalf("NewTokenCipher: %v", err)
	}
	enc, err := c.Encrypt("label:value")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if strings.Contains(enc, "label:value") {
		t.Fatal("ciphertext leaks plaintext")
	}
	dec, err := c.Decrypt(enc)
	if err != nil || dec != "label:value" {
		t.Fatalf("Decrypt = %q, %v", dec, err)
	}

	other, _ := NewTokenCipher("different")
	if _, err := other.Decrypt(enc); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("wrong key error = %v, want ErrDecryptionFailed", err)
	}
	if _, err := c.Decrypt("AAAA"); !errors.Is(err, ErrCiphertextTooShort) {
		t.Errorf("short ciphertext error = %v", err)
	}
	if _, err := NewTokenCipher(""); !errors.Is(err, ErrEmptySecret) {
		t.Errorf("empty secret error = %v", err)
	}
}

func TestMaskToken(t *testing.T) {
	t.Parallel()

	tests := map[string]string{"": "", "abc": "****", "abcdefgh": "****...efgh"}
	for in, want := range tests {
		if got := MaskToken(in); got != want {
			t.Errorf("MaskToken(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWatchNotifiesOnWrite(t *testing.T) {
	path := writeConfig(t, "cache:\n  ttl: 1m\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		})
	}()

	// Give the watcher time to register before writing.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-changed:
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("Watch: %v", err)
			}
			return
		case <-tick.C:
			if err := os.WriteFile(path, []byte("cache:\n  ttl: 2m\n"), 0o600); err != nil {
				t.Fatalf("rewrite: %v", err)
			}
		case <-deadline:
			t.Fatal("no change notification within 5s")
		}
	}
}

func TestWatchRequiresPath(t *testing.T) {
	t.Parallel()

	if err := Watch(context.Background(), "", func() {}); err == nil {
		t.Error("expected error for empty path")
	}
}
