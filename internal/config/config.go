// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

// Package config loads Screenline configuration.
//
// Sources are layered with koanf, later sources overriding earlier ones:
//
//  1. Built-in defaults (defaultConfig)
//  2. YAML file: CONFIG_PATH, then DefaultConfigPaths
//  3. Environment variables (see envMappings)
//
// The signage API token may be supplied here for single-tenant deployments.
// Multi-tenant and rotated credentials live in the encrypted credential store.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Config is the root configuration.
type Config struct {
	Yodeck      YodeckConfig      `koanf:"yodeck"`
	Cache       CacheConfig       `koanf:"cache"`
	Media       MediaConfig       `koanf:"media"`
	Publish     PublishConfig     `koanf:"publish"`
	Reconcile   ReconcileConfig   `koanf:"reconcile"`
	Database    DatabaseConfig    `koanf:"database"`
	Credentials CredentialsConfig `koanf:"credentials"`
	Events      EventsConfig      `koanf:"events"`
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`

	// File is the config file that was loaded, if any.
	File string `koanf:"-"`
}

// YodeckConfig configures the signage API gateway.
type YodeckConfig struct {
	BaseURL       string        `koanf:"base_url"`
	TokenLabel    string        `koanf:"token_label"`
	TokenValue    string        `koanf:"token_value"`
	MaxConcurrent int           `koanf:"max_concurrent"`
	Timeout       time.Duration `koanf:"timeout"`
	UploadTimeout time.Duration `koanf:"upload_timeout"`
	MaxRetries    int           `koanf:"max_retries"`
	RetryBase     time.Duration `koanf:"retry_base_delay"`
	PageSize      int           `koanf:"page_size"`

	// RequestsPerSecond paces outgoing requests; 0 disables pacing.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`

	BreakerMaxFailures uint32        `koanf:"breaker_max_failures"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout"`
}

// HasToken reports whether a static API token is configured.
func (y YodeckConfig) HasToken() bool {
	return y.TokenLabel != "" && y.TokenValue != ""
}

// CacheConfig configures the per-entity TTL caches.
type CacheConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

// MediaConfig configures media readiness polling.
type MediaConfig struct {
	PollInitialDelay time.Duration `koanf:"poll_initial_delay"`
	PollMaxDelay     time.Duration `koanf:"poll_max_delay"`
	PollAttempts     int           `koanf:"poll_attempts"`
	HasFileInterval  time.Duration `koanf:"has_file_interval"`
	HasFileTimeout   time.Duration `koanf:"has_file_timeout"`
}

// PublishConfig configures the publish orchestrator.
type PublishConfig struct {
	TargetConcurrency int           `koanf:"target_concurrency"`
	PushAfterPublish  bool          `koanf:"push_after_publish"`
	UseDownloadSlots  bool          `koanf:"use_download_timeslots"`
	ItemDuration      int           `koanf:"item_duration_seconds"`
	AttemptTimeout    time.Duration `koanf:"attempt_timeout"`
	// RecoveryInterval is how often plans stuck in PUBLISHING are swept.
	RecoveryInterval time.Duration `koanf:"recovery_interval"`
}

// ReconcileConfig configures the truth reconciler.
type ReconcileConfig struct {
	Enabled        bool          `koanf:"enabled"`
	Interval       time.Duration `koanf:"interval"`
	PushOnSchedule bool          `koanf:"push_on_schedule"`
	PushOnTrigger  bool          `koanf:"push_on_trigger"`
}

// DatabaseConfig configures the DuckDB store.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
}

// CredentialsConfig configures the encrypted credential store.
type CredentialsConfig struct {
	StorePath string `koanf:"store_path"`
	InMemory  bool   `koanf:"in_memory"`
	Secret    string `koanf:"secret"`
}

// EventsConfig configures the plan event bus.
type EventsConfig struct {
	Driver        string        `koanf:"driver"` // gochannel or nats
	NATSURL       string        `koanf:"nats_url"`
	Topic         string        `koanf:"topic"`
	QueueGroup    string        `koanf:"queue_group"`
	MaxReconnects int           `koanf:"max_reconnects"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`

	// WAL keeps plan events in BadgerDB until the bus accepts them.
	WALEnabled       bool          `koanf:"wal_enabled"`
	WALPath          string        `koanf:"wal_path"`
	WALRetryInterval time.Duration `koanf:"wal_retry_interval"`
	WALMaxRetries    int           `koanf:"wal_max_retries"`
	WALEntryTTL      time.Duration `koanf:"wal_entry_ttl"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port"`
	Timeout           time.Duration `koanf:"timeout"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/screenline/config.yaml",
	"/etc/screenline/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Yodeck: YodeckConfig{
			BaseURL:            "https://app.yodeck.com/api/v2",
			MaxConcurrent:      5,
			Timeout:            15 * time.Second,
			UploadTimeout:      30 * time.Second,
			MaxRetries:         3,
			RetryBase:          time.Second,
			PageSize:           100,
			RequestsPerSecond:  0,
			Burst:              5,
			BreakerMaxFailures: 5,
			BreakerTimeout:     30 * time.Second,
		},
		Cache: CacheConfig{
			TTL: 10 * time.Minute,
		},
		Media: MediaConfig{
			PollInitialDelay: 300 * time.Millisecond,
			PollMaxDelay:     3 * time.Second,
			PollAttempts:     6,
			HasFileInterval:  2 * time.Second,
			HasFileTimeout:   60 * time.Second,
		},
		Publish: PublishConfig{
			TargetConcurrency: 5,
			PushAfterPublish:  true,
			UseDownloadSlots:  false,
			ItemDuration:      15,
			AttemptTimeout:    10 * time.Minute,
			RecoveryInterval:  time.Minute,
		},
		Reconcile: ReconcileConfig{
			Enabled:        true,
			Interval:       15 * time.Minute,
			PushOnSchedule: false,
			PushOnTrigger:  true,
		},
		Database: DatabaseConfig{
			Path:      "/data/screenline.duckdb",
			MaxMemory: "512MB",
		},
		Credentials: CredentialsConfig{
			StorePath: "/data/credentials",
		},
		Events: EventsConfig{
			Driver:        "gochannel",
			NATSURL:       "nats://127.0.0.1:4222",
			Topic:         "screenline.plans",
			QueueGroup:    "screenline",
			MaxReconnects: 10,
			ReconnectWait: 2 * time.Second,

			WALEnabled:       false,
			WALPath:          "/data/events-wal",
			WALRetryInterval: 30 * time.Second,
			WALMaxRetries:    20,
			WALEntryTTL:      24 * time.Hour,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8470,
			Timeout:         120 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from CONFIG_PATH or the default locations.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom reads configuration using path as the YAML file. An empty path
// falls back to CONFIG_PATH and DefaultConfigPaths.
func LoadFrom(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	cfg.File = path

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// sliceConfigPaths may arrive from the environment as comma-separated strings.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

var envMappings = map[string]string{
	"yodeck_base_url":             "yodeck.base_url",
	"yodeck_token_label":          "yodeck.token_label",
	"yodeck_token_value":          "yodeck.token_value",
	"yodeck_max_concurrent":       "yodeck.max_concurrent",
	"yodeck_timeout":              "yodeck.timeout",
	"yodeck_upload_timeout":       "yodeck.upload_timeout",
	"yodeck_max_retries":          "yodeck.max_retries",
	"yodeck_retry_base_delay":     "yodeck.retry_base_delay",
	"yodeck_page_size":            "yodeck.page_size",
	"yodeck_requests_per_second":  "yodeck.requests_per_second",
	"yodeck_burst":                "yodeck.burst",
	"yodeck_breaker_max_failures": "yodeck.breaker_max_failures",
	"yodeck_breaker_timeout":      "yodeck.breaker_timeout",

	"cache_ttl": "cache.ttl",

	"media_poll_initial_delay": "media.poll_initial_delay",
	"media_poll_max_delay":     "media.poll_max_delay",
	"media_poll_attempts":      "media.poll_attempts",
	"media_has_file_interval":  "media.has_file_interval",
	"media_has_file_timeout":   "media.has_file_timeout",

	"publish_target_concurrency":     "publish.target_concurrency",
	"publish_push_after_publish":     "publish.push_after_publish",
	"publish_use_download_timeslots": "publish.use_download_timeslots",
	"publish_item_duration_seconds":  "publish.item_duration_seconds",
	"publish_attempt_timeout":        "publish.attempt_timeout",
	"publish_recovery_interval":      "publish.recovery_interval",

	"reconcile_enabled":          "reconcile.enabled",
	"reconcile_interval":         "reconcile.interval",
	"reconcile_push_on_schedule": "reconcile.push_on_schedule",
	"reconcile_push_on_trigger":  "reconcile.push_on_trigger",

	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",

	"credentials_store_path": "credentials.store_path",
	"credentials_in_memory":  "credentials.in_memory",
	"credentials_secret":     "credentials.secret",

	"events_driver":       "events.driver",
	"nats_url":            "events.nats_url",
	"events_topic":        "events.topic",
	"events_queue_group":  "events.queue_group",
	"nats_max_reconnects": "events.max_reconnects",
	"nats_reconnect_wait": "events.reconnect_wait",

	"events_wal_enabled":        "events.wal_enabled",
	"events_wal_path":           "events.wal_path",
	"events_wal_retry_interval": "events.wal_retry_interval",
	"events_wal_max_retries":    "events.wal_max_retries",
	"events_wal_entry_ttl":      "events.wal_entry_ttl",

	"http_host":           "server.host",
	"http_port":           "server.port",
	"http_timeout":        "server.timeout",
	"cors_origins":        "server.cors_origins",
	"rate_limit_requests": "server.rate_limit_reqs",
	"rate_limit_window":   "server.rate_limit_window",
	"disable_rate_limit":  "server.rate_limit_disabled",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable to its koanf path. Unknown
// variables map to "" and are ignored.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
