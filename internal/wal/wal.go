// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package wal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/screenline/internal/config"
	"github.com/tomtom215/screenline/internal/events"
	"github.com/tomtom215/screenline/internal/logging"
)

var (
	// ErrClosed is returned by operations on a closed WAL.
	ErrClosed = errors.New("wal closed")

	// ErrEntryNotFound is returned when confirming an unknown entry.
	ErrEntryNotFound = errors.New("wal entry not found")

	// ErrNilEvent is returned when writing a nil event.
	ErrNilEvent = errors.New("wal: nil event")
)

const prefixPending = "pending:"

// Entry is a plan event the bus has not accepted yet.
type Entry struct {
	ID            string            `json:"id"`
	Event         *events.PlanEvent `json:"event"`
	CreatedAt     time.Time         `json:"created_at"`
	Attempts      int               `json:"attempts"`
	LastAttemptAt time.Time         `json:"last_attempt_at,omitempty"`
	LastError     string            `json:"last_error,omitempty"`
}

// Config configures the WAL and its retry service.
type Config struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path     string
	InMemory bool

	// SyncWrites fsyncs every write.
	SyncWrites bool

	// RetryInterval is the time between retry passes and the base of the
	// per-entry backoff. Default: 30s
	RetryInterval time.Duration

	// MaxBackoff caps the per-entry backoff. Default: 5m
	MaxBackoff time.Duration

	// MaxRetries is the number of failed attempts before an entry is
	// discarded. Default: 20
	MaxRetries int

	// EntryTTL is how long an entry may stay pending. Default: 24h
	EntryTTL time.Duration
}

// ConfigFrom maps the events config section.
func ConfigFrom(cfg config.EventsConfig) Config {
	return Config{
		Path:          cfg.WALPath,
		SyncWrites:    true,
		RetryInterval: cfg.WALRetryInterval,
		MaxRetries:    cfg.WALMaxRetries,
		EntryTTL:      cfg.WALEntryTTL,
	}
}

func (c *Config) applyDefaults() {
	if c.RetryInterval <= 0 {
		c.RetryInterval = 30 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Minute
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 20
	}
	if c.EntryTTL <= 0 {
		c.EntryTTL = 24 * time.Hour
	}
}

// Option configures a WAL.
type Option func(*WAL)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(w *WAL) { w.now = now }
}

// WAL stores pending plan events in BadgerDB.
type WAL struct {
	db  *badger.DB
	cfg Config
	now func() time.Time

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the WAL described by cfg.
func Open(cfg Config, opts ...Option) (*WAL, error) {
	cfg.applyDefaults()
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("wal: path is required")
	}

	bopts := badger.DefaultOptions(cfg.Path).WithSyncWrites(cfg.SyncWrites).WithLogger(nil)
	if cfg.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open WAL: %w", err)
	}

	w := &WAL{db: db, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("Event WAL opened")
	return w, nil
}

// Config returns the effective configuration.
func (w *WAL) Config() Config { return w.cfg }

func (w *WAL) checkOpen() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrClosed
	}
	return nil
}

// Write persists ev and returns its entry id, the event id when set.
func (w *WAL) Write(_ context.Context, ev *events.PlanEvent) (string, error) {
	if err := w.checkOpen(); err != nil {
		return "", err
	}
	if ev == nil {
		return "", ErrNilEvent
	}

	id := ev.ID
	if id == "" {
		id = uuid.New().String()
	}
	entry := &Entry{ID: id, Event: ev, CreatedAt: w.now().UTC()}
	if err := w.put(entry); err != nil {
		return "", err
	}
	return id, nil
}

func (w *WAL) put(entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode WAL entry: %w", err)
	}
	if err := w.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixPending+entry.ID), data)
	}); err != nil {
		return fmt.Errorf("write WAL entry: %w", err)
	}
	return nil
}

func (w *WAL) get(txn *badger.Txn, id string) (*Entry, error) {
	item, err := txn.Get([]byte(prefixPending + id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read WAL entry: %w", err)
	}
	var entry Entry
	if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &entry) }); err != nil {
		return nil, fmt.Errorf("decode WAL entry %s: %w", id, err)
	}
	return &entry, nil
}

// Confirm removes an entry the bus accepted.
func (w *WAL) Confirm(_ context.Context, id string) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	return w.db.Update(func(txn *badger.Txn) error {
		if _, err := w.get(txn, id); err != nil {
			return err
		}
		return txn.Delete([]byte(prefixPending + id))
	})
}

// Discard removes an entry that will not be retried. Unknown ids are ignored.
func (w *WAL) Discard(_ context.Context, id string) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	return w.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(prefixPending + id))
	})
}

// RecordAttempt stores a failed publish attempt on the entry.
func (w *WAL) RecordAttempt(_ context.Context, id string, cause error) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	return w.db.Update(func(txn *badger.Txn) error {
		entry, err := w.get(txn, id)
		if err != nil {
			return err
		}
		entry.Attempts++
		entry.LastAttemptAt = w.now().UTC()
		if cause != nil {
			entry.LastError = cause.Error()
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encode WAL entry: %w", err)
		}
		return txn.Set([]byte(prefixPending+id), data)
	})
}

// Pending returns every pending entry, oldest first.
func (w *WAL) Pending(ctx context.Context) ([]*Entry, error) {
	if err := w.checkOpen(); err != nil {
		return nil, err
	}

	var entries []*Entry
	err := w.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixPending)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var entry Entry
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &entry) }); err != nil {
				logging.Warn().Err(err).Str("key", string(it.Item().Key())).Msg("Skipping undecodable WAL entry")
				continue
			}
			entries = append(entries, &entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list WAL entries: %w", err)
	}

	// Keys are uuids, so restore write order.
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].CreatedAt.Before(entries[j].CreatedAt) })
	return entries, nil
}

// Close closes the underlying database.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.db.Close()
}
