// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

// Package credentials persists the Yodeck integration token in BadgerDB,
// encrypted with AES-256-GCM under a key derived from the configured secret.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/screenline/internal/config"
	"github.com/tomtom215/screenline/internal/signage"
)

const yodeckKey = "integration:yodeck"

// ErrInvalidCredentials is returned when a label or value is empty.
var ErrInvalidCredentials = errors.New("token label and value are required")

// record is the stored form. The token value never touches disk in clear.
type record struct {
	Label          string    `json:"label"`
	EncryptedValue string    `json:"encrypted_value"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Status describes the stored credentials without revealing them.
type Status struct {
	Configured  bool       `json:"configured"`
	Label       string     `json:"label,omitempty"`
	MaskedValue string     `json:"masked_value,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// Store is a signage.CredentialSource backed by BadgerDB.
type Store struct {
	db     *badger.DB
	cipher *config.TokenCipher
	owned  bool
}

// Open opens (or creates) the store described by cfg.
func Open(cfg config.CredentialsConfig) (*Store, error) {
	cipher, err := config.NewTokenCipher(cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("credential cipher: %w", err)
	}

	opts := badger.DefaultOptions(cfg.StorePath).WithLogger(nil)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	return &Store{db: db, cipher: cipher, owned: true}, nil
}

// NewStore wraps an already open database.
func NewStore(db *badger.DB, cipher *config.TokenCipher) *Store {
	return &Store{db: db, cipher: cipher}
}

// Close closes the database if Open created it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// Set stores credentials, replacing any previous ones.
func (s *Store) Set(_ context.Context, label, value string) error {
	if label == "" || value == "" {
		return ErrInvalidCredentials
	}
	enc, err := s.cipher.Encrypt(value)
	if err != nil {
		return fmt.Errorf("encrypt token: %w", err)
	}
	data, err := json.Marshal(record{Label: label, EncryptedValue: enc, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(yodeckKey), data)
	})
}

// Delete removes stored credentials.
func (s *Store) Delete(_ context.Context) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(yodeckKey))
	})
}

func (s *Store) get() (*record, error) {
	var rec record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(yodeckKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	return &rec, nil
}

// Load implements signage.CredentialSource.
func (s *Store) Load(_ context.Context) (*signage.Credentials, error) {
	rec, err := s.get()
	if err != nil || rec == nil {
		return nil, err
	}
	value, err := s.cipher.Decrypt(rec.EncryptedValue)
	if err != nil {
		return nil, fmt.Errorf("decrypt token: %w", err)
	}
	return &signage.Credentials{Label: rec.Label, Value: value}, nil
}

// Status reports what is stored, masking the token.
func (s *Store) Status(ctx context.Context) (Status, error) {
	rec, err := s.get()
	if err != nil || rec == nil {
		return Status{}, err
	}
	creds, err := s.Load(ctx)
	if err != nil {
		return Status{}, err
	}
	updated := rec.UpdatedAt
	return Status{
		Configured:  true,
		Label:       rec.Label,
		MaskedValue: config.MaskToken(creds.Value),
		UpdatedAt:   &updated,
	}, nil
}
