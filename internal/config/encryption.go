// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Integration tokens are encrypted at rest with AES-256-GCM under a key
// derived from CREDENTIALS_SECRET via HKDF-SHA256. Ciphertext layout is
// base64(nonce || sealed).
const (
	tokenEncryptionSalt = "screenline-integration-credentials"
	tokenEncryptionInfo = "token-encryption-v1"
	aesKeySize          = 32
	gcmNonceSize        = 12
)

var (
	ErrEmptySecret        = errors.New("credential secret cannot be empty")
	ErrEmptyPlaintext     = errors.New("plaintext cannot be empty")
	ErrEmptyCiphertext    = errors.New("ciphertext cannot be empty")
	ErrDecryptionFailed   = errors.New("decryption failed: invalid ciphertext or authentication tag")
	ErrInvalidCiphertext  = errors.New("invalid ciphertext format")
	ErrCiphertextTooShort = errors.New("ciphertext too short")
)

// TokenCipher encrypts and decrypts integration tokens.
type TokenCipher struct {
	aead cipher.AEAD
}

// NewTokenCipher derives the AES key from secret.
func NewTokenCipher(secret string) (*TokenCipher, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	key := make([]byte, aesKeySize)
	r := hkdf.New(sha256.New, []byte(secret), []byte(tokenEncryptionSalt), []byte(tokenEncryptionInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &TokenCipher{aead: gcm}, nil
}

// Encrypt seals plaintext with a random nonce.
func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPlaintext
	}
	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func (c *TokenCipher) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", ErrEmptyCiphertext
	}
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	if len(data) < gcmNonceSize+1+c.aead.Overhead() {
		return "", ErrCiphertextTooShort
	}
	plaintext, err := c.aead.Open(nil, data[:gcmNonceSize], data[gcmNonceSize:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// MaskToken hides all but the last four characters of a token for logs.
func MaskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 4 {
		return "****"
	}
	return "****..." + token[len(token)-4:]
}
