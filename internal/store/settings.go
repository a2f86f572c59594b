package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keyCredential    = "api_key"
	keySelectedModel = "selected_model"
)

// ErrSealedCredential is returned when the stored key cannot be opened with
// the configured secret.
var ErrSealedCredential = errors.New("stored API key cannot be decrypted; set it again")

// SetSetting upserts a key-value pair.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now(),
	)
	return err
}

// Setting returns the value for key.
// Returns empty string and nil error if the key is missing.
func (s *Store) Setting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// DeleteSetting removes key. Deleting a missing key is not an error.
func (s *Store) DeleteSetting(key string) error {
	_, err := s.db.Exec(`DELETE FROM settings WHERE key = ?`, key)
	return err
}

// SetSelectedModel stores the preferred model name.
func (s *Store) SetSelectedModel(name string) error {
	return s.SetSetting(keySelectedModel, strings.TrimSpace(name))
}

// SelectedModel returns the preferred model name, or "".
func (s *Store) SelectedModel() (string, error) {
	return s.Setting(keySelectedModel)
}

// SetCredential seals and stores the API key. A blank key clears it.
func (s *Store) SetCredential(apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return s.ClearCredential()
	}
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(apiKey), &nonce, &s.key)
	return s.SetSetting(keyCredential, base64.StdEncoding.EncodeToString(sealed))
}

// StoredCredential opens the stored API key. Returns "" when none is stored.
func (s *Store) StoredCredential() (string, error) {
	enc, err := s.Setting(keyCredential)
	if err != nil || enc == "" {
		return "", err
	}
	sealed, err := base64.StdEncoding.DecodeString(enc)
	if err != nil || len(sealed) < 24 {
		return "", ErrSealedCredential
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plain, ok := secretbox.Open(nil, sealed[24:], &nonce, &s.key)
	if !ok {
		return "", ErrSealedCredential
	}
	return string(plain), nil
}

// ClearCredential removes the stored API key.
func (s *Store) ClearCredential() error {
	return s.DeleteSetting(keyCredential)
}

// Credential implements model.CredentialProvider using only the stored key.
func (s *Store) Credential(context.Context) (string, error) {
	return s.StoredCredential()
}

// ChainProvider resolves the API key from the store first, then falls back
// to the key given in configuration or the environment.
type ChainProvider struct {
	Store    *Store
	Fallback string
}

// Credential implements model.CredentialProvider.
func (c ChainProvider) Credential(ctx context.Context) (string, error) {
	if c.Store != nil {
		key, err := c.Store.Credential(ctx)
		if err != nil && !errors.Is(err, ErrSealedCredential) {
			return "", err
		}
		if key != "" {
			return key, nil
		}
	}
	return strings.TrimSpace(c.Fallback), nil
}

// Source reports where the active key comes from: "stored", "environment" or "".
func (c ChainProvider) Source(ctx context.Context) string {
	if c.Store != nil {
		if key, err := c.Store.Credential(ctx); err == nil && key != "" {
			return "stored"
		}
	}
	if strings.TrimSpace(c.Fallback) != "" {
		return "environment"
	}
	return ""
}

// Mask hides all but the last four characters of a key.
func Mask(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", 8) + key[len(key)-4:]
}
