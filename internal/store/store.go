// Package store persists the client's durable local state in a bbolt file:
// the bearer token, the selected currency and the last exchange-rate snapshot.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/reminex/client/pkg/models"
)

// Keys under which state is stored. Each concern has its own key.
const (
	KeyToken    = "reminex.token"
	KeyCurrency = "reminex.currency"
	KeyRates    = "reminex.exchange_rates"
)

var bucketName = []byte("client")

// ErrNoSnapshot is returned by LoadRates when no snapshot was ever saved.
var ErrNoSnapshot = errors.New("store: no rate snapshot")

// Store is a bbolt-backed key/value store. It is safe for concurrent use.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the store at path, creating parent directories.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) get(key string) (string, error) {
	var out string
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketName).Get([]byte(key)); v != nil {
			out = string(v)
		}
		return nil
	})
	return out, err
}

func (s *Store) put(key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), []byte(value))
	})
}

func (s *Store) delete(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	})
}

// Token returns the stored bearer token, or "" if none.
func (s *Store) Token() (string, error) { return s.get(KeyToken) }

// SetToken stores the bearer token.
func (s *Store) SetToken(token string) error { return s.put(KeyToken, token) }

// ClearToken removes the bearer token.
func (s *Store) ClearToken() error { return s.delete(KeyToken) }

// Currency returns the stored currency preference, or "" if none.
func (s *Store) Currency() (string, error) { return s.get(KeyCurrency) }

// SetCurrency stores the currency preference.
func (s *Store) SetCurrency(code string) error { return s.put(KeyCurrency, code) }

// SaveRates overwrites the persisted rate snapshot.
func (s *Store) SaveRates(snap models.RateSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal rates: %w", err)
	}
	return s.put(KeyRates, string(data))
}

// LoadRates returns the last persisted rate snapshot.
func (s *Store) LoadRates() (models.RateSnapshot, error) {
	var snap models.RateSnapshot
	raw, err := s.get(KeyRates)
	if err != nil {
		return snap, err
	}
	if raw == "" {
		return snap, ErrNoSnapshot
	}
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return snap, fmt.Errorf("decode rate snapshot: %w", err)
	}
	return snap, nil
}
