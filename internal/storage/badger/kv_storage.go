package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/interfaces"
	"github.com/timshannon/badgerhold/v4"
)

// KVStorage implements the KeyValueStorage interface for Badger
type KVStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewKVStorage creates a new KVStorage instance
func NewKVStorage(db *BadgerDB, logger arbor.ILogger) interfaces.KeyValueStorage {
	return &KVStorage{
		db:     db,
		logger: logger,
	}
}

// normalizeKey converts a key to lowercase for case-insensitive storage
func (s *KVStorage) normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Get retrieves a value by key (case-insensitive)
func (s *KVStorage) Get(ctx context.Context, key string) (string, error) {
	entry, err := s.GetEntry(ctx, key)
	if err != nil {
		return "", err
	}
	return entry.Value, nil
}

// GetEntry retrieves a value with its timestamps (case-insensitive)
func (s *KVStorage) GetEntry(ctx context.Context, key string) (*interfaces.Entry, error) {
	var entry interfaces.Entry
	err := s.db.Store().Get(s.normalizeKey(key), &entry)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, interfaces.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}

	return &entry, nil
}

// Set inserts or updates one entry (case-insensitive)
func (s *KVStorage) Set(ctx context.Context, key, value, note string) error {
	return s.db.Store().Badger().Update(func(tx *badgerdb.Txn) error {
		return s.txSet(tx, key, value, note, time.Now())
	})
}

// SetMany writes all values in one transaction so readers never see half a credential pair
func (s *KVStorage) SetMany(ctx context.Context, values map[string]string) error {
	now := time.Now()
	err := s.db.Store().Badger().Update(func(tx *badgerdb.Txn) error {
		for key, value := range values {
			if err := s.txSet(tx, key, value, "", now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set %d keys: %w", len(values), err)
	}
	return nil
}

func (s *KVStorage) txSet(tx *badgerdb.Txn, key, value, note string, now time.Time) error {
	normalizedKey := s.normalizeKey(key)

	entry := interfaces.Entry{
		Key:       normalizedKey,
		Value:     value,
		Note:      note,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Keep CreatedAt and the note of an existing entry
	var existing interfaces.Entry
	err := s.db.Store().TxGet(tx, normalizedKey, &existing)
	switch {
	case err == nil:
		entry.CreatedAt = existing.CreatedAt
		if note == "" {
			entry.Note = existing.Note
		}
	case !errors.Is(err, badgerhold.ErrNotFound):
		return fmt.Errorf("failed to check key %s: %w", normalizedKey, err)
	}

	if err := s.db.Store().TxUpsert(tx, normalizedKey, &entry); err != nil {
		return fmt.Errorf("failed to set key/value: %w", err)
	}
	return nil
}

// Delete removes one entry (case-insensitive). Absent keys are ignored.
func (s *KVStorage) Delete(ctx context.Context, key string) error {
	return s.DeleteMany(ctx, key)
}

// DeleteMany removes the given keys in one transaction
func (s *KVStorage) DeleteMany(ctx context.Context, keys ...string) error {
	err := s.db.Store().Badger().Update(func(tx *badgerdb.Txn) error {
		for _, key := range keys {
			err := s.db.Store().TxDelete(tx, s.normalizeKey(key), &interfaces.Entry{})
			if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

// Entries returns all stored entries ordered by key
func (s *KVStorage) Entries(ctx context.Context) ([]interfaces.Entry, error) {
	var entries []interfaces.Entry
	err := s.db.Store().Find(&entries, badgerhold.Where("Key").Ne("").SortBy("Key"))
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	return entries, nil
}
