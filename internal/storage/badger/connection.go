package badger

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/common"
	"github.com/timshannon/badgerhold/v4"
)

// ErrStoreLocked is returned when another leadwatch process keeps the store
// open for longer than lock_wait
var ErrStoreLocked = errors.New("credential store is in use by another leadwatch process")

const lockRetryInterval = 100 * time.Millisecond

// BadgerDB is the client-local credential store
type BadgerDB struct {
	store  *badgerhold.Store
	logger arbor.ILogger
	path   string
}

// NewBadgerDB opens the store at config.Path. The directory holds tokens, so
// it is created owner-only. While `serve` (or another command) holds the
// directory lock, opening is retried until lock_wait elapses.
func NewBadgerDB(logger arbor.ILogger, config *common.BadgerConfig) (*BadgerDB, error) {
	if config.ResetOnStartup {
		if err := forget(config.Path); err != nil {
			logger.Warn().Err(err).Str("path", config.Path).Msg("Stored credentials not removed")
		} else {
			logger.Debug().Str("path", config.Path).Msg("Stored credentials removed (reset_on_startup)")
		}
	}

	if err := os.MkdirAll(config.Path, 0700); err != nil {
		return nil, fmt.Errorf("create credential store %s: %w", config.Path, err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = config.Path
	options.ValueDir = config.Path
	options.Logger = nil // arbor only

	wait := common.ParseDuration(config.LockWait, 2*time.Second)
	deadline := time.Now().Add(wait)
	attempts := 0
	for {
		attempts++
		store, err := badgerhold.Open(options)
		if err == nil {
			logger.Debug().
				Str("path", config.Path).
				Int("attempts", attempts).
				Msg("Credential store opened")
			return &BadgerDB{store: store, logger: logger, path: config.Path}, nil
		}

		if !isLockError(err) {
			return nil, fmt.Errorf("open credential store %s: %w", config.Path, err)
		}
		if !time.Now().Before(deadline) {
			logger.Warn().
				Str("path", config.Path).
				Str("lock_wait", wait.String()).
				Int("attempts", attempts).
				Msg("Credential store still locked")
			return nil, fmt.Errorf("%w (%s)", ErrStoreLocked, config.Path)
		}
		time.Sleep(lockRetryInterval)
	}
}

// forget removes a previous store; a missing directory is not an error
func forget(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return os.RemoveAll(path)
}

// isLockError matches badger's directory lock failure, which is not exported
// as a sentinel
func isLockError(err error) bool {
	return strings.Contains(err.Error(), "directory lock")
}

// Path is the store directory
func (b *BadgerDB) Path() string {
	return b.path
}

// Store returns the underlying badgerhold store
func (b *BadgerDB) Store() *badgerhold.Store {
	return b.store
}

// Close releases the directory lock
func (b *BadgerDB) Close() error {
	if b.store == nil {
		return nil
	}
	err := b.store.Close()
	b.store = nil
	return err
}
