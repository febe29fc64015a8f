// -----------------------------------------------------------------------
// Last Modified: Monday, 19th October 2026 10:05:44 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned for keys that were never written or were deleted
var ErrKeyNotFound = errors.New("key not found")

// Entry is one stored value. Keys are case-insensitive and stored lowercase.
type Entry struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// KeyValueStorage is the client-local store behind the session: the
// credential pair, the selected workspace and scheduler bookkeeping.
// Multi-key writes and deletes are atomic so a reader never sees half a
// credential pair.
type KeyValueStorage interface {
	Get(ctx context.Context, key string) (string, error)
	// GetEntry also returns when the value was written; ErrKeyNotFound if absent
	GetEntry(ctx context.Context, key string) (*Entry, error)

	// Set writes one value. An empty note keeps the previous one.
	Set(ctx context.Context, key, value, note string) error
	SetMany(ctx context.Context, values map[string]string) error

	// Delete and DeleteMany ignore absent keys
	Delete(ctx context.Context, key string) error
	DeleteMany(ctx context.Context, keys ...string) error

	// Entries returns every stored entry ordered by key
	Entries(ctx context.Context) ([]Entry, error)
}
