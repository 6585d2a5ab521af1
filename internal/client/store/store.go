package store

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/tabchat/internal/client/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface of the client database. It exposes
// sub-repositories per concern. Drivers hand out repositories bound to either
// the database or the current transaction so callers cannot nest transactions
// by accident.
type Store interface {
	Preferences() Preferences
	Messages() Messages
	Friends() Friends

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. It commits when fn returns nil
	// and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases the underlying database handle.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// Preferences is a flat string key/value table. Writes are single row
// upserts so a value is either fully replaced or left alone.
type Preferences interface {
	// GetPreference returns the value stored under key, or ErrNotFound.
	GetPreference(ctx context.Context, key string) (string, error)

	// PutPreference inserts or replaces the value under key.
	PutPreference(ctx context.Context, key, value string) error

	// DeletePreference removes key. Deleting a missing key is not an error.
	DeletePreference(ctx context.Context, key string) error

	// ClearPreferences removes every key.
	ClearPreferences(ctx context.Context) error
}

type Messages interface {
	// InsertMessage stores m and returns its local row id.
	InsertMessage(ctx context.Context, m domain.Message) (int64, error)

	// GetMessage returns a message by local id, or ErrNotFound.
	GetMessage(ctx context.Context, id int64) (domain.Message, error)

	// ListConversation returns up to limit messages exchanged with peer,
	// newest first.
	ListConversation(ctx context.Context, peer string, limit int) ([]domain.Message, error)
}

type Friends interface {
	// ListFriends returns every friend ordered by username, each with the
	// latest message exchanged with them.
	ListFriends(ctx context.Context) ([]domain.FriendRepresentation, error)

	// GetFriend returns a friend by username, or ErrNotFound.
	GetFriend(ctx context.Context, username string) (domain.Friend, error)

	// InsertFriend stores f and returns its row id. A duplicate username
	// yields ErrAlreadyExists.
	InsertFriend(ctx context.Context, f domain.Friend) (int64, error)
}
