package store

import (
	"context"
	"errors"
	"time"

	"presenced/internal/models"
)

// ErrNotFound is returned by Load when a user has no offline presence row.
var ErrNotFound = errors.New("offline presence not found")

// OfflineStore is the durable key-value store for offline presence rows.
// A row may hold a nil payload with a valid timestamp: the user went offline
// without leaving any status to show.
type OfflineStore interface {
	Load(ctx context.Context, username string) (models.OfflinePresenceRecord, error)
	Insert(ctx context.Context, username string, payload []byte, at time.Time) error
	Delete(ctx context.Context, username string) error
	Ping(ctx context.Context) error
	Close() error
}
