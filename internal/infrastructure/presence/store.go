package presence

import (
	"context"

	"scrapmart/internal/domain/entity"
)

// Store tracks which users currently have a live realtime connection.
// A user has at most one entry; registering again replaces the previous entry.
type Store interface {
	Register(ctx context.Context, entry entity.PresenceEntry) error
	// Unregister removes the user's entry unconditionally. No-op if absent.
	Unregister(ctx context.Context, userID string) error
	// Release removes the user's entry only while it still belongs to connectionID,
	// so a replaced connection closing late does not mark the user offline.
	Release(ctx context.Context, userID, connectionID string) (bool, error)
	// Touch extends the entry's lifetime for stores that expire entries.
	Touch(ctx context.Context, userID, connectionID string) error
	IsOnline(ctx context.Context, userID string) (bool, error)
	Get(ctx context.Context, userID string) (*entity.PresenceEntry, bool, error)
}
