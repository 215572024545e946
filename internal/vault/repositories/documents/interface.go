package documents

import (
	"context"
	"time"

	"github.com/carebase/docvault/internal/vault/models"
)

// Repository describes storage operations for encrypted document records.
// Implementations are backed by the local SQLite database.
type Repository interface {
	// Upsert inserts a new record or replaces an existing one by id.
	Upsert(ctx context.Context, rec *models.DocumentRecord) error

	// GetByID returns a record by id, or nil if absent. Expiry is not
	// evaluated here; callers decide what to do with an expired record.
	GetByID(ctx context.Context, id string) (*models.DocumentRecord, error)

	// DeleteByID removes a record. Deleting an absent id is not an error.
	DeleteByID(ctx context.Context, id string) error

	// ListByStatus returns cleartext metadata for all unexpired records of a
	// tenant with the given status. No ciphertext is loaded.
	ListByStatus(ctx context.Context, tenantID, status string, now time.Time) ([]models.DocumentMeta, error)

	// DeleteExpired removes every record whose expires_at is before now and
	// reports how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// DeleteAll wipes the table. Used by crypto-shred and salt recovery.
	DeleteAll(ctx context.Context) error
}
