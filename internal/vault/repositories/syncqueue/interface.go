package syncqueue

import (
	"context"
	"time"

	"github.com/carebase/docvault/internal/vault/models"
)

// Repository describes storage operations for the durable outbound queue.
//
// The queue is drained concurrently by several triggers (timer, connectivity
// event, post-enqueue hint). Claim is the concurrency primitive: it flips an
// item from pending to inflight in a single statement and reports whether
// this caller won, so two concurrent drains never double-submit one item.
type Repository interface {
	// Insert appends a new pending item and returns its queue id.
	Insert(ctx context.Context, item *models.QueueItem) (int64, error)

	// Due returns up to limit pending items with retry_at <= now, oldest
	// first by queue id.
	Due(ctx context.Context, now time.Time, limit int) ([]*models.QueueItem, error)

	// Claim transitions an item from pending to inflight. Returns false if
	// the item was already claimed, deleted or failed.
	Claim(ctx context.Context, queueID int64) (bool, error)

	// Release returns a claimed item to pending with updated retry
	// bookkeeping.
	Release(ctx context.Context, queueID int64, attemptCount int, retryAt time.Time) error

	// MarkFailed transitions an item to terminal failed.
	MarkFailed(ctx context.Context, queueID int64, attemptCount int) error

	// DeleteByID removes an item. Absent ids are not an error.
	DeleteByID(ctx context.Context, queueID int64) error

	// ResetInflight returns all inflight items to pending. Called once at
	// open to recover items orphaned by a crash mid-drain.
	ResetInflight(ctx context.Context) (int64, error)

	// Stats returns the number of pending (incl. inflight) and failed items.
	Stats(ctx context.Context) (pending, failed int64, err error)

	// DeleteFailedBefore removes terminal failed items created before the
	// cutoff. Pending items are never swept.
	DeleteFailedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteAll wipes the table. Used by crypto-shred and salt recovery.
	DeleteAll(ctx context.Context) error
}
