package syncqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/carebase/docvault/internal/dbx"
	"github.com/carebase/docvault/internal/vault/models"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Insert(ctx context.Context, item *models.QueueItem) (int64, error) {
	query := `INSERT INTO sync_queue (tenant_id, ciphertext, nonce, idempotency_key, status, attempt_count, retry_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query,
		item.TenantID, item.Ciphertext, item.Nonce, item.IdempotencyKey,
		item.Status, item.AttemptCount, item.RetryAt.UnixMilli(), item.CreatedAt.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to insert queue item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue id: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) Due(ctx context.Context, now time.Time, limit int) ([]*models.QueueItem, error) {
	query := `SELECT queue_id, tenant_id, ciphertext, nonce, idempotency_key, status, attempt_count, retry_at, created_at
			FROM sync_queue
			WHERE status = ? AND retry_at <= ?
			ORDER BY queue_id ASC
			LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, models.QueueStatusPending, now.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select due queue items: %w", err)
	}
	defer rows.Close()

	var result []*models.QueueItem
	for rows.Next() {
		item := &models.QueueItem{}
		var retryAt, createdAt int64
		if err := rows.Scan(&item.QueueID, &item.TenantID, &item.Ciphertext, &item.Nonce,
			&item.IdempotencyKey, &item.Status, &item.AttemptCount, &retryAt, &createdAt); err != nil {
			return nil, err
		}
		item.RetryAt = time.UnixMilli(retryAt)
		item.CreatedAt = time.UnixMilli(createdAt)
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Claim(ctx context.Context, queueID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sync_queue SET status = ? WHERE queue_id = ? AND status = ?`,
		models.QueueStatusInflight, queueID, models.QueueStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to claim queue item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *SQLiteRepository) Release(ctx context.Context, queueID int64, attemptCount int, retryAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sync_queue SET status = ?, attempt_count = ?, retry_at = ? WHERE queue_id = ?`,
		models.QueueStatusPending, attemptCount, retryAt.UnixMilli(), queueID)
	if err != nil {
		return fmt.Errorf("failed to release queue item: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkFailed(ctx context.Context, queueID int64, attemptCount int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sync_queue SET status = ?, attempt_count = ? WHERE queue_id = ?`,
		models.QueueStatusFailed, attemptCount, queueID)
	if err != nil {
		return fmt.Errorf("failed to mark queue item failed: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteByID(ctx context.Context, queueID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE queue_id = ?`, queueID)
	if err != nil {
		return fmt.Errorf("failed to delete queue item: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ResetInflight(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sync_queue SET status = ? WHERE status = ?`,
		models.QueueStatusPending, models.QueueStatusInflight)
	if err != nil {
		return 0, fmt.Errorf("failed to reset inflight queue items: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) Stats(ctx context.Context) (pending, failed int64, err error) {
	query := `SELECT
			COUNT(CASE WHEN status IN (?, ?) THEN 1 END),
			COUNT(CASE WHEN status = ? THEN 1 END)
		FROM sync_queue`
	row := r.db.QueryRowContext(ctx, query,
		models.QueueStatusPending, models.QueueStatusInflight, models.QueueStatusFailed)
	if err := row.Scan(&pending, &failed); err != nil {
		return 0, 0, fmt.Errorf("failed to get queue stats: %w", err)
	}
	return pending, failed, nil
}

func (r *SQLiteRepository) DeleteFailedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM sync_queue WHERE status = ? AND created_at < ?`,
		models.QueueStatusFailed, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old failed queue items: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sync_queue`); err != nil {
		return fmt.Errorf("failed to clear sync queue: %w", err)
	}
	return nil
}
