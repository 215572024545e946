package documents

import (
	"context"
	"database/sql"
	"errors"
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

func (r *SQLiteRepository) Upsert(ctx context.Context, rec *models.DocumentRecord) error {
	query := `INSERT INTO documents (id, tenant_id, ciphertext, nonce, status, template_type, created_at, updated_at, expires_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				ciphertext = excluded.ciphertext,
				nonce = excluded.nonce,
				status = excluded.status,
				template_type = excluded.template_type,
				updated_at = excluded.updated_at,
				expires_at = excluded.expires_at
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.TenantID, rec.Ciphertext, rec.Nonce, rec.Status, rec.TemplateType,
		rec.CreatedAt.UnixMilli(), rec.UpdatedAt.UnixMilli(), rec.ExpiresAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.DocumentRecord, error) {
	query := `SELECT id, tenant_id, ciphertext, nonce, status, template_type, created_at, updated_at, expires_at
			FROM documents WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)

	rec := &models.DocumentRecord{}
	var createdAt, updatedAt, expiresAt int64
	err := row.Scan(&rec.ID, &rec.TenantID, &rec.Ciphertext, &rec.Nonce, &rec.Status,
		&rec.TemplateType, &createdAt, &updatedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	rec.CreatedAt = time.UnixMilli(createdAt)
	rec.UpdatedAt = time.UnixMilli(updatedAt)
	rec.ExpiresAt = time.UnixMilli(expiresAt)
	return rec, nil
}

func (r *SQLiteRepository) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListByStatus(ctx context.Context, tenantID, status string, now time.Time) ([]models.DocumentMeta, error) {
	query := `SELECT id, tenant_id, status, template_type, created_at, updated_at, expires_at
			FROM documents WHERE tenant_id = ? AND status = ? AND expires_at >= ?
			ORDER BY updated_at DESC`
	rows, err := r.db.QueryContext(ctx, query, tenantID, status, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var result []models.DocumentMeta
	for rows.Next() {
		var m models.DocumentMeta
		var createdAt, updatedAt, expiresAt int64
		if err := rows.Scan(&m.ID, &m.TenantID, &m.Status, &m.TemplateType, &createdAt, &updatedAt, &expiresAt); err != nil {
			return nil, err
		}
		m.CreatedAt = time.UnixMilli(createdAt)
		m.UpdatedAt = time.UnixMilli(updatedAt)
		m.ExpiresAt = time.UnixMilli(expiresAt)
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE expires_at < ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired documents: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("failed to clear documents: %w", err)
	}
	return nil
}
