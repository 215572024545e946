// Package models defines the persisted records of the vault stores.
//
// Only the ciphertext columns carry sensitive data; every other field is
// deliberately cleartext so the store can be filtered and swept without
// paying the decryption cost.
package models

import "time"

// Document statuses. Stored in cleartext for filtering.
const (
	DocumentStatusDraft            = "draft"
	DocumentStatusPendingSignature = "pending_signature"
	DocumentStatusSigned           = "signed"
)

// Queue item statuses.
const (
	QueueStatusPending  = "pending"
	QueueStatusInflight = "inflight"
	QueueStatusFailed   = "failed"
)

// DocumentRecord is one clinical document cached for offline use. The body is
// encrypted; a fresh nonce is written on every content update.
type DocumentRecord struct {
	ID           string
	TenantID     string
	Ciphertext   []byte
	Nonce        []byte
	Status       string
	TemplateType string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ExpiresAt    time.Time
}

// DocumentMeta is the cleartext projection of a DocumentRecord, returned by
// listing operations that must not decrypt anything.
type DocumentMeta struct {
	ID           string
	TenantID     string
	Status       string
	TemplateType string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ExpiresAt    time.Time
}

// QueueItem is one pending outbound mutation. The serialized action is
// encrypted; the idempotency key is generated once at enqueue time and never
// changes across retries.
type QueueItem struct {
	QueueID        int64
	TenantID       string
	Ciphertext     []byte
	Nonce          []byte
	IdempotencyKey string
	Status         string
	AttemptCount   int
	RetryAt        time.Time
	CreatedAt      time.Time
}
