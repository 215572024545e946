package docvault

import (
	"encoding/json"
	"time"
)

// Document statuses stored in cleartext for filtering without decryption.
const (
	StatusDraft            = "draft"
	StatusPendingSignature = "pending_signature"
	StatusSigned           = "signed"
)

// Document is one clinical document cached for offline use. Body is the
// opaque payload the application owns; the vault encrypts it at rest and
// never interprets it beyond conflict resolution on top-level JSON fields.
type Document struct {
	ID           string
	Status       string
	TemplateType string
	Body         json.RawMessage

	// Set by the vault on reads; ignored on Put.
	TenantID  string
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

// DocumentMeta is the cleartext projection returned by ListByStatus. It is
// what UI badges and counts are built from, without paying decryption cost.
type DocumentMeta struct {
	ID           string
	TenantID     string
	Status       string
	TemplateType string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ExpiresAt    time.Time
}
