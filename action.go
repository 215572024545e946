package docvault

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActionKind enumerates the operation kinds the server understands. Keeping
// this a closed set lets the queue processor and resolver switch
// exhaustively instead of inspecting untyped payloads.
type ActionKind string

const (
	ActionCreate ActionKind = "create"
	ActionUpdate ActionKind = "update"
	ActionDelete ActionKind = "delete"
)

// Action is one intended server-side mutation. It is serialized to JSON and
// encrypted only at the storage boundary; in memory it stays typed.
type Action struct {
	Kind       ActionKind      `json:"kind"`
	DocumentID string          `json:"document_id"`
	TenantID   string          `json:"tenant_id,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func (a Action) validate() error {
	switch a.Kind {
	case ActionCreate, ActionUpdate:
		if len(a.Body) == 0 {
			return fmt.Errorf("%w: %s action needs a body", ErrInvalidAction, a.Kind)
		}
	case ActionDelete:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidAction, a.Kind)
	}
	if a.DocumentID == "" {
		return fmt.Errorf("%w: missing document id", ErrInvalidAction)
	}
	return nil
}
