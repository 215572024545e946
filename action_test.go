package docvault

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAction_Validate(t *testing.T) {
	tests := []struct {
		name    string
		action  Action
		wantErr bool
	}{
		{"create with body", Action{Kind: ActionCreate, DocumentID: "d", Body: json.RawMessage(`{}`)}, false},
		{"update with body", Action{Kind: ActionUpdate, DocumentID: "d", Body: json.RawMessage(`{}`)}, false},
		{"delete without body", Action{Kind: ActionDelete, DocumentID: "d"}, false},
		{"create without body", Action{Kind: ActionCreate, DocumentID: "d"}, true},
		{"update without body", Action{Kind: ActionUpdate, DocumentID: "d"}, true},
		{"unknown kind", Action{Kind: "upsert", DocumentID: "d", Body: json.RawMessage(`{}`)}, true},
		{"empty kind", Action{DocumentID: "d"}, true},
		{"missing document id", Action{Kind: ActionDelete}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.action.validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAction)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAction_JSONRoundTrip(t *testing.T) {
	in := Action{
		Kind:       ActionUpdate,
		DocumentID: "doc-1",
		TenantID:   "tenant-1",
		Body:       json.RawMessage(`{"notes":"x"}`),
		UpdatedAt:  time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC),
	}

	raw, err := json.Marshal(in)
	require.NoError(t, err)

	var out Action
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, in.Kind, out.Kind)
	assert.Equal(t, in.DocumentID, out.DocumentID)
	assert.JSONEq(t, string(in.Body), string(out.Body))
	assert.True(t, in.UpdatedAt.Equal(out.UpdatedAt))
}
