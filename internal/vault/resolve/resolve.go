// Package resolve implements hybrid last-write-wins conflict resolution
// between a locally queued mutation and the canonical server state.
package resolve

import (
	"encoding/json"
	"fmt"
	"time"
)

// Rules configures which top-level document fields belong to which side.
//
//   - ServerAuthoritative fields always take the server's value, regardless
//     of timestamps. These are the legally binding ones: a completed
//     signature must never be rolled back by a stale offline edit.
//   - ClientEditable fields are free text the user owns; the side with the
//     later updated_at wins.
//   - Everything else defaults to the server's value when the server has one.
type Rules struct {
	ServerAuthoritative []string
	ClientEditable      []string
}

// DefaultRules matches the documented contract of the medical document
// server: signature and certification state is server-authoritative, notes
// are client-editable.
func DefaultRules() Rules {
	return Rules{
		ServerAuthoritative: []string{"signature_status", "signed_at", "signed_by", "certification"},
		ClientEditable:      []string{"notes"},
	}
}

// Input is the transient pairing of the two conflicting sides. It is never
// persisted; resolution produces a new merged body and the pairing is
// discarded.
type Input struct {
	LocalBody       json.RawMessage
	LocalUpdatedAt  time.Time
	ServerBody      json.RawMessage
	ServerUpdatedAt time.Time
}

// Merge produces the merged document body. The result carries
// conflict_resolved=true and a resolution timestamp for audit purposes.
// Given identical inputs and the same now, the output is byte-identical:
// the only nondeterminism allowed is the timestamp argument itself.
func Merge(in Input, rules Rules, now time.Time) (json.RawMessage, error) {
	var local, server map[string]json.RawMessage
	if err := json.Unmarshal(in.LocalBody, &local); err != nil {
		return nil, fmt.Errorf("local body is not a JSON object: %w", err)
	}
	if err := json.Unmarshal(in.ServerBody, &server); err != nil {
		return nil, fmt.Errorf("server body is not a JSON object: %w", err)
	}

	serverAuth := toSet(rules.ServerAuthoritative)
	clientEdit := toSet(rules.ClientEditable)
	clientNewer := in.LocalUpdatedAt.After(in.ServerUpdatedAt)

	merged := make(map[string]json.RawMessage, len(server)+len(local)+2)
	for key, val := range server {
		merged[key] = val
	}
	for key, val := range local {
		if _, isAuth := serverAuth[key]; isAuth {
			continue // server value (or absence) stands
		}
		if _, editable := clientEdit[key]; editable {
			if clientNewer {
				merged[key] = val
			}
			continue
		}
		// default: server is the source of truth for anything it knows about
		if _, onServer := server[key]; !onServer {
			merged[key] = val
		}
	}

	merged["conflict_resolved"] = json.RawMessage("true")
	ts, err := json.Marshal(now.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	merged["conflict_resolved_at"] = ts

	// encoding/json sorts map keys, so the output is deterministic
	out, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("marshal merged body: %w", err)
	}
	return out, nil
}

func toSet(keys []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}
