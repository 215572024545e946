package docvault

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/carebase/docvault/internal/dbx"
	"github.com/carebase/docvault/internal/vault/models"
	"github.com/carebase/docvault/internal/vault/repositories/documents"
	"github.com/carebase/docvault/internal/vault/repositories/syncqueue"
	"github.com/carebase/docvault/internal/vault/resolve"
)

const metaKeyLastFailure = "last_failure_at"

// Report summarizes one Drain invocation.
type Report struct {
	// Submitted items were accepted by the server and removed.
	Submitted int
	// Conflicts were resolved and re-enqueued as new items.
	Conflicts int
	// Retried items failed transiently and wait for their next retry_at.
	Retried int
	// TerminallyFailed items exceeded the retry ceiling.
	TerminallyFailed int
	// Corrupt items could not be decrypted or decoded and were dropped.
	Corrupt int
}

func (r *Report) total() int {
	return r.Submitted + r.Conflicts + r.Retried + r.TerminallyFailed + r.Corrupt
}

// QueueStats is the aggregate diagnostic surfaced to the embedding
// application. Transport failures never reach the caller of Enqueue; they
// show up here as "N items pending, last failure at T".
type QueueStats struct {
	Pending       int64
	Failed        int64
	LastFailureAt time.Time // zero when no failure has been recorded
}

// Enqueue durably appends an action to the sync queue and returns its queue
// id. The action is serialized and encrypted; a fresh idempotency key is
// generated once here and survives every retry, which is what makes resend
// safe. The processor is woken as a hint; the caller gets no transport
// errors, only storage ones.
func (v *Vault) Enqueue(ctx context.Context, action Action) (int64, error) {
	if err := v.checkOpen(); err != nil {
		return 0, err
	}
	if err := action.validate(); err != nil {
		return 0, err
	}

	id, err := v.enqueueItem(ctx, v.queue, action)
	if err != nil {
		return 0, err
	}

	// best-effort hint; dropped when the processor is already scheduled
	select {
	case v.wake <- struct{}{}:
	default:
	}
	return id, nil
}

func (v *Vault) enqueueItem(ctx context.Context, repo syncqueue.Repository, action Action) (int64, error) {
	action.TenantID = v.opts.TenantID

	payload, err := json.Marshal(action)
	if err != nil {
		return 0, fmt.Errorf("marshal action: %w", err)
	}
	ciphertext, nonce, err := v.cipher.Encrypt(payload)
	if err != nil {
		return 0, fmt.Errorf("encrypt action: %w", err)
	}

	now := v.now()
	return repo.Insert(ctx, &models.QueueItem{
		TenantID:       v.opts.TenantID,
		Ciphertext:     ciphertext,
		Nonce:          nonce,
		IdempotencyKey: uuid.NewString(),
		Status:         models.QueueStatusPending,
		RetryAt:        now,
		CreatedAt:      now,
	})
}

// Drain runs the queue processor until no due item remains. It is safe to
// call concurrently with itself: every item is claimed transactionally
// before any action is taken, so two overlapping drains degrade to redundant
// no-op claims, never to duplicate submissions.
//
// Items are processed one at a time, oldest first, to keep backoff
// bookkeeping simple and preserve causal intent per tenant.
func (v *Vault) Drain(ctx context.Context) (*Report, error) {
	if err := v.checkOpen(); err != nil {
		return nil, err
	}

	report := &Report{}
	for {
		items, err := v.queue.Due(ctx, v.now(), v.opts.DrainBatch)
		if err != nil {
			return report, err
		}
		if len(items) == 0 {
			return report, nil
		}

		progressed := false
		for _, item := range items {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			claimed, err := v.queue.Claim(ctx, item.QueueID)
			if err != nil {
				return report, err
			}
			if !claimed {
				continue // another drain got there first
			}
			progressed = true
			if err := v.processItem(ctx, item, report); err != nil {
				return report, err
			}
		}
		if !progressed {
			return report, nil
		}
	}
}

// processItem handles one claimed item through the three-way transport
// outcome. Storage errors abort the drain; transport errors feed the retry
// state machine.
func (v *Vault) processItem(ctx context.Context, item *models.QueueItem, report *Report) error {
	payload, err := v.cipher.Decrypt(item.Ciphertext, item.Nonce)
	if err != nil {
		v.log.Warn(ctx, "dropping undecryptable queue item", "queue_id", item.QueueID)
		report.Corrupt++
		return v.queue.DeleteByID(ctx, item.QueueID)
	}

	var action Action
	if err := json.Unmarshal(payload, &action); err != nil {
		v.log.Warn(ctx, "dropping undecodable queue item", "queue_id", item.QueueID)
		report.Corrupt++
		return v.queue.DeleteByID(ctx, item.QueueID)
	}

	result, err := v.opts.Transport.Submit(ctx, action, item.IdempotencyKey)
	if err != nil {
		return v.handleFailure(ctx, item, err, report)
	}
	if result.Conflict {
		report.Conflicts++
		v.met.Conflicts.Inc()
		return v.handleConflict(ctx, item, action, result.Server)
	}

	report.Submitted++
	v.met.Submitted.Inc()
	return v.queue.DeleteByID(ctx, item.QueueID)
}

// handleFailure advances the retry state machine: bump the attempt count,
// either park the item until its next retry_at or, past the ceiling, mark it
// terminal failed. Terminal items are retained for diagnostics until the
// retention sweep.
func (v *Vault) handleFailure(ctx context.Context, item *models.QueueItem, cause error, report *Report) error {
	attempts := item.AttemptCount + 1
	now := v.now()

	if err := v.meta.Set(ctx, metaKeyLastFailure, []byte(strconv.FormatInt(now.UnixMilli(), 10))); err != nil {
		return err
	}

	if attempts > v.opts.RetryCeiling {
		v.log.Error(ctx, "queue item exceeded retry ceiling",
			"queue_id", item.QueueID, "attempts", attempts, "error", cause)
		report.TerminallyFailed++
		v.met.TerminalFails.Inc()
		return v.queue.MarkFailed(ctx, item.QueueID, attempts)
	}

	retryAt := now.Add(v.backoffDelay(attempts))
	v.log.Warn(ctx, "queue item submission failed, will retry",
		"queue_id", item.QueueID, "attempts", attempts, "retry_at", retryAt, "error", cause)
	report.Retried++
	v.met.Failures.Inc()
	return v.queue.Release(ctx, item.QueueID, attempts, retryAt)
}

// backoffDelay computes min(base * 2^attempts + jitter, cap). The jitter is
// below one base unit, so delays stay non-decreasing across consecutive
// failures of one item.
func (v *Vault) backoffDelay(attempts int) time.Duration {
	base, ceiling := v.opts.BackoffBase, v.opts.BackoffCap
	if attempts > 30 {
		return ceiling
	}
	d := base << uint(attempts)
	if d <= 0 || d >= ceiling {
		return ceiling
	}
	d += time.Duration(rand.Int63n(int64(base)))
	if d > ceiling {
		d = ceiling
	}
	return d
}

func (v *Vault) mergeBodies(action Action, server *ServerState) (json.RawMessage, error) {
	return resolve.Merge(resolve.Input{
		LocalBody:       action.Body,
		LocalUpdatedAt:  action.UpdatedAt,
		ServerBody:      server.Body,
		ServerUpdatedAt: server.UpdatedAt,
	}, resolve.Rules{
		ServerAuthoritative: v.opts.Rules.ServerAuthoritative,
		ClientEditable:      v.opts.Rules.ClientEditable,
	}, v.now())
}

// handleConflict merges the local action with the canonical server state,
// refreshes the local document to the merged content, replaces the original
// queue item with a new one carrying a fresh idempotency key (the resolved
// write is semantically a new operation), and removes the original — all in
// one transaction so a crash cannot leave both or neither item behind.
func (v *Vault) handleConflict(ctx context.Context, item *models.QueueItem, action Action, server *ServerState) error {
	merged, resolveErr := v.mergeBodies(action, server)

	return dbx.WithTx(ctx, v.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		queueRepo := syncqueue.NewSQLiteRepository(tx)
		docRepo := documents.NewSQLiteRepository(tx)

		if err := queueRepo.DeleteByID(ctx, item.QueueID); err != nil {
			return err
		}

		if resolveErr != nil {
			// non-object payloads cannot be merged field-wise; the server is
			// the source of truth, so adopt its state and stop there
			v.log.Warn(ctx, "conflict merge impossible, adopting server state",
				"queue_id", item.QueueID, "error", resolveErr)
			merged = server.Body
		}

		ciphertext, nonce, err := v.cipher.Encrypt(merged)
		if err != nil {
			return fmt.Errorf("encrypt merged document: %w", err)
		}
		now := v.now()
		if err := docRepo.Upsert(ctx, &models.DocumentRecord{
			ID:         action.DocumentID,
			TenantID:   v.opts.TenantID,
			Ciphertext: ciphertext,
			Nonce:      nonce,
			Status:     StatusDraft,
			CreatedAt:  now,
			UpdatedAt:  now,
			ExpiresAt:  now.Add(v.opts.DefaultTTL),
		}); err != nil {
			return err
		}

		if resolveErr != nil {
			return nil
		}

		_, err = v.enqueueItem(ctx, queueRepo, Action{
			Kind:       ActionUpdate,
			DocumentID: action.DocumentID,
			Body:       merged,
			UpdatedAt:  now,
		})
		return err
	})
}

// QueueStats reports the aggregate sync state for UI badges: how many items
// are still outstanding, how many gave up, and when the last transport
// failure happened.
func (v *Vault) QueueStats(ctx context.Context) (*QueueStats, error) {
	if err := v.checkOpen(); err != nil {
		return nil, err
	}

	pending, failed, err := v.queue.Stats(ctx)
	if err != nil {
		return nil, err
	}

	stats := &QueueStats{Pending: pending, Failed: failed}
	raw, err := v.meta.Get(ctx, metaKeyLastFailure)
	if err != nil {
		return nil, err
	}
	if raw != nil {
		if ms, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
			stats.LastFailureAt = time.UnixMilli(ms)
		}
	}
	return stats, nil
}
