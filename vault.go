package docvault

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/carebase/docvault/internal/cryptox"
	"github.com/carebase/docvault/internal/dbx"
	"github.com/carebase/docvault/internal/filex"
	"github.com/carebase/docvault/internal/logging"
	"github.com/carebase/docvault/internal/vault/keyring"
	"github.com/carebase/docvault/internal/vault/metrics"
	"github.com/carebase/docvault/internal/vault/migrations"
	"github.com/carebase/docvault/internal/vault/models"
	"github.com/carebase/docvault/internal/vault/repositories/documents"
	"github.com/carebase/docvault/internal/vault/repositories/metadata"
	"github.com/carebase/docvault/internal/vault/repositories/syncqueue"

	_ "modernc.org/sqlite"
)

const (
	dbFileName      = "vault.db"
	metaKeyVerifier = "key_verifier"
)

// Vault is a session-scoped handle over the encrypted document store and the
// sync queue. All state hangs off the handle; there is no package-level
// singleton, so multiple tenants can coexist in one process.
type Vault struct {
	opts   Options
	log    logging.Logger
	db     *sql.DB
	key    []byte
	cipher *cryptox.Cipher

	docs  documents.Repository
	queue syncqueue.Repository
	meta  metadata.Repository
	met   *metrics.Metrics

	wake   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// Open derives the session key, runs migrations, recovers crash state and
// starts the background processor and sweeper. Returns ErrKeyDerivation
// (wrapped) when the cryptographic setup fails.
//
// If the persistent salt is missing, corrupt, or no longer matches the
// derivation inputs, all prior ciphertext is garbage; Open recovers by
// wiping the stores and starting fresh. Callers must treat this as a cache
// miss, not a fatal condition.
func Open(ctx context.Context, opts Options) (*Vault, error) {
	opts.loadDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	log := logging.NewSlogLogger(opts.Logger).With("component", "docvault", "tenant", opts.TenantID)

	if err := filex.EnsureDir(opts.Dir); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", filepath.Join(opts.Dir, dbFileName))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// a single connection sidesteps SQLITE_BUSY between the processor,
	// sweeper and caller goroutines
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	salt, saltCreated, err := keyring.LoadOrCreateSalt(opts.Dir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrKeyDerivation, err)
	}

	key := cryptox.DeriveKey(opts.TenantID, opts.SessionSecret, opts.Origin, salt)
	cipher, err := cryptox.NewCipher(key)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrKeyDerivation, err)
	}

	v := &Vault{
		opts:   opts,
		log:    log,
		db:     db,
		key:    key,
		cipher: cipher,
		docs:   documents.NewSQLiteRepository(db),
		queue:  syncqueue.NewSQLiteRepository(db),
		meta:   metadata.NewSQLiteRepository(db),
		met:    metrics.New(opts.Registerer),
		wake:   make(chan struct{}, 1),
	}

	if err := v.checkVerifier(ctx, saltCreated); err != nil {
		db.Close()
		return nil, err
	}

	// items orphaned inflight by a crash mid-drain go back to pending
	if n, err := v.queue.ResetInflight(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("recover queue: %w", err)
	} else if n > 0 {
		log.Info(ctx, "recovered orphaned queue items", "count", n)
	}

	bg, cancel := context.WithCancel(context.Background())
	v.cancel = cancel
	v.wg.Add(2)
	go v.processLoop(bg)
	go v.sweepLoop(bg)

	return v, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// checkVerifier detects that the stored salt no longer matches the key
// derivation inputs (fresh salt, tenant switch without teardown, corrupt
// profile). Every such case means existing ciphertext is undecryptable, so
// the stores are wiped and the new verifier recorded.
func (v *Vault) checkVerifier(ctx context.Context, saltCreated bool) error {
	verifier := cryptox.MakeVerifier(v.key)

	stored, err := v.meta.Get(ctx, metaKeyVerifier)
	if err != nil {
		return err
	}

	matches := stored != nil && subtle.ConstantTimeCompare(stored, verifier) == 1
	if matches && !saltCreated {
		return nil
	}

	if stored != nil || saltCreated {
		v.log.Warn(ctx, "key material changed, wiping local stores")
		if err := v.wipeStores(ctx); err != nil {
			return err
		}
	}
	return v.meta.Set(ctx, metaKeyVerifier, verifier)
}

func (v *Vault) now() time.Time { return v.opts.Clock() }

func (v *Vault) checkOpen() error {
	if v.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Put encrypts the document body and stores it with expires_at = now + ttl.
// A non-positive ttl applies the configured default. Every update re-encrypts
// under a fresh nonce.
func (v *Vault) Put(ctx context.Context, doc Document, ttl time.Duration) error {
	if err := v.checkOpen(); err != nil {
		return err
	}
	if doc.ID == "" {
		return errors.New("docvault: document id is required")
	}
	if len(doc.Body) == 0 {
		return errors.New("docvault: document body is required")
	}
	if doc.Status == "" {
		doc.Status = StatusDraft
	}
	if ttl <= 0 {
		ttl = v.opts.DefaultTTL
	}

	ciphertext, nonce, err := v.cipher.Encrypt(doc.Body)
	if err != nil {
		return fmt.Errorf("encrypt document: %w", err)
	}

	now := v.now()
	rec := &models.DocumentRecord{
		ID:           doc.ID,
		TenantID:     v.opts.TenantID,
		Ciphertext:   ciphertext,
		Nonce:        nonce,
		Status:       doc.Status,
		TemplateType: doc.TemplateType,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}
	if err := v.docs.Upsert(ctx, rec); err != nil {
		return err
	}
	return nil
}

// Get returns the decrypted document, or nil without error when the id is
// absent, expired, or undecryptable. Expired records are purged on access
// (lazy expiry); undecryptable records are deleted rather than surfaced,
// because one corrupt cached record must never block the application.
func (v *Vault) Get(ctx context.Context, id string) (*Document, error) {
	if err := v.checkOpen(); err != nil {
		return nil, err
	}

	rec, err := v.docs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}

	if rec.ExpiresAt.Before(v.now()) {
		if err := v.docs.DeleteByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, nil
	}

	body, err := v.cipher.Decrypt(rec.Ciphertext, rec.Nonce)
	if err != nil {
		v.log.Warn(ctx, "deleting undecryptable document", "id", id)
		if err := v.docs.DeleteByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, nil
	}

	return &Document{
		ID:           rec.ID,
		TenantID:     rec.TenantID,
		Status:       rec.Status,
		TemplateType: rec.TemplateType,
		Body:         body,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
		ExpiresAt:    rec.ExpiresAt,
	}, nil
}

// Delete removes a document. Absent ids are not an error.
func (v *Vault) Delete(ctx context.Context, id string) error {
	if err := v.checkOpen(); err != nil {
		return err
	}
	return v.docs.DeleteByID(ctx, id)
}

// ListByStatus returns cleartext metadata for the tenant's unexpired
// documents with the given status. Nothing is decrypted.
func (v *Vault) ListByStatus(ctx context.Context, status string) ([]DocumentMeta, error) {
	if err := v.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := v.docs.ListByStatus(ctx, v.opts.TenantID, status, v.now())
	if err != nil {
		return nil, err
	}
	result := make([]DocumentMeta, 0, len(rows))
	for _, m := range rows {
		result = append(result, DocumentMeta{
			ID:           m.ID,
			TenantID:     m.TenantID,
			Status:       m.Status,
			TemplateType: m.TemplateType,
			CreatedAt:    m.CreatedAt,
			UpdatedAt:    m.UpdatedAt,
			ExpiresAt:    m.ExpiresAt,
		})
	}
	return result, nil
}

// SetMetadata stores a non-sensitive operational value (feature flags,
// counters). The metadata store is cleartext; never put clinical data here.
func (v *Vault) SetMetadata(ctx context.Context, key string, value []byte) error {
	if err := v.checkOpen(); err != nil {
		return err
	}
	return v.meta.Set(ctx, key, value)
}

// GetMetadata returns a metadata value, or nil if absent.
func (v *Vault) GetMetadata(ctx context.Context, key string) ([]byte, error) {
	if err := v.checkOpen(); err != nil {
		return nil, err
	}
	return v.meta.Get(ctx, key)
}

// WipeAll removes every row from all three stores in one transaction. The
// salt is untouched; use Teardown for a full crypto-shred.
func (v *Vault) WipeAll(ctx context.Context) error {
	if err := v.checkOpen(); err != nil {
		return err
	}
	return v.wipeStores(ctx)
}

func (v *Vault) wipeStores(ctx context.Context) error {
	return dbx.WithTx(ctx, v.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := documents.NewSQLiteRepository(tx).DeleteAll(ctx); err != nil {
			return err
		}
		if err := syncqueue.NewSQLiteRepository(tx).DeleteAll(ctx); err != nil {
			return err
		}
		return metadata.NewSQLiteRepository(tx).Clear(ctx)
	})
}

// Close stops the background goroutines, wipes the in-memory key and closes
// the database. Local ciphertext stays readable on the next Open with the
// same inputs. An in-flight drain is allowed to finish its current item; no
// further drains are scheduled.
func (v *Vault) Close() error {
	if !v.closed.CompareAndSwap(false, true) {
		return nil
	}
	v.cancel()
	v.wg.Wait()
	cryptox.Wipe(v.key)
	return v.db.Close()
}

// Teardown is the full crypto-shred used on logout or tenant switch: it
// stops background work, deletes the persistent salt, and wipes the key.
// Everything encrypted so far becomes permanently unreadable; the next Open
// detects the mismatch and purges the leftover rows.
func (v *Vault) Teardown(ctx context.Context) error {
	if !v.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	v.cancel()
	v.wg.Wait()

	err := keyring.DeleteSalt(v.opts.Dir)
	cryptox.Wipe(v.key)
	if closeErr := v.db.Close(); err == nil {
		err = closeErr
	}
	return err
}

// processLoop waits for wake hints (post-enqueue, external Waker) and drains
// the queue. Wakes are best-effort; missing one only delays sync.
func (v *Vault) processLoop(ctx context.Context) {
	defer v.wg.Done()

	var external <-chan struct{}
	if v.opts.Waker != nil {
		external = v.opts.Waker.Wake()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-v.wake:
		case <-external:
		}

		report, err := v.Drain(ctx)
		if errors.Is(err, ErrClosed) || errors.Is(err, context.Canceled) {
			return
		}
		if err != nil {
			v.log.Error(ctx, "drain failed", "error", err)
			continue
		}
		if report != nil && report.total() > 0 {
			v.log.Info(ctx, "drain finished",
				"submitted", report.Submitted,
				"conflicts", report.Conflicts,
				"retried", report.Retried,
				"failed", report.TerminallyFailed,
				"corrupt", report.Corrupt)
		}
	}
}

// sweepLoop runs the retention sweep once at startup and then on the
// configured interval. Sweep failures are logged and swallowed; they must
// never take down the host process.
func (v *Vault) sweepLoop(ctx context.Context) {
	defer v.wg.Done()

	v.sweep(ctx)

	ticker := time.NewTicker(v.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.sweep(ctx)
		}
	}
}

func (v *Vault) sweep(ctx context.Context) {
	now := v.now()

	docs, err := v.docs.DeleteExpired(ctx, now)
	if err != nil {
		v.log.Warn(ctx, "sweep of expired documents failed", "error", err)
	} else if docs > 0 {
		v.met.SweptDocs.Add(float64(docs))
		v.log.Info(ctx, "swept expired documents", "count", docs)
	}

	items, err := v.queue.DeleteFailedBefore(ctx, now.Add(-v.opts.RetentionWindow))
	if err != nil {
		v.log.Warn(ctx, "sweep of failed queue items failed", "error", err)
	} else if items > 0 {
		v.met.SweptItems.Add(float64(items))
		v.log.Info(ctx, "swept old failed queue items", "count", items)
	}
}
