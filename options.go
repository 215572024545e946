package docvault

import (
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/carebase/docvault/internal/vault/keyring"
)

// defaultSessionSecret is used when the embedding application supplies no
// session secret. The derived key then protects against casual inspection of
// the database file only; real deployments pass the session token secret.
const defaultSessionSecret = "docvault/v1/default-session-secret"

// Options configures a vault handle. Only Dir, TenantID and Transport are
// mandatory; everything else has a default. There is no environment or file
// based configuration: the embedding application supplies everything
// programmatically.
type Options struct {
	// Dir is the vault directory, holding the database and the salt file.
	Dir string

	// TenantID scopes the vault to one tenant. Part of key derivation.
	TenantID string

	// SessionSecret is the per-session derivation input. Optional; see
	// SecretFromSessionToken for deriving one from a session JWT.
	SessionSecret string

	// Origin identifies the installation (e.g. the application origin URL).
	// Part of key derivation. Defaults to "local".
	Origin string

	// Transport delivers queued actions to the server.
	Transport Transport

	// Waker is an optional external wake-up source for the queue processor
	// (connectivity events, timers). The vault does not stop it; the owner
	// does. Without one, only enqueue hints and explicit Drain calls run the
	// processor.
	Waker Waker

	// Logger receives structured vault logs. Defaults to slog.Default().
	Logger *slog.Logger

	// Registerer optionally receives the vault's Prometheus collectors.
	Registerer prometheus.Registerer

	// DefaultTTL is applied when Put is called without a TTL. Default 7 days.
	DefaultTTL time.Duration

	// RetryCeiling is the attempt count after which an item goes terminal
	// failed. Default 5.
	RetryCeiling int

	// BackoffBase and BackoffCap bound the exponential retry backoff.
	// Defaults 1s and 5m.
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// RetentionWindow is how long terminal failed items are kept for
	// diagnostics before the sweeper removes them. Default 30 days.
	RetentionWindow time.Duration

	// SweepInterval is the retention sweeper period. Default 1h.
	SweepInterval time.Duration

	// DrainBatch caps how many due items one drain pass loads. Default 100.
	DrainBatch int

	// Rules configures conflict resolution field ownership.
	Rules ResolutionRules

	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// ResolutionRules mirrors the resolver contract: server-authoritative fields
// always take the server's value, client-editable fields follow the later
// updated_at, everything else defaults to the server.
type ResolutionRules struct {
	ServerAuthoritative []string
	ClientEditable      []string
}

func (o *Options) loadDefaults() {
	if o.SessionSecret == "" {
		o.SessionSecret = defaultSessionSecret
	}
	if o.Origin == "" {
		o.Origin = "local"
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.DefaultTTL <= 0 {
		o.DefaultTTL = 7 * 24 * time.Hour
	}
	if o.RetryCeiling <= 0 {
		o.RetryCeiling = 5
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = time.Second
	}
	if o.BackoffCap <= 0 {
		o.BackoffCap = 5 * time.Minute
	}
	if o.RetentionWindow <= 0 {
		o.RetentionWindow = 30 * 24 * time.Hour
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Hour
	}
	if o.DrainBatch <= 0 {
		o.DrainBatch = 100
	}
	if len(o.Rules.ServerAuthoritative) == 0 && len(o.Rules.ClientEditable) == 0 {
		o.Rules = ResolutionRules{
			ServerAuthoritative: []string{"signature_status", "signed_at", "signed_by", "certification"},
			ClientEditable:      []string{"notes"},
		}
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

func (o *Options) validate() error {
	if o.Dir == "" {
		return errors.New("docvault: Options.Dir is required")
	}
	if o.TenantID == "" {
		return errors.New("docvault: Options.TenantID is required")
	}
	if o.Transport == nil {
		return errors.New("docvault: Options.Transport is required")
	}
	return nil
}

// SecretFromSessionToken extracts a stable per-session secret from a session
// JWT issued by the authentication subsystem. The signature is not verified
// here; the vault only needs a value that is stable within a session.
func SecretFromSessionToken(token string) (string, error) {
	return keyring.SecretFromToken(token)
}
