package metadata

import "context"

// Repository is a small cleartext key→value side-store for non-sensitive
// operational state: feature flags, counters, the key verifier. It is never
// encrypted and must not be used for clinical data.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
