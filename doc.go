// Package docvault is an encrypted offline-first document store with a
// durable synchronization queue, built for caching clinical documents on
// devices that may be offline for arbitrary periods.
//
// The embedding application opens a tenant-scoped handle with Open. Document
// bodies are encrypted at rest with AES-256-GCM under a key derived per
// session from non-secret material plus a persistent salt; queryable
// metadata (status, template type, timestamps) stays in cleartext. Mutations
// destined for the server are enqueued durably and drained with idempotent
// retries, exponential backoff and deterministic conflict resolution.
//
// Teardown deletes the salt, which makes every previously written ciphertext
// permanently unreadable (crypto-shred) without touching the database file.
package docvault
