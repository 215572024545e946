package docvault

import "errors"

var (
	// ErrKeyDerivation means the session key could not be derived. Fatal to
	// session start; there is no point retrying with the same inputs.
	ErrKeyDerivation = errors.New("docvault: key derivation failed")

	// ErrClosed is returned by every operation after Close or Teardown.
	ErrClosed = errors.New("docvault: vault is closed")

	// ErrInvalidAction is returned by Enqueue for malformed actions.
	ErrInvalidAction = errors.New("docvault: invalid action")
)
