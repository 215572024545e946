// Package keyring manages the persistent salt and the per-session derivation
// inputs for the vault key.
//
// The salt is not secret, only unique per device profile. It lives in a plain
// file next to the database, outside the SQLite stores, so that deleting it
// is an independent, atomic crypto-shred: without the salt every existing
// ciphertext becomes permanently unreadable.
package keyring

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-jwt/jwt/v5"

	"github.com/carebase/docvault/internal/cryptox"
)

// SaltFileName is the well-known name of the salt blob in the vault directory.
const SaltFileName = "salt"

// LoadOrCreateSalt returns the persistent salt for the vault directory.
// A missing or corrupt salt file is replaced with a fresh one; created
// reports that this happened, which callers must treat as "all prior
// ciphertext is now garbage" and pair with a store wipe.
func LoadOrCreateSalt(dir string) (salt []byte, created bool, err error) {
	path := filepath.Join(dir, SaltFileName)

	raw, err := os.ReadFile(path)
	if err == nil {
		salt, decErr := hex.DecodeString(string(raw))
		if decErr == nil && len(salt) == cryptox.SaltSize {
			return salt, false, nil
		}
		// corrupt: fall through and regenerate
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, false, fmt.Errorf("read salt: %w", err)
	}

	salt, err = cryptox.GenerateSalt()
	if err != nil {
		return nil, false, err
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(salt)), 0o600); err != nil {
		return nil, false, fmt.Errorf("write salt: %w", err)
	}
	return salt, true, nil
}

// DeleteSalt removes the salt file. A missing file is not an error.
func DeleteSalt(dir string) error {
	err := os.Remove(filepath.Join(dir, SaltFileName))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete salt: %w", err)
	}
	return nil
}

// SecretFromToken extracts a stable per-session secret from the embedding
// application's session JWT. The token is parsed without signature
// verification: verifying it is the job of the authentication subsystem, the
// vault only needs a value that is stable for the session and different
// across sessions. Preference order: "sid", then "jti", then "sub".
func SecretFromToken(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("parse session token: %w", err)
	}
	for _, name := range []string{"sid", "jti", "sub"} {
		if v, ok := claims[name].(string); ok && v != "" {
			return v, nil
		}
	}
	return "", errors.New("session token carries no usable session claim")
}
