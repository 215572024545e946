// Package filex contains small filesystem helpers for the vault directory.
package filex

import (
	"fmt"
	"os"
)

// EnsureDir creates the directory (and parents) if it does not exist.
// The vault directory holds key material, so permissions are owner-only.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return nil
}
