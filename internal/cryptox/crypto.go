// Package cryptox implements the cryptographic primitives of the vault:
// PBKDF2 key derivation and authenticated encryption with AES-256-GCM.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// ErrDecryption is returned when a ciphertext fails authentication or cannot
// be decrypted. Callers must treat the record as corrupt or foreign, never as
// a transient failure.
var ErrDecryption = errors.New("decryption failed")

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32

	// SaltSize is the length of the persistent salt in bytes.
	SaltSize = 32

	// NonceSize is the GCM nonce length in bytes.
	NonceSize = 12

	// Iterations is the PBKDF2 iteration count.
	Iterations = 100_000
)

// DeriveKey derives a 256-bit session key from the given inputs using
// PBKDF2-HMAC-SHA256. The same inputs and salt always yield the same key.
//
// The tenant id, session secret and origin are concatenated with a unit
// separator so that ("ab","c") and ("a","bc") cannot collide.
func DeriveKey(tenantID, sessionSecret, origin string, salt []byte) []byte {
	material := tenantID + "\x1f" + sessionSecret + "\x1f" + origin
	return pbkdf2.Key([]byte(material), salt, Iterations, KeySize, sha256.New)
}

// MakeVerifier returns a non-reversible fingerprint of the key, safe to
// persist in cleartext. Used to detect that a stored salt no longer matches
// the derivation inputs.
func MakeVerifier(key []byte) []byte {
	hash := sha256.Sum256(key)
	return hash[:]
}

// GenerateSalt returns a fresh random salt.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// Wipe overwrites the slice with zeros. Used to drop key material from
// memory on teardown. A nil slice is a no-op.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Cipher encrypts and decrypts opaque byte payloads with AES-256-GCM.
// It is safe for concurrent use; the underlying key is read-only after
// construction.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher constructs a Cipher from a 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key length %d, want %d", len(key), KeySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals the plaintext under a fresh random 12-byte nonce. The
// ciphertext and nonce are returned separately; the nonce is not secret but
// must be stored alongside the ciphertext.
func (c *Cipher) Encrypt(plaintext []byte) (ciphertext, nonce []byte, err error) {
	nonce = make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext = c.aead.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// Decrypt opens the ciphertext. It fails closed: on authentication-tag
// mismatch no partial plaintext is returned, only ErrDecryption.
func (c *Cipher) Decrypt(ciphertext, nonce []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, ErrDecryption
	}
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryption
	}
	return plaintext, nil
}
