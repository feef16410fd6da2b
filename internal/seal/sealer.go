// Package seal encrypts document text under a user passphrase and fingerprints
// the resulting blob. The scheme mirrors a browser-side WebCrypto vault:
// SHA-256 of the passphrase as the AES-256-GCM key, a fresh 96-bit IV per
// call, and a SHA-256 hex fingerprint over the stored IV-prefixed blob.
//
// The passphrase hash is deliberately not a production KDF (no salt, no work
// factor); it matches the demo threat model of the vault it interoperates
// with.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"
)

// IVSize is the AES-GCM initialization vector length in bytes. The stored
// blob has no length prefix; the fixed IV size makes the boundary implicit.
const IVSize = 12

// PassphraseLength is the number of characters GeneratePassphrase emits.
const PassphraseLength = 16

// passphraseAlphabet omits visually ambiguous characters (0/O, 1/l/I).
const passphraseAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789!@#$%^&*"

var (
	// ErrEmptyPassphrase is returned when sealing or opening with an empty
	// passphrase.
	ErrEmptyPassphrase = errors.New("passphrase cannot be empty")

	// ErrBlobTooShort is returned when a sealed blob is shorter than the IV
	// plus the GCM tag.
	ErrBlobTooShort = errors.New("sealed blob shorter than IV and authentication tag")

	// ErrAuthentication is returned when GCM authentication fails: wrong
	// passphrase or tampered blob. The plaintext is never partially
	// returned.
	ErrAuthentication = errors.New("authentication failed: wrong passphrase or corrupted blob")
)

// SealedDocument is the durable output of one Seal call.
type SealedDocument struct {
	// Blob is the stored byte sequence: IV followed by ciphertext with the
	// GCM tag inline.
	Blob []byte
	// ContentHash is the lowercase hex SHA-256 of Blob. Because the IV is
	// random, sealing the same text twice yields two different hashes.
	ContentHash string
	// CreatedAt is the UTC time the document was sealed.
	CreatedAt time.Time
}

// deriveKey hashes the passphrase into a 256-bit AES key.
func deriveKey(passphrase string) [sha256.Size]byte {
	return sha256.Sum256([]byte(passphrase))
}

// Seal encrypts text under passphrase and fingerprints the stored blob.
// Every call draws a fresh IV, so repeated seals of identical input produce
// distinct blobs and distinct fingerprints.
func Seal(text, passphrase string) (*SealedDocument, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}

	key := deriveKey(passphrase)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("draw IV: %w", err)
	}

	blob := make([]byte, IVSize, IVSize+len(text)+gcm.Overhead())
	copy(blob, iv)
	blob = gcm.Seal(blob, iv, []byte(text), nil)

	sum := sha256.Sum256(blob)
	return &SealedDocument{
		Blob:        blob,
		ContentHash: hex.EncodeToString(sum[:]),
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Open decrypts a sealed blob with passphrase and returns the original text.
// A wrong passphrase or a modified blob fails authentication.
func Open(blob []byte, passphrase string) (string, error) {
	if passphrase == "" {
		return "", ErrEmptyPassphrase
	}

	key := deriveKey(passphrase)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create GCM: %w", err)
	}

	if len(blob) < IVSize+gcm.Overhead() {
		return "", ErrBlobTooShort
	}

	plaintext, err := gcm.Open(nil, blob[:IVSize], blob[IVSize:], nil)
	if err != nil {
		return "", ErrAuthentication
	}
	return string(plaintext), nil
}

// Fingerprint computes the lowercase hex SHA-256 of a stored blob. It
// reproduces SealedDocument.ContentHash for any party holding the same bytes.
func Fingerprint(blob []byte) string {
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}

// GeneratePassphrase draws a random vault passphrase from the unambiguous
// alphabet using the system's secure random source.
func GeneratePassphrase() (string, error) {
	raw := make([]byte, 4*PassphraseLength)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("draw passphrase bytes: %w", err)
	}

	out := make([]byte, PassphraseLength)
	for i := range out {
		v := binary.BigEndian.Uint32(raw[4*i:])
		out[i] = passphraseAlphabet[v%uint32(len(passphraseAlphabet))]
	}
	return string(out), nil
}
