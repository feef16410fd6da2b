package seal

import (
	"bytes"
	"errors"
	"regexp"
	"strings"
	"testing"
)

var hexRe = regexp.MustCompile(`^[0-9a-f]{64}$`)

// TestSealRoundTrip verifies Open recovers the exact text Seal encrypted.
func TestSealRoundTrip(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		passphrase string
	}{
		{name: "short", text: "hello", passphrase: "p"},
		{name: "empty text", text: "", passphrase: "secret"},
		{name: "unicode", text: "café ∆ 機密", passphrase: "pässwörd"},
		{name: "long", text: strings.Repeat("sensitive ", 1000), passphrase: "long-passphrase-here"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Seal(tt.text, tt.passphrase)
			if err != nil {
				t.Fatalf("Seal: %v", err)
			}

			got, err := Open(doc.Blob, tt.passphrase)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if got != tt.text {
				t.Errorf("round trip = %q, want %q", got, tt.text)
			}
		})
	}
}

// TestSealProbabilistic is the property from the scheme's design: sealing the
// same input twice yields distinct blobs and distinct 64-hex fingerprints,
// and both decrypt to the same plaintext.
func TestSealProbabilistic(t *testing.T) {
	first, err := Seal("hello", "p")
	if err != nil {
		t.Fatalf("first Seal: %v", err)
	}
	second, err := Seal("hello", "p")
	if err != nil {
		t.Fatalf("second Seal: %v", err)
	}

	if first.ContentHash == second.ContentHash {
		t.Error("repeated seals produced identical fingerprints")
	}
	for _, h := range []string{first.ContentHash, second.ContentHash} {
		if !hexRe.MatchString(h) {
			t.Errorf("fingerprint %q is not 64 lowercase hex characters", h)
		}
	}
	if bytes.Equal(first.Blob, second.Blob) {
		t.Error("repeated seals produced identical blobs")
	}

	for i, doc := range []*SealedDocument{first, second} {
		text, err := Open(doc.Blob, "p")
		if err != nil {
			t.Fatalf("Open seal %d: %v", i, err)
		}
		if text != "hello" {
			t.Errorf("seal %d decrypted to %q", i, text)
		}
	}
}

// TestFingerprintReproducible verifies the fingerprint is a pure function of
// the blob bytes.
func TestFingerprintReproducible(t *testing.T) {
	doc, err := Seal("some text", "pass")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	if got := Fingerprint(doc.Blob); got != doc.ContentHash {
		t.Errorf("Fingerprint = %q, want %q", got, doc.ContentHash)
	}

	mutated := append([]byte(nil), doc.Blob...)
	mutated[len(mutated)-1] ^= 0x01
	if Fingerprint(mutated) == doc.ContentHash {
		t.Error("fingerprint unchanged after blob mutation")
	}
}

// TestOpenWrongPassphrase verifies authentication fails rather than
// returning corrupted plaintext.
func TestOpenWrongPassphrase(t *testing.T) {
	doc, err := Seal("top secret", "correct")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	if _, err := Open(doc.Blob, "incorrect"); !errors.Is(err, ErrAuthentication) {
		t.Errorf("Open with wrong passphrase: err = %v, want ErrAuthentication", err)
	}
}

// TestOpenTamperedBlob verifies any bit flip in IV or ciphertext fails
// authentication.
func TestOpenTamperedBlob(t *testing.T) {
	doc, err := Seal("top secret", "p")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	for _, pos := range []int{0, IVSize, len(doc.Blob) - 1} {
		mutated := append([]byte(nil), doc.Blob...)
		mutated[pos] ^= 0x80
		if _, err := Open(mutated, "p"); !errors.Is(err, ErrAuthentication) {
			t.Errorf("Open with byte %d flipped: err = %v, want ErrAuthentication", pos, err)
		}
	}
}

// TestSealInputValidation covers the error conditions.
func TestSealInputValidation(t *testing.T) {
	if _, err := Seal("text", ""); !errors.Is(err, ErrEmptyPassphrase) {
		t.Errorf("Seal with empty passphrase: err = %v, want ErrEmptyPassphrase", err)
	}
	if _, err := Open([]byte("blob"), ""); !errors.Is(err, ErrEmptyPassphrase) {
		t.Errorf("Open with empty passphrase: err = %v, want ErrEmptyPassphrase", err)
	}
	if _, err := Open([]byte{1, 2, 3}, "p"); !errors.Is(err, ErrBlobTooShort) {
		t.Errorf("Open with short blob: err = %v, want ErrBlobTooShort", err)
	}
}

// TestBlobFraming verifies the stored framing: IV then ciphertext, with the
// ciphertext carrying the 16-byte GCM tag inline.
func TestBlobFraming(t *testing.T) {
	doc, err := Seal("hello", "p")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	// 12-byte IV + 5 plaintext bytes + 16-byte tag.
	if want := IVSize + 5 + 16; len(doc.Blob) != want {
		t.Errorf("blob length = %d, want %d", len(doc.Blob), want)
	}
}

// TestGeneratePassphrase verifies length and alphabet membership.
func TestGeneratePassphrase(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		p, err := GeneratePassphrase()
		if err != nil {
			t.Fatalf("GeneratePassphrase: %v", err)
		}
		if len(p) != PassphraseLength {
			t.Fatalf("length = %d, want %d", len(p), PassphraseLength)
		}
		for _, c := range p {
			if !strings.ContainsRune(passphraseAlphabet, c) {
				t.Fatalf("character %q outside alphabet", c)
			}
		}
		seen[p] = true
	}
	if len(seen) < 2 {
		t.Error("passphrase generation appears deterministic")
	}
}
