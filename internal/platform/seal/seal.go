// Package seal wraps report documents in an AES-256-GCM envelope keyed from
// the patient's fiscal code. The secret that authenticated a public download
// is therefore also required to open the payload, and every download
// produces a fresh envelope (fresh nonce) over the same artifact.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"
)

// Envelope derives a 32-byte AES key from a passphrase and seals/opens
// document bytes. The passphrase is normalized (trimmed, uppercased) the
// same way fiscal codes are stored, so user input casing never matters.
type Envelope struct {
	aead cipher.AEAD
}

// New creates an Envelope keyed from the given passphrase.
func New(passphrase string) (*Envelope, error) {
	if strings.TrimSpace(passphrase) == "" {
		return nil, fmt.Errorf("seal: passphrase is required")
	}
	key := DeriveKey(passphrase)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("seal: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("seal: create GCM: %w", err)
	}
	return &Envelope{aead: aead}, nil
}

// DeriveKey maps a passphrase to a 32-byte AES-256 key.
func DeriveKey(passphrase string) []byte {
	normalized := strings.ToUpper(strings.TrimSpace(passphrase))
	sum := sha256.Sum256([]byte(normalized))
	return sum[:]
}

// Seal encrypts data and returns the nonce prepended to the ciphertext.
func (e *Envelope) Seal(data []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("seal: generate nonce: %w", err)
	}
	// Seal appends the ciphertext to nonce, so the result is nonce + ciphertext.
	return e.aead.Seal(nonce, nonce, data, nil), nil
}

// Open extracts the nonce from the front of data and decrypts the remainder.
func (e *Envelope) Open(data []byte) ([]byte, error) {
	nonceSize := e.aead.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("seal: ciphertext too short")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("seal: open: %w", err)
	}
	return plaintext, nil
}

// Wrap is a convenience for the one-shot seal used by the distribution
// gateway: derive, seal, discard.
func Wrap(data []byte, passphrase string) ([]byte, error) {
	e, err := New(passphrase)
	if err != nil {
		return nil, err
	}
	return e.Seal(data)
}

// Unwrap opens data sealed by Wrap with the same passphrase.
func Unwrap(data []byte, passphrase string) ([]byte, error) {
	e, err := New(passphrase)
	if err != nil {
		return nil, err
	}
	return e.Open(data)
}
