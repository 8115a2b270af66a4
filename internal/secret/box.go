package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the required raw key length in bytes.
	KeySize = 32

	envelopeVersion1 = 1
)

// hkdfInfo binds derived keys to this module's envelope format. Changing it
// invalidates every ciphertext produced with a passphrase-derived key.
var hkdfInfo = []byte("string-bot/session-key/v1")

var (
	// ErrIntegrity is returned when a ciphertext fails authentication or
	// carries an unknown envelope version. The caller never receives
	// partially decrypted plaintext.
	ErrIntegrity = errors.New("ciphertext integrity check failed")

	// ErrKeySize is returned for keys that are not exactly KeySize bytes.
	ErrKeySize = errors.New("invalid encryption key size")
)

// Box performs authenticated encryption with a single process-wide key.
// Every Seal draws a fresh random nonce, so sealing the same plaintext twice
// yields unrelated ciphertexts.
type Box struct {
	aead cipher.AEAD
}

// NewBox creates a [Box] from a raw 32-byte key.
func NewBox(key []byte) (*Box, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrKeySize, len(key), KeySize)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	return &Box{aead: gcm}, nil
}

// NewBoxFromPassphrase derives the key from a passphrase with HKDF-SHA256
// and creates a [Box] from it. The same passphrase always derives the same
// key, so ciphertexts survive process restarts.
func NewBoxFromPassphrase(passphrase string) (*Box, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("%w: empty passphrase", ErrKeySize)
	}

	h := hkdf.New(sha256.New, []byte(passphrase), nil, hkdfInfo)
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(h, key); err != nil {
		return nil, fmt.Errorf("reading from HKDF: %w", err)
	}

	return NewBox(key)
}

// Seal encrypts plaintext into a self-contained envelope:
// version byte, nonce, ciphertext+tag.
func (b *Box) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	out := make([]byte, 0, 1+len(nonce)+len(plaintext)+b.aead.Overhead())
	out = append(out, envelopeVersion1)
	out = append(out, nonce...)
	return b.aead.Seal(out, nonce, plaintext, nil), nil
}

// Open decrypts an envelope produced by [Box.Seal]. Any tampering, including
// a flipped version byte or a truncated blob, yields [ErrIntegrity].
func (b *Box) Open(blob []byte) ([]byte, error) {
	nonceSize := b.aead.NonceSize()
	if len(blob) < 1+nonceSize+b.aead.Overhead() {
		return nil, ErrIntegrity
	}
	if blob[0] != envelopeVersion1 {
		return nil, ErrIntegrity
	}

	nonce, ciphertext := blob[1:1+nonceSize], blob[1+nonceSize:]
	plaintext, err := b.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrIntegrity
	}
	return plaintext, nil
}
