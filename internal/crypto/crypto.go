// Package crypto seals queue payloads so they do not transit a shared broker
// in the clear.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

var (
	ErrInvalidKey        = errors.New("crypto: invalid sealing key")
	ErrInvalidCiphertext = errors.New("crypto: invalid ciphertext")
	ErrOpenFailed        = errors.New("crypto: failed to open sealed payload")
)

const (
	keyIterations = 4096
	keyLength     = 32
)

// Sealer encrypts and decrypts payload bytes with AES-256-GCM. The cipher
// key is derived from a master key with PBKDF2.
type Sealer struct {
	gcm cipher.AEAD
}

// NewSealer creates a sealer from a master key of at least 16 bytes.
func NewSealer(masterKey []byte) (*Sealer, error) {
	if len(masterKey) < 16 {
		return nil, ErrInvalidKey
	}

	key := pbkdf2.Key(masterKey, []byte("mlbridge-queue-seal"), keyIterations, keyLength, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Sealer{gcm: gcm}, nil
}

// Seal encrypts plaintext and returns base64-encoded ciphertext with the
// nonce prepended.
func (s *Sealer) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	ciphertext := s.gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Open decrypts a sealed payload produced by Seal.
func (s *Sealer) Open(sealed string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}
	if len(raw) < s.gcm.NonceSize() {
		return nil, ErrInvalidCiphertext
	}

	nonce, ciphertext := raw[:s.gcm.NonceSize()], raw[s.gcm.NonceSize():]
	plaintext, err := s.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrOpenFailed
	}
	return plaintext, nil
}
