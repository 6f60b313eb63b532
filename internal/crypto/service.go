// Package crypto provides the optional end-to-end payload encryption layer.
// A symmetric key is derived once per login from the user's password and salt;
// message bodies are sealed with AES-256-GCM before they leave the client.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sync"

	"golang.org/x/crypto/pbkdf2"

	"github.com/teamspace-collab/sync-client/internal/model"
)

const (
	// Key derivation parameters. Fixed so the same password and salt always
	// derive the same key on every client.
	kdfIterations = 100000
	keyLength     = 32
)

// Service derives and holds the session encryption key. Stateless beyond the
// key itself; safe for concurrent use.
type Service struct {
	mu  sync.RWMutex
	key []byte
}

// NewService returns a Service with no key set. Encrypt and Decrypt fail with
// model.ErrNoKey until SetKey is called.
func NewService() *Service {
	return &Service{}
}

// SetKey derives the symmetric key from the password and salt, overwriting any
// previously held key.
func (s *Service) SetKey(password string, salt []byte) {
	key := pbkdf2.Key([]byte(password), salt, kdfIterations, keyLength, sha256.New)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.wipeLocked()
	s.key = key
}

// HasKey reports whether a key is currently held.
func (s *Service) HasKey() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key != nil
}

// Encrypt seals plaintext with the held key and returns base64(nonce||ciphertext).
// Returns model.ErrNoKey when no key is set; the caller decides whether to send
// plaintext instead or refuse.
func (s *Service) Encrypt(plaintext string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.key == nil {
		return "", model.ErrNoKey
	}

	aead, err := s.aeadLocked()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens base64(nonce||ciphertext) produced by Encrypt. Any failure
// (no key, wrong key, truncated or tampered payload) is reported as an error
// rather than a panic so the caller can render a placeholder.
func (s *Service) Decrypt(ciphertext string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.key == nil {
		return "", model.ErrNoKey
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: bad encoding", model.ErrDecryptFailed)
	}

	aead, err := s.aeadLocked()
	if err != nil {
		return "", err
	}

	if len(raw) < aead.NonceSize() {
		return "", fmt.Errorf("%w: payload too short", model.ErrDecryptFailed)
	}

	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", model.ErrDecryptFailed
	}
	return string(plaintext), nil
}

// Clear discards the key material. Must be called on logout so no key persists
// past the session.
func (s *Service) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wipeLocked()
}

func (s *Service) wipeLocked() {
	for i := range s.key {
		s.key[i] = 0
	}
	s.key = nil
}

func (s *Service) aeadLocked() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCM: %w", err)
	}
	return aead, nil
}
