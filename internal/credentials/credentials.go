// Package credentials provides AES-256-GCM encryption at rest for
// per-user service credentials (API keys, OAuth tokens) before they
// reach UserCredentialStore, and decrypts them only at point of use.
package credentials

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	crand "crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/relaycore/assistant-core/internal/storage"
	"github.com/relaycore/assistant-core/pkg/models"
)

// ErrCiphertextTooShort is returned when a stored value is shorter than
// the AES-GCM nonce, meaning it was never produced by Encrypt.
var ErrCiphertextTooShort = errors.New("credentials: ciphertext too short")

// Service encrypts and decrypts credential values with a single
// process-wide master key, and stores/retrieves them via UserCredentialStore.
type Service struct {
	store storage.UserCredentialStore
	key   []byte
}

// New constructs a Service from a base64-standard-encoded 32-byte key, as
// produced by e.g. `openssl rand -base64 32`.
func New(store storage.UserCredentialStore, encodedKey string) (*Service, error) {
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("credentials: decode key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("credentials: key must decode to 32 bytes, got %d", len(key))
	}
	return &Service{store: store, key: key}, nil
}

// Put encrypts value and upserts it under (userID, service, key).
func (s *Service) Put(ctx context.Context, userID, service, key, value string) error {
	ct, err := s.encrypt([]byte(value))
	if err != nil {
		return fmt.Errorf("credentials: encrypt: %w", err)
	}
	now := time.Now()
	return s.store.Upsert(ctx, &models.UserCredential{
		ID: uuid.NewString(), UserID: userID, Service: service, Key: key,
		EncryptedValue: ct, CreatedAt: now, UpdatedAt: now,
	})
}

// Get loads and decrypts the credential for (userID, service, key).
func (s *Service) Get(ctx context.Context, userID, service, key string) (string, error) {
	cred, err := s.store.Get(ctx, userID, service, key)
	if err != nil {
		return "", err
	}
	pt, err := s.decrypt(cred.EncryptedValue)
	if err != nil {
		return "", fmt.Errorf("credentials: decrypt: %w", err)
	}
	return string(pt), nil
}

func (s *Service) encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(crand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *Service) decrypt(ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	n := gcm.NonceSize()
	if len(ciphertext) < n {
		return nil, ErrCiphertextTooShort
	}
	nonce, ct := ciphertext[:n], ciphertext[n:]
	return gcm.Open(nil, nonce, ct, nil)
}
