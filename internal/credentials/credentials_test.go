package credentials

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/relaycore/assistant-core/internal/storage"
)

func testKey() string {
	return base64.StdEncoding.EncodeToString(make([]byte, 32))
}

func TestPutGetRoundTrips(t *testing.T) {
	store := storage.NewMemoryStore()
	svc, err := New(store.UserCredentials, testKey())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := svc.Put(context.Background(), "u1", "openai", "api_key", "sk-test-value"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := svc.Get(context.Background(), "u1", "openai", "api_key")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "sk-test-value" {
		t.Fatalf("got %q, want %q", got, "sk-test-value")
	}
}

func TestEncryptedValueIsNotPlaintext(t *testing.T) {
	store := storage.NewMemoryStore()
	svc, err := New(store.UserCredentials, testKey())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := svc.Put(context.Background(), "u1", "openai", "api_key", "sk-test-value"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	cred, err := store.UserCredentials.Get(context.Background(), "u1", "openai", "api_key")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(cred.EncryptedValue) == "sk-test-value" {
		t.Fatal("expected stored value to be ciphertext, got plaintext")
	}
}

func TestNewRejectsWrongSizeKey(t *testing.T) {
	store := storage.NewMemoryStore()
	_, err := New(store.UserCredentials, base64.StdEncoding.EncodeToString([]byte("too-short")))
	if err == nil {
		t.Fatal("expected error for wrong-size key")
	}
}

func TestDecryptFailsOnTruncatedCiphertext(t *testing.T) {
	svc := &Service{key: make([]byte, 32)}
	if _, err := svc.decrypt([]byte("x")); err != ErrCiphertextTooShort {
		t.Fatalf("expected ErrCiphertextTooShort, got %v", err)
	}
}
