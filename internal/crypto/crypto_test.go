package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	t.Parallel()

	s, err := NewSealer([]byte("0123456789abcdef"))
	if err != nil {
		t.Fatalf("failed to create sealer: %v", err)
	}

	plaintext := []byte(`{"text":"great product"}`)
	sealed, err := s.Seal(plaintext)
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	if sealed == string(plaintext) {
		t.Fatal("sealed output must not equal plaintext")
	}

	opened, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("round trip mismatch: %s", opened)
	}
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	t.Parallel()

	s, _ := NewSealer([]byte("0123456789abcdef"))
	sealed, _ := s.Seal([]byte("payload"))

	tampered := []byte(sealed)
	if tampered[0] == 'A' {
		tampered[0] = 'B'
	} else {
		tampered[0] = 'A'
	}
	if _, err := s.Open(string(tampered)); err == nil {
		t.Fatal("expected tampered ciphertext to fail")
	}

	if _, err := s.Open("not base64!!"); !errors.Is(err, ErrInvalidCiphertext) {
		t.Fatalf("expected ErrInvalidCiphertext, got %v", err)
	}
}

func TestNewSealerRejectsShortKey(t *testing.T) {
	t.Parallel()

	if _, err := NewSealer([]byte("short")); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}
