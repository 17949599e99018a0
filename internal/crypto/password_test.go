package crypto

import (
	"bytes"
	"testing"
)

func TestHashAndCompare(t *testing.T) {
	h := NewHasher(4)
	hash, err := h.Hash("secret1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if bytes.Contains(hash, []byte("secret1")) {
		t.Fatalf("hash leaks plaintext")
	}
	if err := h.Compare(hash, "secret1"); err != nil {
		t.Fatalf("compare with correct password: %v", err)
	}
	if err := h.Compare(hash, "secret2"); err == nil {
		t.Fatalf("expected mismatch error for wrong password")
	}
}

func TestHashSaltsEachCall(t *testing.T) {
	h := NewHasher(4)
	first, err := h.Hash("secret1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	second, err := h.Hash("secret1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if bytes.Equal(first, second) {
		t.Fatalf("expected distinct hashes for identical input")
	}
}

func TestInvalidCostFallsBack(t *testing.T) {
	h := NewHasher(99)
	hash, err := h.Hash("secret1")
	if err != nil {
		t.Fatalf("hash with fallback cost: %v", err)
	}
	if err := h.Compare(hash, "secret1"); err != nil {
		t.Fatalf("compare: %v", err)
	}
}
