package identity

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher_HashAndCompare(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("Password123!")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if hash == "Password123!" {
		t.Fatal("hash must differ from plaintext")
	}

	if err := h.Compare(hash, "Password123!"); err != nil {
		t.Errorf("Compare() with correct password error = %v", err)
	}
	if err := h.Compare(hash, "wrong"); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("Compare() with wrong password error = %v, want ErrPasswordMismatch", err)
	}
}

func TestBcryptHasher_MalformedHash(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	err := h.Compare("not-a-bcrypt-hash", "Password123!")
	if err == nil {
		t.Fatal("expected error for malformed hash")
	}
	if errors.Is(err, ErrPasswordMismatch) {
		t.Error("malformed hash should not be reported as mismatch")
	}
}

func TestNewBcryptHasher_InvalidCostFallsBackToDefault(t *testing.T) {
	for _, cost := range []int{0, 1, bcrypt.MaxCost + 1} {
		h := NewBcryptHasher(cost)
		if h.cost != bcrypt.DefaultCost {
			t.Errorf("NewBcryptHasher(%d).cost = %d, want %d", cost, h.cost, bcrypt.DefaultCost)
		}
	}
}
