package password

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHashAndVerify(t *testing.T) {
	hasher, err := NewBcrypt(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcrypt error: %v", err)
	}

	hash, err := hasher.Hash("correct-horse")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !hasher.Recognizes(hash) {
		t.Fatalf("expected bcrypt to recognize its own hash %q", hash)
	}
	if !hasher.Verify("correct-horse", hash) {
		t.Fatal("expected verification to succeed")
	}
	if hasher.Verify("battery-staple", hash) {
		t.Fatal("expected wrong password to fail")
	}
	if hasher.Verify("correct-horse", "$2a$garbage") {
		t.Fatal("expected malformed hash to verify as false")
	}
}

func TestBcryptRejectsLongPassword(t *testing.T) {
	hasher, err := NewBcrypt(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcrypt error: %v", err)
	}

	if _, err := hasher.Hash(strings.Repeat("x", 73)); err != ErrPasswordTooLong {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
}

func TestBcryptCostBounds(t *testing.T) {
	if _, err := NewBcrypt(bcrypt.MinCost - 1); err == nil {
		t.Fatal("expected cost below minimum to be rejected")
	}
	if _, err := NewBcrypt(bcrypt.MaxCost + 1); err == nil {
		t.Fatal("expected cost above maximum to be rejected")
	}
}

func TestVerifierCrossScheme(t *testing.T) {
	argon := newTestArgon2(t, fastArgon2Config())
	bc, err := NewBcrypt(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcrypt error: %v", err)
	}

	legacyHash, err := bc.Hash("migrated-password")
	if err != nil {
		t.Fatalf("bcrypt Hash error: %v", err)
	}

	v := NewVerifier(argon, bc)
	if !v.Verify("migrated-password", legacyHash) {
		t.Fatal("expected verifier to accept legacy bcrypt hash")
	}
	if !v.NeedsRehash(legacyHash) {
		t.Fatal("expected legacy scheme hash to need rehash")
	}

	fresh, err := v.Hash("migrated-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(fresh, argon2Prefix) {
		t.Fatalf("expected active scheme hash, got %q", fresh)
	}
	if v.NeedsRehash(fresh) {
		t.Fatal("expected fresh hash not to need rehash")
	}
	if v.Verify("migrated-password", "plaintext") {
		t.Fatal("expected unrecognized hash to verify as false")
	}
}

func TestBcryptCostIncreaseKeepsOldHashes(t *testing.T) {
	low, err := NewBcrypt(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcrypt error: %v", err)
	}
	high, err := NewBcrypt(bcrypt.MinCost + 1)
	if err != nil {
		t.Fatalf("NewBcrypt error: %v", err)
	}

	hash, err := low.Hash("cost-tuning")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !high.Verify("cost-tuning", hash) {
		t.Fatal("expected higher-cost hasher to verify lower-cost hash")
	}
	if !high.NeedsRehash(hash) {
		t.Fatal("expected lower-cost hash to need rehash")
	}
}

func TestNewSelectsScheme(t *testing.T) {
	v, err := New(Config{Scheme: "bcrypt", BcryptCost: bcrypt.MinCost, Argon2: fastArgon2Config()})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if v.Scheme() != "bcrypt" {
		t.Fatalf("expected bcrypt active scheme, got %s", v.Scheme())
	}

	if _, err := New(Config{Scheme: "md5", Argon2: fastArgon2Config()}); err != ErrUnknownScheme {
		t.Fatalf("expected ErrUnknownScheme, got %v", err)
	}
}
