package internal

import (
	"testing"
)

func TestOpaqueSecretRoundTrip(t *testing.T) {
	secret, digest, err := NewOpaqueSecret()
	if err != nil {
		t.Fatalf("NewOpaqueSecret failed: %v", err)
	}
	if len(secret) != OpaqueSecretLength {
		t.Fatalf("expected secret length %d, got %d", OpaqueSecretLength, len(secret))
	}

	parsed, err := ParseOpaqueSecret(secret)
	if err != nil {
		t.Fatalf("ParseOpaqueSecret failed: %v", err)
	}
	if parsed != digest {
		t.Fatal("expected parsed digest to match issued digest")
	}
}

func TestOpaqueSecretsAreUnique(t *testing.T) {
	seen := make(map[string]struct{}, 256)
	for i := 0; i < 256; i++ {
		secret, _, err := NewOpaqueSecret()
		if err != nil {
			t.Fatalf("NewOpaqueSecret failed: %v", err)
		}
		if _, ok := seen[secret]; ok {
			t.Fatalf("duplicate secret after %d draws", i)
		}
		seen[secret] = struct{}{}
	}
}

func TestNewOTPDigits(t *testing.T) {
	otp, err := NewOTP(6)
	if err != nil {
		t.Fatalf("NewOTP failed: %v", err)
	}
	if len(otp) != 6 || !IsNumeric(otp) {
		t.Fatalf("unexpected otp %q", otp)
	}

	if _, err := NewOTP(4); err == nil {
		t.Fatal("expected error for too few digits")
	}
}

// FuzzParseOpaqueSecret exercises secret parsing with arbitrary strings.
// Goal: no panics; only well-formed secrets parse.
func FuzzParseOpaqueSecret(f *testing.F) {
	f.Add("")
	f.Add("abc")
	f.Add("!!!not-base64!!!")
	f.Add("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")

	if secret, _, err := NewOpaqueSecret(); err == nil {
		f.Add(secret)
	}

	f.Fuzz(func(t *testing.T, input string) {
		digest, err := ParseOpaqueSecret(input)
		if err != nil {
			return
		}
		if digest != HashOpaqueSecret(input) {
			t.Fatal("digest mismatch for accepted secret")
		}
	})
}
