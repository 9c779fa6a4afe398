package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const (
	opaqueSecretSize = 32
	// OpaqueSecretLength is the encoded length of an opaque secret.
	OpaqueSecretLength = 43
)

// ErrMalformedSecret is returned when a presented secret cannot have been
// produced by NewOpaqueSecret.
var ErrMalformedSecret = errors.New("malformed opaque secret")

// NewOpaqueSecret returns a base64url secret carrying 256 bits of entropy
// together with the digest that stores persist instead of the secret.
func NewOpaqueSecret() (string, [32]byte, error) {
	var raw [opaqueSecretSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", [32]byte{}, err
	}

	secret := base64.RawURLEncoding.EncodeToString(raw[:])
	return secret, HashOpaqueSecret(secret), nil
}

// HashOpaqueSecret digests the encoded secret. Lookup is always by digest.
func HashOpaqueSecret(secret string) [32]byte {
	return sha256.Sum256([]byte(secret))
}

// ParseOpaqueSecret validates the shape of a presented secret and returns
// its digest.
func ParseOpaqueSecret(secret string) ([32]byte, error) {
	if len(secret) != OpaqueSecretLength {
		return [32]byte{}, ErrMalformedSecret
	}

	raw, err := base64.RawURLEncoding.DecodeString(secret)
	if err != nil || len(raw) != opaqueSecretSize {
		return [32]byte{}, ErrMalformedSecret
	}

	return HashOpaqueSecret(secret), nil
}

// HashCode digests short numeric codes before they are written to a store.
func HashCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

func NewOTP(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}

// IsNumeric reports whether s is a non-empty run of ASCII digits.
func IsNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
