package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var hmacKey = []byte("0123456789abcdef0123456789abcdef")

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newHSCodec(t *testing.T, clock *fakeClock) *Codec {
	t.Helper()
	cfg := Config{SigningMethod: MethodHS256, PrivateKey: hmacKey, Issuer: "authcore", Audience: "api"}
	if clock != nil {
		cfg.Now = clock.Now
	}
	c, err := NewCodec(cfg)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return c
}

func TestIssueDecodeRoundTrip(t *testing.T) {
	c := newHSCodec(t, nil)

	token, err := c.Issue(Claims{Subject: "acc-1", Role: "admin"}, 30*time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := c.Decode(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if claims.Subject != "acc-1" || claims.Role != "admin" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ID == "" {
		t.Fatal("expected token id")
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt); got != 30*time.Minute {
		t.Fatalf("expected 30m lifetime, got %v", got)
	}
}

func TestIssueProducesDistinctTokens(t *testing.T) {
	c := newHSCodec(t, nil)
	a, err := c.Issue(Claims{Subject: "acc-1", Role: "user"}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	b, err := c.Issue(Claims{Subject: "acc-1", Role: "user"}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if a == b {
		t.Fatal("expected distinct tokens for identical claims")
	}
}

func TestDecodeExpiredIsInvalid(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	c := newHSCodec(t, clock)

	token, err := c.Issue(Claims{Subject: "acc-1", Role: "user"}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	clock.now = clock.now.Add(2 * time.Minute)
	if _, err := c.Decode(token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestDecodeRejectsTamperedSignature(t *testing.T) {
	c := newHSCodec(t, nil)
	token, err := c.Issue(Claims{Subject: "acc-1", Role: "user"}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	tampered := token[:len(token)-2] + "xx"
	if tampered == token {
		tampered = token[:len(token)-2] + "yy"
	}
	if _, err := c.Decode(tampered); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestDecodeRejectsOtherKey(t *testing.T) {
	c := newHSCodec(t, nil)
	other, err := NewCodec(Config{SigningMethod: MethodHS256, PrivateKey: []byte("ffffffffffffffffffffffffffffffff"), Issuer: "authcore", Audience: "api"})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}

	token, err := other.Issue(Claims{Subject: "acc-1", Role: "user"}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := c.Decode(token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestDecodeRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	c, err := NewCodec(Config{SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}

	claims := accessClaims{Role: "user", RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "acc-1",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(hmacKey)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := c.Decode(token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected wrong algorithm to be rejected, got %v", err)
	}
}

func TestDecodeRejectsMissingRole(t *testing.T) {
	c := newHSCodec(t, nil)

	claims := accessClaims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "acc-1",
		Issuer:    "authcore",
		Audience:  gjwt.ClaimStrings{"api"},
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(hmacKey)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := c.Decode(token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if _, err := c.DecodeDetailed(token); err == nil || errors.Is(err, ErrInvalid) {
		t.Fatalf("expected detailed cause, got %v", err)
	}
}

func TestDecodeRejectsMissingExpiry(t *testing.T) {
	c := newHSCodec(t, nil)

	claims := accessClaims{Role: "user", RegisteredClaims: gjwt.RegisteredClaims{
		Subject:  "acc-1",
		Issuer:   "authcore",
		Audience: gjwt.ClaimStrings{"api"},
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(hmacKey)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := c.Decode(token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestDecodeIssuerAudienceAndLeeway(t *testing.T) {
	_, priv := newEdKeys(t)
	clock := &fakeClock{now: time.Now()}
	c, err := NewCodec(Config{
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		Issuer:        "authcore",
		Audience:      "api",
		Leeway:        30 * time.Second,
		Now:           clock.Now,
	})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}

	token, err := c.Issue(Claims{Subject: "acc-1", Role: "user"}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	clock.now = clock.now.Add(80 * time.Second)
	if _, err := c.Decode(token); err != nil {
		t.Fatalf("expected token within leeway to decode: %v", err)
	}

	other, err := NewCodec(Config{SigningMethod: MethodEd25519, PrivateKey: priv, Issuer: "someone-else", Audience: "api"})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	if _, err := other.Decode(token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected issuer mismatch to be rejected, got %v", err)
	}
}

func TestDecodeRejectsUnknownKid(t *testing.T) {
	signer, err := NewCodec(Config{SigningMethod: MethodHS256, PrivateKey: hmacKey, KeyID: "k2"})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	verifier, err := NewCodec(Config{SigningMethod: MethodHS256, PrivateKey: hmacKey, KeyID: "k1"})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}

	token, err := signer.Issue(Claims{Subject: "acc-1", Role: "user"}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := verifier.Decode(token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestNewCodecValidation(t *testing.T) {
	cases := map[string]Config{
		"short hmac key":  {SigningMethod: MethodHS256, PrivateKey: []byte("short")},
		"unknown method":  {SigningMethod: "rs256", PrivateKey: hmacKey},
		"no ed25519 keys": {SigningMethod: MethodEd25519},
		"negative leeway": {SigningMethod: MethodHS256, PrivateKey: hmacKey, Leeway: -time.Second},
		"huge leeway":     {SigningMethod: MethodHS256, PrivateKey: hmacKey, Leeway: time.Hour},
	}
	for name, cfg := range cases {
		if _, err := NewCodec(cfg); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestVerifyOnlyCodecCannotIssue(t *testing.T) {
	pub, _ := newEdKeys(t)
	c, err := NewCodec(Config{SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	if _, err := c.Issue(Claims{Subject: "acc-1", Role: "user"}, time.Minute); err == nil {
		t.Fatal("expected verify-only codec to refuse issuing")
	}
}
