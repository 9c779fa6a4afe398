package password

import "errors"

var (
	// ErrEmptyPassword is returned when hashing an empty password.
	ErrEmptyPassword = errors.New("password must not be empty")
	// ErrPasswordTooLong is returned when the active scheme cannot hash the
	// full input.
	ErrPasswordTooLong = errors.New("password exceeds hashing limit")
	// ErrUnknownScheme is returned for unsupported scheme names.
	ErrUnknownScheme = errors.New("unknown password hashing scheme")
)

// Hasher is a single password hashing scheme.
type Hasher interface {
	Scheme() string
	Recognizes(encodedHash string) bool
	Hash(password string) (string, error)
	Verify(password, encodedHash string) bool
	NeedsRehash(encodedHash string) bool
}

// Verifier hashes with the active scheme and verifies against any known
// scheme, so changing the scheme or its cost never invalidates stored hashes.
type Verifier struct {
	active Hasher
	known  []Hasher
}

// NewVerifier returns a verifier hashing with active. Additional schemes are
// consulted for verification only.
func NewVerifier(active Hasher, legacy ...Hasher) *Verifier {
	known := make([]Hasher, 0, len(legacy)+1)
	known = append(known, active)
	for _, h := range legacy {
		if h != nil && h.Scheme() != active.Scheme() {
			known = append(known, h)
		}
	}
	return &Verifier{active: active, known: known}
}

// Config selects the active scheme and its cost.
type Config struct {
	Scheme     string
	BcryptCost int
	Argon2     Argon2Config
}

// New builds a verifier from cfg. Both schemes are always registered for
// verification.
func New(cfg Config) (*Verifier, error) {
	argon, err := NewArgon2(cfg.Argon2)
	if err != nil {
		return nil, err
	}
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = 12
	}
	bc, err := NewBcrypt(cost)
	if err != nil {
		return nil, err
	}

	switch cfg.Scheme {
	case "", argon2ID:
		return NewVerifier(argon, bc), nil
	case bcryptScheme:
		return NewVerifier(bc, argon), nil
	default:
		return nil, ErrUnknownScheme
	}
}

func (v *Verifier) Scheme() string { return v.active.Scheme() }

func (v *Verifier) Hash(password string) (string, error) {
	return v.active.Hash(password)
}

// Verify reports whether password matches encodedHash under whichever scheme
// produced it. Unrecognized or malformed hashes report false.
func (v *Verifier) Verify(password, encodedHash string) bool {
	for _, h := range v.known {
		if h.Recognizes(encodedHash) {
			return h.Verify(password, encodedHash)
		}
	}
	return false
}

// NeedsRehash reports whether encodedHash should be replaced with a hash from
// the active scheme at its current cost.
func (v *Verifier) NeedsRehash(encodedHash string) bool {
	if !v.active.Recognizes(encodedHash) {
		return true
	}
	return v.active.NeedsRehash(encodedHash)
}
