// Package memory provides mutex-guarded in-process implementations of the
// store contracts. State is lost on restart.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/store"
	"github.com/google/uuid"
)

// Option configures the in-memory stores.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Accounts implements store.AccountStore.
type Accounts struct {
	mu         sync.RWMutex
	byID       map[string]store.Account
	byUsername map[string]string
	byEmail    map[string]string
	byPhone    map[string]string
	now        func() time.Time
}

// NewAccounts returns an empty account store.
func NewAccounts(opts ...Option) *Accounts {
	o := buildOptions(opts)
	return &Accounts{
		byID:       make(map[string]store.Account),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
		byPhone:    make(map[string]string),
		now:        o.now,
	}
}

func foldKey(s string) string { return strings.ToLower(s) }

func (s *Accounts) Create(ctx context.Context, a store.Account) (store.Account, error) {
	if err := ctx.Err(); err != nil {
		return store.Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUsername[foldKey(a.Username)]; ok {
		return store.Account{}, &store.ConflictError{Field: store.FieldUsername}
	}
	if _, ok := s.byEmail[foldKey(a.Email)]; ok {
		return store.Account{}, &store.ConflictError{Field: store.FieldEmail}
	}
	if a.Phone != "" {
		if _, ok := s.byPhone[a.Phone]; ok {
			return store.Account{}, &store.ConflictError{Field: store.FieldPhone}
		}
	}

	now := s.now().UTC()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	s.byID[a.ID] = a
	s.byUsername[foldKey(a.Username)] = a.ID
	s.byEmail[foldKey(a.Email)] = a.ID
	if a.Phone != "" {
		s.byPhone[a.Phone] = a.ID
	}
	return a, nil
}

func (s *Accounts) ByID(ctx context.Context, id string) (store.Account, error) {
	if err := ctx.Err(); err != nil {
		return store.Account{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[id]
	if !ok {
		return store.Account{}, store.ErrNotFound
	}
	return a, nil
}

func (s *Accounts) ByUsername(ctx context.Context, username string) (store.Account, error) {
	return s.byIndex(ctx, s.byUsername, foldKey(username))
}

func (s *Accounts) ByEmail(ctx context.Context, email string) (store.Account, error) {
	return s.byIndex(ctx, s.byEmail, foldKey(email))
}

func (s *Accounts) byIndex(ctx context.Context, index map[string]string, key string) (store.Account, error) {
	if err := ctx.Err(); err != nil {
		return store.Account{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := index[key]
	if !ok {
		return store.Account{}, store.ErrNotFound
	}
	return s.byID[id], nil
}

func (s *Accounts) Update(ctx context.Context, a store.Account) (store.Account, error) {
	if err := ctx.Err(); err != nil {
		return store.Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[a.ID]
	if !ok {
		return store.Account{}, store.ErrNotFound
	}
	if a.Phone != "" && a.Phone != current.Phone {
		if owner, taken := s.byPhone[a.Phone]; taken && owner != a.ID {
			return store.Account{}, &store.ConflictError{Field: store.FieldPhone}
		}
	}

	if current.Phone != "" && current.Phone != a.Phone {
		delete(s.byPhone, current.Phone)
	}
	if a.Phone != "" {
		s.byPhone[a.Phone] = a.ID
	}

	current.Phone = a.Phone
	current.FullName = a.FullName
	current.PasswordHash = a.PasswordHash
	current.Role = a.Role
	current.Active = a.Active
	current.PhoneVerified = a.PhoneVerified
	current.UpdatedAt = s.now().UTC()
	s.byID[a.ID] = current
	return current, nil
}

// Ping implements store.Pinger.
func (s *Accounts) Ping(ctx context.Context) error { return ctx.Err() }

// RefreshTokens implements store.RefreshTokenStore.
type RefreshTokens struct {
	mu        sync.Mutex
	byHash    map[[32]byte]*store.RefreshToken
	byAccount map[string][]*store.RefreshToken
	now       func() time.Time
}

// NewRefreshTokens returns an empty refresh token store.
func NewRefreshTokens(opts ...Option) *RefreshTokens {
	o := buildOptions(opts)
	return &RefreshTokens{
		byHash:    make(map[[32]byte]*store.RefreshToken),
		byAccount: make(map[string][]*store.RefreshToken),
		now:       o.now,
	}
}

func (s *RefreshTokens) Issue(ctx context.Context, accountID string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	secret, hash, err := internal.NewOpaqueSecret()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.issueLocked(accountID, hash, ttl)
	return secret, nil
}

func (s *RefreshTokens) issueLocked(accountID string, hash [32]byte, ttl time.Duration) {
	now := s.now().UTC()
	s.revokeAllLocked(accountID)
	s.pruneLocked(accountID, now)

	rec := &store.RefreshToken{
		ID:         uuid.NewString(),
		AccountID:  accountID,
		SecretHash: hash,
		ExpiresAt:  now.Add(ttl),
		CreatedAt:  now,
	}
	s.byHash[hash] = rec
	s.byAccount[accountID] = append(s.byAccount[accountID], rec)
}

func (s *RefreshTokens) Redeem(ctx context.Context, secret string) (store.RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return store.RefreshToken{}, err
	}
	hash, err := internal.ParseOpaqueSecret(secret)
	if err != nil {
		return store.RefreshToken{}, store.ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.redeemLocked(hash)
}

func (s *RefreshTokens) redeemLocked(hash [32]byte) (store.RefreshToken, error) {
	rec, ok := s.byHash[hash]
	if !ok {
		return store.RefreshToken{}, store.ErrNotFound
	}
	if !s.now().Before(rec.ExpiresAt) {
		return store.RefreshToken{}, store.ErrNotFound
	}
	if rec.Revoked {
		return store.RefreshToken{}, store.ErrTokenReused
	}
	return *rec, nil
}

func (s *RefreshTokens) Rotate(ctx context.Context, oldSecret string, ttl time.Duration) (store.RefreshToken, string, error) {
	if err := ctx.Err(); err != nil {
		return store.RefreshToken{}, "", err
	}
	oldHash, err := internal.ParseOpaqueSecret(oldSecret)
	if err != nil {
		return store.RefreshToken{}, "", store.ErrNotFound
	}
	secret, hash, err := internal.NewOpaqueSecret()
	if err != nil {
		return store.RefreshToken{}, "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, err := s.redeemLocked(oldHash)
	if err != nil {
		return store.RefreshToken{}, "", err
	}
	s.issueLocked(old.AccountID, hash, ttl)
	return old, secret, nil
}

func (s *RefreshTokens) Revoke(ctx context.Context, secret string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	hash, err := internal.ParseOpaqueSecret(secret)
	if err != nil {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byHash[hash]
	if !ok {
		return false, nil
	}
	rec.Revoked = true
	return true, nil
}

func (s *RefreshTokens) RevokeAll(ctx context.Context, accountID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revokeAllLocked(accountID)
	return nil
}

// ActiveCount returns the number of live, unrevoked tokens of an account.
func (s *RefreshTokens) ActiveCount(accountID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for _, rec := range s.byAccount[accountID] {
		if !rec.Revoked && now.Before(rec.ExpiresAt) {
			n++
		}
	}
	return n
}

func (s *RefreshTokens) revokeAllLocked(accountID string) {
	for _, rec := range s.byAccount[accountID] {
		rec.Revoked = true
	}
}

// pruneLocked drops records past expiry; reuse of those is reported as not
// found either way.
func (s *RefreshTokens) pruneLocked(accountID string, now time.Time) {
	recs := s.byAccount[accountID]
	kept := recs[:0]
	for _, rec := range recs {
		if now.Before(rec.ExpiresAt) {
			kept = append(kept, rec)
			continue
		}
		delete(s.byHash, rec.SecretHash)
	}
	s.byAccount[accountID] = kept
}

// ResetTokens implements store.ResetTokenStore.
type ResetTokens struct {
	mu        sync.Mutex
	byHash    map[[32]byte]*store.ResetToken
	byAccount map[string][]*store.ResetToken
	now       func() time.Time
}

// NewResetTokens returns an empty reset token store.
func NewResetTokens(opts ...Option) *ResetTokens {
	o := buildOptions(opts)
	return &ResetTokens{
		byHash:    make(map[[32]byte]*store.ResetToken),
		byAccount: make(map[string][]*store.ResetToken),
		now:       o.now,
	}
}

func (s *ResetTokens) Issue(ctx context.Context, accountID string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	secret, hash, err := internal.NewOpaqueSecret()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	kept := s.byAccount[accountID][:0]
	for _, rec := range s.byAccount[accountID] {
		rec.Used = true
		if now.Before(rec.ExpiresAt) {
			kept = append(kept, rec)
		} else {
			delete(s.byHash, rec.SecretHash)
		}
	}

	rec := &store.ResetToken{
		ID:         uuid.NewString(),
		AccountID:  accountID,
		SecretHash: hash,
		ExpiresAt:  now.Add(ttl),
		CreatedAt:  now,
	}
	s.byHash[hash] = rec
	s.byAccount[accountID] = append(kept, rec)
	return secret, nil
}

func (s *ResetTokens) Check(ctx context.Context, secret string) (store.ResetToken, error) {
	if err := ctx.Err(); err != nil {
		return store.ResetToken{}, err
	}
	hash, err := internal.ParseOpaqueSecret(secret)
	if err != nil {
		return store.ResetToken{}, store.ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byHash[hash]
	if !ok || rec.Used || !s.now().Before(rec.ExpiresAt) {
		return store.ResetToken{}, store.ErrNotFound
	}
	return *rec, nil
}

func (s *ResetTokens) Consume(ctx context.Context, secret string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	hash, err := internal.ParseOpaqueSecret(secret)
	if err != nil {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byHash[hash]
	if !ok || rec.Used || !s.now().Before(rec.ExpiresAt) {
		return false, nil
	}
	rec.Used = true
	return true, nil
}

var (
	_ store.AccountStore      = (*Accounts)(nil)
	_ store.RefreshTokenStore = (*RefreshTokens)(nil)
	_ store.ResetTokenStore   = (*ResetTokens)(nil)
	_ store.Pinger            = (*Accounts)(nil)
)
