package authcore

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/store"
)

// Every store call gets its own StoreTimeout deadline.

func (e *Engine) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.config.StoreTimeout)
}

func (e *Engine) accountByID(ctx context.Context, id string) (store.Account, error) {
	ctx, cancel := e.storeContext(ctx)
	defer cancel()
	return e.accounts.ByID(ctx, id)
}

func (e *Engine) accountByUsername(ctx context.Context, username string) (store.Account, error) {
	ctx, cancel := e.storeContext(ctx)
	defer cancel()
	return e.accounts.ByUsername(ctx, username)
}

func (e *Engine) accountByEmail(ctx context.Context, email string) (store.Account, error) {
	ctx, cancel := e.storeContext(ctx)
	defer cancel()
	return e.accounts.ByEmail(ctx, email)
}

func (e *Engine) createAccount(ctx context.Context, a store.Account) (store.Account, error) {
	ctx, cancel := e.storeContext(ctx)
	defer cancel()
	return e.accounts.Create(ctx, a)
}

func (e *Engine) updateAccount(ctx context.Context, a store.Account) (store.Account, error) {
	ctx, cancel := e.storeContext(ctx)
	defer cancel()
	return e.accounts.Update(ctx, a)
}

func (e *Engine) issueRefresh(ctx context.Context, accountID string) (string, error) {
	ctx, cancel := e.storeContext(ctx)
	defer cancel()
	return e.refreshTokens.Issue(ctx, accountID, e.config.JWT.RefreshTTL)
}

func (e *Engine) rotateRefresh(ctx context.Context, secret string, ttl time.Duration) (store.RefreshToken, string, error) {
	ctx, cancel := e.storeContext(ctx)
	defer cancel()
	return e.refreshTokens.Rotate(ctx, secret, ttl)
}

func (e *Engine) redeemRefresh(ctx context.Context, secret string) (store.RefreshToken, error) {
	ctx, cancel := e.storeContext(ctx)
	defer cancel()
	return e.refreshTokens.Redeem(ctx, secret)
}

func (e *Engine) revokeRefresh(ctx context.Context, secret string) (bool, error) {
	ctx, cancel := e.storeContext(ctx)
	defer cancel()
	return e.refreshTokens.Revoke(ctx, secret)
}

func (e *Engine) revokeAllRefresh(ctx context.Context, accountID string) error {
	ctx, cancel := e.storeContext(ctx)
	defer cancel()
	return e.refreshTokens.RevokeAll(ctx, accountID)
}

func (e *Engine) issueReset(ctx context.Context, accountID string, ttl time.Duration) (string, error) {
	ctx, cancel := e.storeContext(ctx)
	defer cancel()
	return e.resetTokens.Issue(ctx, accountID, ttl)
}

func (e *Engine) checkReset(ctx context.Context, secret string) (store.ResetToken, error) {
	ctx, cancel := e.storeContext(ctx)
	defer cancel()
	return e.resetTokens.Check(ctx, secret)
}

func (e *Engine) consumeReset(ctx context.Context, secret string) (bool, error) {
	ctx, cancel := e.storeContext(ctx)
	defer cancel()
	return e.resetTokens.Consume(ctx, secret)
}

func (e *Engine) savePhoneChallenge(ctx context.Context, rec flows.PhoneChallengeRecord, ttl time.Duration) error {
	ctx, cancel := e.storeContext(ctx)
	defer cancel()
	return e.phoneChallenges.Save(ctx, &stores.PhoneChallenge{
		AccountID: rec.AccountID,
		Phone:     rec.Phone,
		CodeHash:  rec.CodeHash,
		ExpiresAt: e.now().Add(ttl).UnixMilli(),
	}, ttl)
}

func (e *Engine) consumePhoneChallenge(ctx context.Context, accountID string, hash [32]byte, maxAttempts int) (flows.PhoneChallengeRecord, error) {
	ctx, cancel := e.storeContext(ctx)
	defer cancel()
	c, err := e.phoneChallenges.Consume(ctx, accountID, hash, maxAttempts)
	if err != nil {
		return flows.PhoneChallengeRecord{}, err
	}
	return flows.PhoneChallengeRecord{
		AccountID: c.AccountID,
		Phone:     c.Phone,
		CodeHash:  c.CodeHash,
	}, nil
}
