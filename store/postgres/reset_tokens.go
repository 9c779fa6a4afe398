package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/internal/dbx"
	"github.com/MrEthical07/authcore/store"
	"github.com/google/uuid"
)

// ResetTokens implements store.ResetTokenStore.
type ResetTokens struct {
	db  *sql.DB
	now func() time.Time
}

// NewResetTokens binds a password-reset token repository to db.
func NewResetTokens(db *sql.DB, opts ...Option) *ResetTokens {
	o := buildOptions(opts)
	return &ResetTokens{db: db, now: o.now}
}

func (r *ResetTokens) Issue(ctx context.Context, accountID string, ttl time.Duration) (string, error) {
	secret, hash, err := internal.NewOpaqueSecret()
	if err != nil {
		return "", err
	}

	now := r.now().UTC()
	err = dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := lockAccount(ctx, tx, accountID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE password_reset_tokens SET used = TRUE WHERE account_id = $1 AND NOT used`, accountID); err != nil {
			return dbError(err)
		}

		query := `
			INSERT INTO password_reset_tokens (id, account_id, secret_hash, expires_at, used, created_at)
			VALUES ($1, $2, $3, $4, FALSE, $5)
		`
		if _, err := tx.ExecContext(ctx, query, uuid.NewString(), accountID, hash[:], now.Add(ttl), now); err != nil {
			return dbError(err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return secret, nil
}

func (r *ResetTokens) Check(ctx context.Context, secret string) (store.ResetToken, error) {
	hash, err := internal.ParseOpaqueSecret(secret)
	if err != nil {
		return store.ResetToken{}, store.ErrNotFound
	}

	query := `
		SELECT id, account_id, expires_at, used, created_at
		FROM password_reset_tokens
		WHERE secret_hash = $1 AND NOT used AND expires_at > $2
	`
	rec := store.ResetToken{SecretHash: hash}
	err = r.db.QueryRowContext(ctx, query, hash[:], r.now().UTC()).
		Scan(&rec.ID, &rec.AccountID, &rec.ExpiresAt, &rec.Used, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ResetToken{}, store.ErrNotFound
		}
		return store.ResetToken{}, dbError(err)
	}
	return rec, nil
}

func (r *ResetTokens) Consume(ctx context.Context, secret string) (bool, error) {
	hash, err := internal.ParseOpaqueSecret(secret)
	if err != nil {
		return false, nil
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE password_reset_tokens SET used = TRUE WHERE secret_hash = $1 AND NOT used AND expires_at > $2`,
		hash[:], r.now().UTC())
	if err != nil {
		return false, dbError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, dbError(err)
	}
	return n == 1, nil
}

var _ store.ResetTokenStore = (*ResetTokens)(nil)
