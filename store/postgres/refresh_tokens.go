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

// RefreshTokens implements store.RefreshTokenStore.
type RefreshTokens struct {
	db  *sql.DB
	now func() time.Time
}

// NewRefreshTokens binds a refresh token repository to db.
func NewRefreshTokens(db *sql.DB, opts ...Option) *RefreshTokens {
	o := buildOptions(opts)
	return &RefreshTokens{db: db, now: o.now}
}

func (r *RefreshTokens) Issue(ctx context.Context, accountID string, ttl time.Duration) (string, error) {
	secret, hash, err := internal.NewOpaqueSecret()
	if err != nil {
		return "", err
	}

	err = dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := lockAccount(ctx, tx, accountID); err != nil {
			return err
		}
		return r.replaceTx(ctx, tx, accountID, hash, ttl)
	})
	if err != nil {
		return "", err
	}
	return secret, nil
}

func (r *RefreshTokens) Redeem(ctx context.Context, secret string) (store.RefreshToken, error) {
	hash, err := internal.ParseOpaqueSecret(secret)
	if err != nil {
		return store.RefreshToken{}, store.ErrNotFound
	}

	rec, err := findRefresh(ctx, r.db, hash, false)
	if err != nil {
		return store.RefreshToken{}, err
	}
	return rec, r.usable(rec)
}

func (r *RefreshTokens) Rotate(ctx context.Context, oldSecret string, ttl time.Duration) (store.RefreshToken, string, error) {
	oldHash, err := internal.ParseOpaqueSecret(oldSecret)
	if err != nil {
		return store.RefreshToken{}, "", store.ErrNotFound
	}
	secret, hash, err := internal.NewOpaqueSecret()
	if err != nil {
		return store.RefreshToken{}, "", err
	}

	var old store.RefreshToken
	err = dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var accountID string
		err := tx.QueryRowContext(ctx, `SELECT account_id FROM refresh_tokens WHERE secret_hash = $1`, oldHash[:]).Scan(&accountID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return dbError(err)
		}

		// Account first, then the token row: the same order Issue uses.
		if err := lockAccount(ctx, tx, accountID); err != nil {
			return err
		}
		rec, err := findRefresh(ctx, tx, oldHash, true)
		if err != nil {
			return err
		}
		if err := r.usable(rec); err != nil {
			return err
		}
		old = rec
		return r.replaceTx(ctx, tx, accountID, hash, ttl)
	})
	if err != nil {
		return store.RefreshToken{}, "", err
	}
	return old, secret, nil
}

func (r *RefreshTokens) Revoke(ctx context.Context, secret string) (bool, error) {
	hash, err := internal.ParseOpaqueSecret(secret)
	if err != nil {
		return false, nil
	}

	res, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE secret_hash = $1`, hash[:])
	if err != nil {
		return false, dbError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, dbError(err)
	}
	return n > 0, nil
}

func (r *RefreshTokens) RevokeAll(ctx context.Context, accountID string) error {
	if _, err := uuid.Parse(accountID); err != nil {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE account_id = $1 AND NOT revoked`, accountID); err != nil {
		return dbError(err)
	}
	return nil
}

func (r *RefreshTokens) usable(rec store.RefreshToken) error {
	if !r.now().Before(rec.ExpiresAt) {
		return store.ErrNotFound
	}
	if rec.Revoked {
		return store.ErrTokenReused
	}
	return nil
}

func (r *RefreshTokens) replaceTx(ctx context.Context, tx dbx.DBTX, accountID string, hash [32]byte, ttl time.Duration) error {
	now := r.now().UTC()
	if _, err := tx.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE account_id = $1 AND NOT revoked`, accountID); err != nil {
		return dbError(err)
	}

	query := `
		INSERT INTO refresh_tokens (id, account_id, secret_hash, expires_at, revoked, created_at)
		VALUES ($1, $2, $3, $4, FALSE, $5)
	`
	if _, err := tx.ExecContext(ctx, query, uuid.NewString(), accountID, hash[:], now.Add(ttl), now); err != nil {
		return dbError(err)
	}
	return nil
}

func lockAccount(ctx context.Context, tx dbx.DBTX, accountID string) error {
	if _, err := uuid.Parse(accountID); err != nil {
		return store.ErrNotFound
	}
	var id string
	if err := tx.QueryRowContext(ctx, `SELECT id FROM accounts WHERE id = $1 FOR UPDATE`, accountID).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return dbError(err)
	}
	return nil
}

func findRefresh(ctx context.Context, db dbx.DBTX, hash [32]byte, forUpdate bool) (store.RefreshToken, error) {
	query := `SELECT id, account_id, secret_hash, expires_at, revoked, created_at FROM refresh_tokens WHERE secret_hash = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		rec store.RefreshToken
		raw []byte
	)
	err := db.QueryRowContext(ctx, query, hash[:]).Scan(&rec.ID, &rec.AccountID, &raw, &rec.ExpiresAt, &rec.Revoked, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.RefreshToken{}, store.ErrNotFound
		}
		return store.RefreshToken{}, dbError(err)
	}
	copy(rec.SecretHash[:], raw)
	return rec, nil
}

var _ store.RefreshTokenStore = (*RefreshTokens)(nil)
