package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/internal/dbx"
	"github.com/MrEthical07/authcore/store"
	"github.com/google/uuid"
)

const accountColumns = `id, username, email, phone, full_name, password_hash, role, active, phone_verified, created_at, updated_at`

// Accounts implements store.AccountStore.
type Accounts struct {
	db  dbx.DBTX
	now func() time.Time
}

// NewAccounts binds an account repository to db.
func NewAccounts(db dbx.DBTX, opts ...Option) *Accounts {
	o := buildOptions(opts)
	return &Accounts{db: db, now: o.now}
}

func (r *Accounts) Create(ctx context.Context, a store.Account) (store.Account, error) {
	now := r.now().UTC()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	query := `
		INSERT INTO accounts (id, username, email, phone, full_name, password_hash, role, active, phone_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.Username, a.Email, nullString(a.Phone), a.FullName, a.PasswordHash,
		a.Role, a.Active, a.PhoneVerified, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if field, ok := conflictField(err); ok {
			return store.Account{}, &store.ConflictError{Field: field}
		}
		return store.Account{}, dbError(err)
	}
	return a, nil
}

func (r *Accounts) ByID(ctx context.Context, id string) (store.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return store.Account{}, store.ErrNotFound
	}
	return r.queryOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

func (r *Accounts) ByUsername(ctx context.Context, username string) (store.Account, error) {
	return r.queryOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE lower(username) = lower($1)`, username)
}

func (r *Accounts) ByEmail(ctx context.Context, email string) (store.Account, error) {
	return r.queryOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE lower(email) = lower($1)`, email)
}

func (r *Accounts) Update(ctx context.Context, a store.Account) (store.Account, error) {
	query := `
		UPDATE accounts
		SET phone = $2, full_name = $3, password_hash = $4, role = $5, active = $6, phone_verified = $7, updated_at = $8
		WHERE id = $1
		RETURNING ` + accountColumns

	row := r.db.QueryRowContext(ctx, query,
		a.ID, nullString(a.Phone), a.FullName, a.PasswordHash, a.Role, a.Active, a.PhoneVerified, r.now().UTC())
	updated, err := scanAccount(row)
	if err != nil {
		if field, ok := conflictField(err); ok {
			return store.Account{}, &store.ConflictError{Field: field}
		}
		return store.Account{}, err
	}
	return updated, nil
}

// Ping implements store.Pinger when bound to a *sql.DB.
func (r *Accounts) Ping(ctx context.Context) error {
	db, ok := r.db.(interface{ PingContext(context.Context) error })
	if !ok {
		return nil
	}
	if err := db.PingContext(ctx); err != nil {
		return dbError(err)
	}
	return nil
}

func (r *Accounts) queryOne(ctx context.Context, query string, arg any) (store.Account, error) {
	return scanAccount(r.db.QueryRowContext(ctx, query, arg))
}

func scanAccount(row *sql.Row) (store.Account, error) {
	var (
		a     store.Account
		phone sql.NullString
	)
	err := row.Scan(&a.ID, &a.Username, &a.Email, &phone, &a.FullName, &a.PasswordHash,
		&a.Role, &a.Active, &a.PhoneVerified, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Account{}, store.ErrNotFound
		}
		if _, ok := conflictField(err); ok {
			return store.Account{}, err
		}
		return store.Account{}, dbError(err)
	}
	a.Phone = phone.String
	return a, nil
}

var (
	_ store.AccountStore = (*Accounts)(nil)
	_ store.Pinger       = (*Accounts)(nil)
)
