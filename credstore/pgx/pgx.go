// Package pgx adapts a PostgreSQL users table to the authcore
// CredentialStore port.
package pgx

import (
	"context"
	"errors"

	"github.com/hexlane/authcore"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const principalColumns = `id, email, phone, password_hash, password_version, status, email_verified`

// Adapter implements authcore.CredentialStore over a pgx pool.
type Adapter struct {
	pool *pgxpool.Pool
}

var _ authcore.CredentialStore = (*Adapter)(nil)

func New(pool *pgxpool.Pool) *Adapter {
	return &Adapter{pool: pool}
}

func (a *Adapter) FindByEmail(ctx context.Context, email string) (*authcore.Principal, error) {
	q := `SELECT ` + principalColumns + ` FROM users WHERE email = $1`
	return a.scanPrincipal(a.pool.QueryRow(ctx, q, email))
}

func (a *Adapter) FindByPhone(ctx context.Context, phone string) (*authcore.Principal, error) {
	q := `SELECT ` + principalColumns + ` FROM users WHERE phone = $1`
	return a.scanPrincipal(a.pool.QueryRow(ctx, q, phone))
}

func (a *Adapter) FindByID(ctx context.Context, id string) (*authcore.Principal, error) {
	q := `SELECT ` + principalColumns + ` FROM users WHERE id = $1`
	return a.scanPrincipal(a.pool.QueryRow(ctx, q, id))
}

func (a *Adapter) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	tag, err := a.pool.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrPrincipalNotFound
	}
	return nil
}

func (a *Adapter) IncrementPasswordVersion(ctx context.Context, id string) (uint32, error) {
	q := `UPDATE users SET password_version = password_version + 1 WHERE id = $1 RETURNING password_version`

	var version uint32
	if err := a.pool.QueryRow(ctx, q, id).Scan(&version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, authcore.ErrPrincipalNotFound
		}
		return 0, err
	}
	return version, nil
}

func (a *Adapter) scanPrincipal(row pgx.Row) (*authcore.Principal, error) {
	p := &authcore.Principal{}
	var phone, passwordHash *string
	var status string

	err := row.Scan(&p.ID, &p.Email, &phone, &passwordHash, &p.PasswordVersion, &status, &p.EmailVerified)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authcore.ErrPrincipalNotFound
		}
		return nil, err
	}

	if phone != nil {
		p.Phone = *phone
	}
	if passwordHash != nil {
		p.PasswordHash = *passwordHash
	}
	if status == "suspended" {
		p.Status = authcore.AccountSuspended
	}
	return p, nil
}
