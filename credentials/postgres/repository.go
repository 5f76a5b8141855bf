// Package postgres stores credentials in the credentials table.
package postgres

import (
	"context"
	"database/sql"

	"github.com/jrsteele09/go-token-issuer/credentials"
	"github.com/jrsteele09/go-token-issuer/internal/db"
	apperrors "github.com/jrsteele09/go-token-issuer/internal/errors"
	"github.com/pkg/errors"
)

var _ credentials.Repo = (*Repository)(nil)

type Repository struct {
	db db.DBTX
}

func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

func (r *Repository) Insert(ctx context.Context, c *credentials.Credential) error {
	query := `
		INSERT INTO credentials (identity, secret_hash, salt, hash_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (identity) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query, c.Identity, c.SecretHash, nonNil(c.Salt), string(c.HashVersion), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "credentials.Repository.Insert")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "credentials.Repository.Insert RowsAffected")
	}
	if n == 0 {
		return apperrors.ErrIdentityExists
	}
	return nil
}

func (r *Repository) Update(ctx context.Context, c *credentials.Credential) error {
	query := `
		UPDATE credentials
		SET secret_hash = $2, salt = $3, hash_version = $4, updated_at = $5
		WHERE identity = $1
	`
	res, err := r.db.ExecContext(ctx, query, c.Identity, c.SecretHash, nonNil(c.Salt), string(c.HashVersion), c.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "credentials.Repository.Update")
	}
	return expectOneRow(res, "credentials.Repository.Update")
}

func (r *Repository) Get(ctx context.Context, identity string) (*credentials.Credential, error) {
	query := `
		SELECT identity, secret_hash, salt, hash_version, created_at, updated_at
		FROM credentials
		WHERE identity = $1
	`
	var (
		c       credentials.Credential
		version string
	)
	err := r.db.QueryRowContext(ctx, query, identity).Scan(&c.Identity, &c.SecretHash, &c.Salt, &version, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "credentials.Repository.Get")
	}
	c.HashVersion = credentials.HashVersion(version)
	return &c, nil
}

func (r *Repository) Delete(ctx context.Context, identity string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE identity = $1`, identity)
	if err != nil {
		return errors.Wrap(err, "credentials.Repository.Delete")
	}
	return expectOneRow(res, "credentials.Repository.Delete")
}

func expectOneRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, op+" RowsAffected")
	}
	if n == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
