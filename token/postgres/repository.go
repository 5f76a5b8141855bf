// Package postgres stores token records in the tokens table.
package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jrsteele09/go-token-issuer/internal/db"
	apperrors "github.com/jrsteele09/go-token-issuer/internal/errors"
	"github.com/jrsteele09/go-token-issuer/token"
	"github.com/pkg/errors"
)

var _ token.Repo = (*Repository)(nil)

const tokenColumns = `id, identity, kind, issued_at, expires_at, revoked_at`

type Repository struct {
	db db.DBTX
}

func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

func (r *Repository) Insert(ctx context.Context, t *token.Token) error {
	query := `
		INSERT INTO tokens (id, identity, kind, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query, t.ID, t.Identity, string(t.Kind), t.IssuedAt, t.ExpiresAt)
	if err != nil {
		return errors.Wrap(err, "tokens.Repository.Insert")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "tokens.Repository.Insert RowsAffected")
	}
	if n == 0 {
		return apperrors.ErrDuplicateTokenID
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*token.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE id = $1`
	t, err := scanToken(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "tokens.Repository.Get")
	}
	return t, nil
}

// Revoke keeps the first revocation time. The single-row UPDATE makes the revocation
// visible to every later Get.
func (r *Repository) Revoke(ctx context.Context, id string, at time.Time) (*token.Token, error) {
	query := `
		UPDATE tokens
		SET revoked_at = COALESCE(revoked_at, $2)
		WHERE id = $1
		RETURNING ` + tokenColumns
	t, err := scanToken(r.db.QueryRowContext(ctx, query, id, at))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "tokens.Repository.Revoke")
	}
	return t, nil
}

func (r *Repository) ListByIdentity(ctx context.Context, identity string) ([]*token.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE identity = $1 ORDER BY issued_at`
	rows, err := r.db.QueryContext(ctx, query, identity)
	if err != nil {
		return nil, errors.Wrap(err, "tokens.Repository.ListByIdentity")
	}
	defer rows.Close()

	tokens := make([]*token.Token, 0)
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, errors.Wrap(err, "tokens.Repository.ListByIdentity Scan")
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "tokens.Repository.ListByIdentity rows")
	}
	return tokens, nil
}

func (r *Repository) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, errors.Wrap(err, "tokens.Repository.DeleteExpired")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "tokens.Repository.DeleteExpired RowsAffected")
	}
	return int(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanToken(row scanner) (*token.Token, error) {
	var (
		t         token.Token
		kind      string
		revokedAt sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.Identity, &kind, &t.IssuedAt, &t.ExpiresAt, &revokedAt); err != nil {
		return nil, err
	}
	t.Kind = token.Kind(kind)
	if revokedAt.Valid {
		at := revokedAt.Time
		t.RevokedAt = &at
	}
	return &t, nil
}
