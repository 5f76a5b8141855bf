package token

import (
	"context"
	"time"
)

// Token is an issued bearer token. Value is only populated on the copy handed to the
// caller at issue or validation time; repositories store everything else.
type Token struct {
	ID        string     // jti, 256 random bits hex encoded
	Value     string     // signed bearer string
	Identity  string     // subject
	Kind      Kind       // scope
	IssuedAt  time.Time  // iat
	ExpiresAt time.Time  // exp
	RevokedAt *time.Time // set once by Revoke, never cleared
}

func (t *Token) Revoked() bool {
	return t.RevokedAt != nil
}

// Expired reports whether now is at or past the expiry.
func (t *Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Remaining is the lifetime left at now, never negative.
func (t *Token) Remaining(now time.Time) time.Duration {
	if d := t.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Repo stores token records keyed by ID with a secondary lookup by identity.
// Get and Revoke return internal/errors.ErrNotFound for unknown IDs and Insert
// returns ErrDuplicateTokenID when the ID is already present.
type Repo interface {
	Insert(ctx context.Context, t *Token) error
	Get(ctx context.Context, id string) (*Token, error)
	// Revoke sets RevokedAt unless it is already set and returns the stored record.
	Revoke(ctx context.Context, id string, at time.Time) (*Token, error)
	ListByIdentity(ctx context.Context, identity string) ([]*Token, error)
	// DeleteExpired removes records whose expiry is before the given time.
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}
