// Package credentials holds identity to secret-hash mappings and verifies secrets
// against them. Secrets are never stored in plaintext.
package credentials

import (
	"context"
	"time"
)

// HashVersion names the algorithm that produced a stored secret hash.
type HashVersion string

const (
	HashArgon2id HashVersion = "argon2id" // default, explicit salt column
	HashBcrypt   HashVersion = "bcrypt"   // salt embedded in the hash, accepted for imported records
)

// Credential is the stored form of an identity's secret.
type Credential struct {
	Identity    string
	SecretHash  []byte
	Salt        []byte
	HashVersion HashVersion
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Repo stores credentials keyed by identity.
// Get, Update and Delete return internal/errors.ErrNotFound for unknown identities
// and Insert returns ErrIdentityExists for duplicates.
type Repo interface {
	Insert(ctx context.Context, c *Credential) error
	Update(ctx context.Context, c *Credential) error
	Get(ctx context.Context, identity string) (*Credential, error)
	Delete(ctx context.Context, identity string) error
}
