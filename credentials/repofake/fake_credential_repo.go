package fakecredentialrepo

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-token-issuer/credentials"
	apperrors "github.com/jrsteele09/go-token-issuer/internal/errors"
)

var _ credentials.Repo = (*FakeCredentialRepo)(nil)

// FakeCredentialRepo is an in-memory credentials.Repo. It backs the server when no
// database is configured.
type FakeCredentialRepo struct {
	credentials map[string]*credentials.Credential
	lock        sync.RWMutex
}

func NewFakeCredentialRepo() *FakeCredentialRepo {
	return &FakeCredentialRepo{
		credentials: make(map[string]*credentials.Credential),
	}
}

func (cr *FakeCredentialRepo) Insert(_ context.Context, c *credentials.Credential) error {
	cr.lock.Lock()
	defer cr.lock.Unlock()

	if _, ok := cr.credentials[c.Identity]; ok {
		return apperrors.ErrIdentityExists
	}
	cr.credentials[c.Identity] = clone(c)
	return nil
}

func (cr *FakeCredentialRepo) Update(_ context.Context, c *credentials.Credential) error {
	cr.lock.Lock()
	defer cr.lock.Unlock()

	existing, ok := cr.credentials[c.Identity]
	if !ok {
		return apperrors.ErrNotFound
	}
	updated := clone(c)
	updated.CreatedAt = existing.CreatedAt
	cr.credentials[c.Identity] = updated
	return nil
}

func (cr *FakeCredentialRepo) Get(_ context.Context, identity string) (*credentials.Credential, error) {
	cr.lock.RLock()
	defer cr.lock.RUnlock()

	c, ok := cr.credentials[identity]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return clone(c), nil
}

func (cr *FakeCredentialRepo) Delete(_ context.Context, identity string) error {
	cr.lock.Lock()
	defer cr.lock.Unlock()

	if _, ok := cr.credentials[identity]; !ok {
		return apperrors.ErrNotFound
	}
	delete(cr.credentials, identity)
	return nil
}

func clone(c *credentials.Credential) *credentials.Credential {
	cp := *c
	cp.SecretHash = append([]byte(nil), c.SecretHash...)
	cp.Salt = append([]byte(nil), c.Salt...)
	return &cp
}
