package faketokenrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-token-issuer/internal/errors"
	"github.com/jrsteele09/go-token-issuer/token"
)

var _ token.Repo = (*FakeTokenRepo)(nil)

// FakeTokenRepo is an in-memory token.Repo. A single lock covers both maps so a
// Revoke is visible to every Get that starts after it returns.
type FakeTokenRepo struct {
	tokens     map[string]*token.Token
	identities map[string]map[string]struct{} // identity to token IDs
	lock       sync.RWMutex
}

func NewFakeTokenRepo() *FakeTokenRepo {
	return &FakeTokenRepo{
		tokens:     make(map[string]*token.Token),
		identities: make(map[string]map[string]struct{}),
	}
}

func (tr *FakeTokenRepo) Insert(_ context.Context, t *token.Token) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	if _, ok := tr.tokens[t.ID]; ok {
		return apperrors.ErrDuplicateTokenID
	}
	tr.tokens[t.ID] = clone(t)
	ids, ok := tr.identities[t.Identity]
	if !ok {
		ids = make(map[string]struct{})
		tr.identities[t.Identity] = ids
	}
	ids[t.ID] = struct{}{}
	return nil
}

func (tr *FakeTokenRepo) Get(_ context.Context, id string) (*token.Token, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	t, ok := tr.tokens[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return clone(t), nil
}

func (tr *FakeTokenRepo) Revoke(_ context.Context, id string, at time.Time) (*token.Token, error) {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	t, ok := tr.tokens[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	if t.RevokedAt == nil {
		t.RevokedAt = &at
	}
	return clone(t), nil
}

func (tr *FakeTokenRepo) ListByIdentity(_ context.Context, identity string) ([]*token.Token, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	tokens := make([]*token.Token, 0, len(tr.identities[identity]))
	for id := range tr.identities[identity] {
		tokens = append(tokens, clone(tr.tokens[id]))
	}
	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].IssuedAt.Before(tokens[j].IssuedAt)
	})
	return tokens, nil
}

func (tr *FakeTokenRepo) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	deleted := 0
	for id, t := range tr.tokens {
		if !t.ExpiresAt.Before(before) {
			continue
		}
		delete(tr.tokens, id)
		if ids, ok := tr.identities[t.Identity]; ok {
			delete(ids, id)
			if len(ids) == 0 {
				delete(tr.identities, t.Identity)
			}
		}
		deleted++
	}
	return deleted, nil
}

func clone(t *token.Token) *token.Token {
	cp := *t
	cp.Value = ""
	if t.RevokedAt != nil {
		at := *t.RevokedAt
		cp.RevokedAt = &at
	}
	return &cp
}
