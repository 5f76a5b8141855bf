// Package redisrepo stores token records in Redis. Each token is a hash that expires
// once its reuse window has passed, and each identity has a set of its token IDs.
package redisrepo

import (
	"context"
	"sort"
	"strconv"
	"time"

	apperrors "github.com/jrsteele09/go-token-issuer/internal/errors"
	"github.com/jrsteele09/go-token-issuer/token"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var _ token.Repo = (*Repository)(nil)

const (
	fieldIdentity  = "identity"
	fieldKind      = "kind"
	fieldIssuedAt  = "issued_at"
	fieldExpiresAt = "expires_at"
	fieldRevokedAt = "revoked_at"
)

// insertScript claims the token ID, writes the record with its retention deadline and
// adds the ID to the identity set, only ever extending the set's TTL.
var insertScript = redis.NewScript(`
if redis.call('HSETNX', KEYS[1], 'identity', ARGV[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], 'kind', ARGV[2], 'issued_at', ARGV[3], 'expires_at', ARGV[4])
redis.call('PEXPIREAT', KEYS[1], ARGV[5])
redis.call('SADD', KEYS[2], ARGV[6])
local want = tonumber(ARGV[7])
if want > 0 and redis.call('PTTL', KEYS[2]) < want then
	redis.call('PEXPIRE', KEYS[2], want)
end
return 1
`)

// revokeScript sets revoked_at only on existing, not yet revoked tokens.
var revokeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSETNX', KEYS[1], 'revoked_at', ARGV[1])
return 1
`)

type Repository struct {
	client      redis.UniversalClient
	prefix      string
	reuseWindow time.Duration
}

func NewRepository(client redis.UniversalClient, reuseWindow time.Duration) *Repository {
	return &Repository{
		client:      client,
		prefix:      "token:",
		reuseWindow: reuseWindow,
	}
}

func (r *Repository) key(id string) string {
	return r.prefix + id
}

func (r *Repository) identityKey(identity string) string {
	return r.prefix + "identity:" + identity
}

func (r *Repository) Insert(ctx context.Context, t *token.Token) error {
	retainUntil := t.ExpiresAt.Add(r.reuseWindow)
	inserted, err := insertScript.Run(ctx, r.client,
		[]string{r.key(t.ID), r.identityKey(t.Identity)},
		t.Identity,
		string(t.Kind),
		formatTime(t.IssuedAt),
		formatTime(t.ExpiresAt),
		retainUntil.UnixMilli(),
		t.ID,
		time.Until(retainUntil).Milliseconds(),
	).Int()
	if err != nil {
		return errors.Wrap(err, "redisrepo.Insert")
	}
	if inserted == 0 {
		return apperrors.ErrDuplicateTokenID
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*token.Token, error) {
	fields, err := r.client.HGetAll(ctx, r.key(id)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redisrepo.Get")
	}
	if len(fields) == 0 {
		return nil, apperrors.ErrNotFound
	}
	t, err := decode(id, fields)
	if err != nil {
		return nil, errors.Wrap(err, "redisrepo.Get decode")
	}
	return t, nil
}

func (r *Repository) Revoke(ctx context.Context, id string, at time.Time) (*token.Token, error) {
	found, err := revokeScript.Run(ctx, r.client, []string{r.key(id)}, formatTime(at)).Int()
	if err != nil {
		return nil, errors.Wrap(err, "redisrepo.Revoke")
	}
	if found == 0 {
		return nil, apperrors.ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *Repository) ListByIdentity(ctx context.Context, identity string) ([]*token.Token, error) {
	ids, err := r.client.SMembers(ctx, r.identityKey(identity)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redisrepo.ListByIdentity SMembers")
	}

	tokens := make([]*token.Token, 0, len(ids))
	for _, id := range ids {
		t, err := r.Get(ctx, id)
		if errors.Is(err, apperrors.ErrNotFound) {
			// hash expired, drop the dangling set member
			r.client.SRem(ctx, r.identityKey(identity), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].IssuedAt.Before(tokens[j].IssuedAt)
	})
	return tokens, nil
}

// DeleteExpired is a no-op: Redis expires token hashes on its own.
func (r *Repository) DeleteExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}

func formatTime(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 10)
}

func parseTime(s string) (time.Time, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, n), nil
}

func decode(id string, fields map[string]string) (*token.Token, error) {
	t := &token.Token{
		ID:       id,
		Identity: fields[fieldIdentity],
		Kind:     token.Kind(fields[fieldKind]),
	}
	var err error
	if t.IssuedAt, err = parseTime(fields[fieldIssuedAt]); err != nil {
		return nil, errors.Wrap(err, fieldIssuedAt)
	}
	if t.ExpiresAt, err = parseTime(fields[fieldExpiresAt]); err != nil {
		return nil, errors.Wrap(err, fieldExpiresAt)
	}
	if v, ok := fields[fieldRevokedAt]; ok {
		at, err := parseTime(v)
		if err != nil {
			return nil, errors.Wrap(err, fieldRevokedAt)
		}
		t.RevokedAt = &at
	}
	return t, nil
}
