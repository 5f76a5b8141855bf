package token_test

import (
	"bytes"
	"context"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	apperrors "github.com/jrsteele09/go-token-issuer/internal/errors"
	"github.com/jrsteele09/go-token-issuer/token"
	faketokenrepo "github.com/jrsteele09/go-token-issuer/token/repofake"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type issuerFixture struct {
	clock  *testClock
	repo   *faketokenrepo.FakeTokenRepo
	issuer *token.Issuer
}

func setupIssuer(t *testing.T, options ...token.IssuerOption) *issuerFixture {
	t.Helper()
	clock := newTestClock()
	repo := faketokenrepo.NewFakeTokenRepo()
	opts := append([]token.IssuerOption{
		token.WithNowFunc(clock.Now),
		token.WithReuseWindow(time.Hour),
	}, options...)
	return &issuerFixture{
		clock:  clock,
		repo:   repo,
		issuer: token.NewIssuer(repo, token.NewHMACSigner(testSecret), opts...),
	}
}

func TestIssuer_IssueAndValidate(t *testing.T) {
	ctx := context.Background()
	f := setupIssuer(t)

	for _, kind := range token.Kinds() {
		t.Run(string(kind), func(t *testing.T) {
			issued, err := f.issuer.Issue(ctx, "alice", kind)
			require.NoError(t, err)
			require.NotEmpty(t, issued.Value)
			require.Len(t, issued.ID, 64)
			require.Equal(t, f.clock.Now().Add(f.issuer.Lifetime(kind)), issued.ExpiresAt)

			validated, err := f.issuer.Validate(ctx, issued.Value)
			require.NoError(t, err)
			require.Equal(t, "alice", validated.Identity)
			require.Equal(t, kind, validated.Kind)
			require.Equal(t, issued.ID, validated.ID)
		})
	}

	t.Run("lifetimes per kind", func(t *testing.T) {
		require.Equal(t, time.Hour, f.issuer.Lifetime(token.FullAccess))
		require.Equal(t, 24*time.Hour, f.issuer.Lifetime(token.ReadOnly))
	})

	t.Run("values are unique", func(t *testing.T) {
		seen := make(map[string]struct{})
		for i := 0; i < 50; i++ {
			issued, err := f.issuer.Issue(ctx, "alice", token.ReadOnly)
			require.NoError(t, err)
			_, dup := seen[issued.Value]
			require.False(t, dup)
			seen[issued.Value] = struct{}{}
		}
	})
}

func TestIssuer_IssueUnsupportedKind(t *testing.T) {
	f := setupIssuer(t)
	_, err := f.issuer.Issue(context.Background(), "alice", token.Kind("Admin"))
	require.ErrorIs(t, err, token.ErrUnsupportedKind)
}

func TestIssuer_ValidateUnknown(t *testing.T) {
	ctx := context.Background()
	f := setupIssuer(t)
	issued, err := f.issuer.Issue(ctx, "alice", token.FullAccess)
	require.NoError(t, err)

	t.Run("empty", func(t *testing.T) {
		_, err := f.issuer.Validate(ctx, "  ")
		require.ErrorIs(t, err, apperrors.ErrUnknownToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := f.issuer.Validate(ctx, "not-a-token")
		require.ErrorIs(t, err, apperrors.ErrUnknownToken)
	})

	t.Run("signed with another key", func(t *testing.T) {
		other := token.NewIssuer(f.repo, token.NewHMACSigner([]byte("another-secret-another-secret-xx")), token.WithNowFunc(f.clock.Now))
		forged, err := other.Issue(ctx, "alice", token.FullAccess)
		require.NoError(t, err)

		_, err = f.issuer.Validate(ctx, forged.Value)
		require.ErrorIs(t, err, apperrors.ErrUnknownToken)
	})

	t.Run("different issuer name", func(t *testing.T) {
		other := token.NewIssuer(f.repo, token.NewHMACSigner(testSecret), token.WithIssuerName("someone-else"))
		foreign, err := other.Issue(ctx, "alice", token.FullAccess)
		require.NoError(t, err)

		_, err = f.issuer.Validate(ctx, foreign.Value)
		require.ErrorIs(t, err, apperrors.ErrUnknownToken)
	})

	t.Run("never stored", func(t *testing.T) {
		fresh := token.NewIssuer(faketokenrepo.NewFakeTokenRepo(), token.NewHMACSigner(testSecret), token.WithNowFunc(f.clock.Now))
		_, err := fresh.Validate(ctx, issued.Value)
		require.ErrorIs(t, err, apperrors.ErrUnknownToken)
	})
}

func TestIssuer_Expiry(t *testing.T) {
	ctx := context.Background()
	f := setupIssuer(t, token.WithExpiry(token.FullAccess, 10*time.Minute))

	issued, err := f.issuer.Issue(ctx, "alice", token.FullAccess)
	require.NoError(t, err)

	f.clock.Advance(10*time.Minute - time.Second)
	_, err = f.issuer.Validate(ctx, issued.Value)
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	_, err = f.issuer.Validate(ctx, issued.Value)
	require.ErrorIs(t, err, apperrors.ErrTokenExpired)
}

func TestIssuer_Revoke(t *testing.T) {
	ctx := context.Background()
	f := setupIssuer(t)

	issued, err := f.issuer.Issue(ctx, "alice", token.FullAccess)
	require.NoError(t, err)

	rec, err := f.issuer.Revoke(ctx, issued.Value)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.True(t, rec.Revoked())
	firstRevocation := *rec.RevokedAt

	_, err = f.issuer.Validate(ctx, issued.Value)
	require.ErrorIs(t, err, apperrors.ErrTokenRevoked)

	t.Run("idempotent", func(t *testing.T) {
		f.clock.Advance(time.Minute)
		rec, err := f.issuer.Revoke(ctx, issued.Value)
		require.NoError(t, err)
		require.Equal(t, firstRevocation, *rec.RevokedAt)
	})

	t.Run("revoked wins over expired", func(t *testing.T) {
		f.clock.Advance(2 * time.Hour)
		_, err := f.issuer.Validate(ctx, issued.Value)
		require.ErrorIs(t, err, apperrors.ErrTokenRevoked)
	})

	t.Run("visible to another issuer on the same repo", func(t *testing.T) {
		other := token.NewIssuer(f.repo, token.NewHMACSigner(testSecret), token.WithNowFunc(f.clock.Now))
		_, err := other.Validate(ctx, issued.Value)
		require.ErrorIs(t, err, apperrors.ErrTokenRevoked)
	})

	t.Run("unknown values are a no-op", func(t *testing.T) {
		rec, err := f.issuer.Revoke(ctx, "not-a-token")
		require.NoError(t, err)
		require.Nil(t, rec)

		rec, err = f.issuer.RevokeByID(ctx, "missing")
		require.NoError(t, err)
		require.Nil(t, rec)
	})
}

func TestIssuer_Cleanup(t *testing.T) {
	ctx := context.Background()
	f := setupIssuer(t, token.WithExpiry(token.FullAccess, time.Minute))

	issued, err := f.issuer.Issue(ctx, "alice", token.FullAccess)
	require.NoError(t, err)
	_, err = f.issuer.Revoke(ctx, issued.Value)
	require.NoError(t, err)

	// inside the reuse window the record survives
	f.clock.Advance(30 * time.Minute)
	n, err := f.issuer.Cleanup(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
	_, err = f.issuer.Validate(ctx, issued.Value)
	require.ErrorIs(t, err, apperrors.ErrTokenRevoked)

	f.clock.Advance(time.Hour)
	n, err = f.issuer.Cleanup(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	tokens, err := f.issuer.ListByIdentity(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, tokens)

	// a purged token is still one of ours, so it never turns Unknown
	_, err = f.issuer.Validate(ctx, issued.Value)
	require.ErrorIs(t, err, apperrors.ErrTokenExpired)
}

func TestIssuer_RetriesDuplicateIDs(t *testing.T) {
	ctx := context.Background()
	seq := []byte{1, 1, 2}
	var calls int
	reader := func(b []byte) (int, error) {
		copy(b, bytes.Repeat([]byte{seq[calls]}, len(b)))
		calls++
		return len(b), nil
	}
	f := setupIssuer(t, token.WithRandReader(reader))

	first, err := f.issuer.Issue(ctx, "alice", token.FullAccess)
	require.NoError(t, err)
	second, err := f.issuer.Issue(ctx, "alice", token.FullAccess)
	require.NoError(t, err)

	require.Equal(t, hex.EncodeToString(bytes.Repeat([]byte{1}, 32)), first.ID)
	require.Equal(t, hex.EncodeToString(bytes.Repeat([]byte{2}, 32)), second.ID)
	require.Equal(t, 3, calls)
}
