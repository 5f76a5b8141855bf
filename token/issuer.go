package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/go-token-issuer/internal/errors"
	"github.com/pkg/errors"
)

const (
	tokenIDLength        = 32 // bytes, 256 bits
	maxIssueAttempts     = 3
	defaultIssuerName    = "go-token-issuer"
	defaultReuseWindow   = 24 * time.Hour
	claimKind            = "kind"
	defaultFullAccessTTL = time.Hour
	defaultReadOnlyTTL   = 24 * time.Hour
)

// Issuer issues, validates and revokes bearer tokens.
type Issuer struct {
	repo        Repo
	signer      Signer
	revoked     RevokedCache
	name        string // iss claim
	expiry      map[Kind]time.Duration
	reuseWindow time.Duration // how long records outlive their expiry
	nowFunc     func() time.Time
	randRead    func([]byte) (int, error)
}

type IssuerOption func(*Issuer)

func WithExpiry(kind Kind, d time.Duration) IssuerOption {
	return func(i *Issuer) {
		i.expiry[kind] = d
	}
}

func WithReuseWindow(d time.Duration) IssuerOption {
	return func(i *Issuer) {
		i.reuseWindow = d
	}
}

func WithIssuerName(name string) IssuerOption {
	return func(i *Issuer) {
		i.name = name
	}
}

func WithNowFunc(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.nowFunc = now
	}
}

// WithRandReader replaces the source of token IDs.
func WithRandReader(read func([]byte) (int, error)) IssuerOption {
	return func(i *Issuer) {
		i.randRead = read
	}
}

func NewIssuer(repo Repo, signer Signer, options ...IssuerOption) *Issuer {
	i := &Issuer{
		repo:    repo,
		signer:  signer,
		revoked: NewInMemoryRevokedCache(),
		name:    defaultIssuerName,
		expiry: map[Kind]time.Duration{
			FullAccess: defaultFullAccessTTL,
			ReadOnly:   defaultReadOnlyTTL,
		},
		reuseWindow: defaultReuseWindow,
		nowFunc:     time.Now,
		randRead:    rand.Read,
	}

	for _, opt := range options {
		opt(i)
	}
	return i
}

// Lifetime returns the configured validity of a kind.
func (i *Issuer) Lifetime(kind Kind) time.Duration {
	return i.expiry[kind]
}

// Issue creates and stores a new token. The identity must already be verified.
func (i *Issuer) Issue(ctx context.Context, identity string, kind Kind) (*Token, error) {
	if !kind.Valid() {
		return nil, errors.Wrapf(ErrUnsupportedKind, "%q", string(kind))
	}

	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		id, err := i.newTokenID()
		if err != nil {
			return nil, errors.Wrap(err, "Issuer.Issue newTokenID")
		}

		now := i.nowFunc()
		t := &Token{
			ID:        id,
			Identity:  identity,
			Kind:      kind,
			IssuedAt:  now,
			ExpiresAt: now.Add(i.expiry[kind]),
		}

		value, err := i.signer.Sign(jwt.MapClaims{
			"iss":     i.name,
			"sub":     identity,
			"jti":     id,
			claimKind: string(kind),
			"iat":     now.Unix(),
			"exp":     t.ExpiresAt.Unix(),
		})
		if err != nil {
			return nil, errors.Wrap(err, "Issuer.Issue Sign")
		}

		err = i.repo.Insert(ctx, t)
		if errors.Is(err, apperrors.ErrDuplicateTokenID) {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "Issuer.Issue Insert")
		}

		t.Value = value
		return t, nil
	}
	return nil, errors.Wrap(apperrors.ErrDuplicateTokenID, "Issuer.Issue exhausted attempts")
}

// Validate resolves a bearer value to its token. It fails with ErrUnknownToken for values
// this issuer never produced, ErrTokenRevoked for revoked tokens (regardless of expiry) and
// ErrTokenExpired once the expiry has passed. Any other error is a backend failure.
func (i *Issuer) Validate(ctx context.Context, value string) (*Token, error) {
	claims, err := i.parse(value)
	if err != nil {
		return nil, err
	}
	id := claims.id

	if i.revoked.IsRevoked(id) {
		return nil, apperrors.ErrTokenRevoked
	}

	t, err := i.repo.Get(ctx, id)
	if errors.Is(err, apperrors.ErrNotFound) {
		// records are purged once expiry plus the reuse window has passed
		if !claims.expiresAt.IsZero() && !i.nowFunc().Before(claims.expiresAt.Add(i.reuseWindow)) {
			return nil, apperrors.ErrTokenExpired
		}
		return nil, apperrors.ErrUnknownToken
	}
	if err != nil {
		return nil, errors.Wrap(err, "Issuer.Validate Get")
	}

	if t.Identity != claims.subject {
		return nil, apperrors.ErrUnknownToken
	}
	if t.Revoked() {
		return nil, apperrors.ErrTokenRevoked
	}
	if t.Expired(i.nowFunc()) {
		return nil, apperrors.ErrTokenExpired
	}

	t.Value = value
	return t, nil
}

// Revoke invalidates the token behind value. It is idempotent and a value that
// does not decode to one of our tokens is a no-op. The stored record is returned
// when one exists.
func (i *Issuer) Revoke(ctx context.Context, value string) (*Token, error) {
	claims, err := i.parse(value)
	if err != nil {
		return nil, nil
	}
	return i.RevokeByID(ctx, claims.id)
}

func (i *Issuer) RevokeByID(ctx context.Context, id string) (*Token, error) {
	t, err := i.repo.Revoke(ctx, id, i.nowFunc())
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "Issuer.RevokeByID")
	}
	i.revoked.Add(id, t.ExpiresAt.Add(i.reuseWindow))
	return t, nil
}

// ListByIdentity returns the stored records for an identity, including revoked and
// expired ones still inside the reuse window.
func (i *Issuer) ListByIdentity(ctx context.Context, identity string) ([]*Token, error) {
	tokens, err := i.repo.ListByIdentity(ctx, identity)
	if err != nil {
		return nil, errors.Wrap(err, "Issuer.ListByIdentity")
	}
	return tokens, nil
}

// Cleanup purges records whose expiry plus the reuse window has passed.
func (i *Issuer) Cleanup(ctx context.Context) (int, error) {
	now := i.nowFunc()
	i.revoked.Cleanup(now)
	n, err := i.repo.DeleteExpired(ctx, now.Add(-i.reuseWindow))
	if err != nil {
		return 0, errors.Wrap(err, "Issuer.Cleanup")
	}
	return n, nil
}

type signedClaims struct {
	id        string
	subject   string
	expiresAt time.Time // zero when the exp claim is missing
}

// parse verifies the signature and returns the claims Validate needs. Claim times
// are not checked here: expiry is decided against the stored record.
func (i *Issuer) parse(value string) (signedClaims, error) {
	if strings.TrimSpace(value) == "" {
		return signedClaims{}, apperrors.ErrUnknownToken
	}

	parsed, err := jwt.Parse(value, i.signer.GetVerificationKey,
		jwt.WithValidMethods([]string{i.signer.GetSigningMethod().Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || !parsed.Valid {
		return signedClaims{}, apperrors.ErrUnknownToken
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return signedClaims{}, apperrors.ErrUnknownToken
	}
	iss, _ := mc["iss"].(string)
	var c signedClaims
	c.id, _ = mc["jti"].(string)
	c.subject, _ = mc["sub"].(string)
	if iss != i.name || c.id == "" || c.subject == "" {
		return signedClaims{}, apperrors.ErrUnknownToken
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.expiresAt = exp.Time
	}
	return c, nil
}

func (i *Issuer) newTokenID() (string, error) {
	b := make([]byte, tokenIDLength)
	if _, err := i.randRead(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
