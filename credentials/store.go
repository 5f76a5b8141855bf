package credentials

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/jrsteele09/go-token-issuer/internal/errors"
	"github.com/pkg/errors"
)

const (
	defaultMinSecretLength = 5
	maxIdentityLength      = 256
	timingDummySecret      = "timing-equaliser"
)

// Store verifies and manages credentials on top of a Repo.
type Store struct {
	repo            Repo
	hasher          Hasher                 // used for new and changed secrets
	hashers         map[HashVersion]Hasher // used for verification
	minSecretLength int
	dummy           *Credential // verified against on lookup misses
	nowFunc         func() time.Time
}

type StoreOption func(*Store)

// WithHasher sets the hasher for new secrets. It is also registered for verification.
func WithHasher(h Hasher) StoreOption {
	return func(s *Store) {
		s.hasher = h
		s.hashers[h.Version()] = h
	}
}

func WithMinSecretLength(n int) StoreOption {
	return func(s *Store) {
		s.minSecretLength = n
	}
}

func WithNowFunc(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowFunc = now
	}
}

func NewStore(repo Repo, options ...StoreOption) (*Store, error) {
	if repo == nil {
		return nil, errors.New("[NewStore] repo is required")
	}

	argon := NewArgon2idHasher()
	bc := NewBcryptHasher()
	s := &Store{
		repo:   repo,
		hasher: argon,
		hashers: map[HashVersion]Hasher{
			argon.Version(): argon,
			bc.Version():    bc,
		},
		minSecretLength: defaultMinSecretLength,
		nowFunc:         time.Now,
	}

	for _, opt := range options {
		opt(s)
	}

	hash, salt, err := s.hasher.Hash(timingDummySecret)
	if err != nil {
		return nil, errors.Wrap(err, "[NewStore] dummy credential")
	}
	s.dummy = &Credential{SecretHash: hash, Salt: salt, HashVersion: s.hasher.Version()}

	return s, nil
}

// Verify reports whether secret matches the identity's stored credential.
// An unknown identity and a wrong secret are indistinguishable: both return false
// after the same amount of hashing work. Only backend failures return an error.
func (s *Store) Verify(ctx context.Context, identity, secret string) (bool, error) {
	c, err := s.repo.Get(ctx, identity)
	if err != nil {
		s.hasher.Verify(secret, s.dummy.SecretHash, s.dummy.Salt)
		if errors.Is(err, apperrors.ErrNotFound) {
			return false, nil
		}
		return false, errors.Wrap(err, "Store.Verify Get")
	}

	h, ok := s.hashers[c.HashVersion]
	if !ok {
		s.hasher.Verify(secret, s.dummy.SecretHash, s.dummy.Salt)
		return false, errors.Wrapf(apperrors.ErrInternal, "Store.Verify unsupported hash version %q", c.HashVersion)
	}
	return h.Verify(secret, c.SecretHash, c.Salt), nil
}

// Register stores a new credential for identity.
func (s *Store) Register(ctx context.Context, identity, secret string) error {
	if err := validateIdentity(identity); err != nil {
		return err
	}
	if err := s.validateSecret(secret); err != nil {
		return err
	}

	hash, salt, err := s.hasher.Hash(secret)
	if err != nil {
		return errors.Wrap(err, "Store.Register Hash")
	}

	now := s.nowFunc()
	if err := s.repo.Insert(ctx, &Credential{
		Identity:    identity,
		SecretHash:  hash,
		Salt:        salt,
		HashVersion: s.hasher.Version(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		return errors.Wrap(err, "Store.Register Insert")
	}
	return nil
}

// ChangeSecret replaces the secret after verifying the current one.
// Records hashed with an older version are rehashed with the current hasher.
func (s *Store) ChangeSecret(ctx context.Context, identity, oldSecret, newSecret string) error {
	ok, err := s.Verify(ctx, identity, oldSecret)
	if err != nil {
		return errors.Wrap(err, "Store.ChangeSecret Verify")
	}
	if !ok {
		return apperrors.ErrInvalidCredentials
	}
	if err := s.validateSecret(newSecret); err != nil {
		return err
	}

	hash, salt, err := s.hasher.Hash(newSecret)
	if err != nil {
		return errors.Wrap(err, "Store.ChangeSecret Hash")
	}

	if err := s.repo.Update(ctx, &Credential{
		Identity:    identity,
		SecretHash:  hash,
		Salt:        salt,
		HashVersion: s.hasher.Version(),
		UpdatedAt:   s.nowFunc(),
	}); err != nil {
		return errors.Wrap(err, "Store.ChangeSecret Update")
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, identity string) error {
	if err := s.repo.Delete(ctx, identity); err != nil {
		return errors.Wrap(err, "Store.Delete")
	}
	return nil
}

func validateIdentity(identity string) error {
	if strings.TrimSpace(identity) == "" {
		return errors.Wrap(apperrors.ErrInvalidIdentity, "identity must not be empty")
	}
	if utf8.RuneCountInString(identity) > maxIdentityLength {
		return errors.Wrapf(apperrors.ErrInvalidIdentity, "identity longer than %d characters", maxIdentityLength)
	}
	return nil
}

func (s *Store) validateSecret(secret string) error {
	if utf8.RuneCountInString(secret) < s.minSecretLength {
		return errors.Wrapf(apperrors.ErrInvalidSecret, "secret must be at least %d characters long", s.minSecretLength)
	}
	return nil
}
