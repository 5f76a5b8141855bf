package credentials

import (
	"crypto/rand"
	"crypto/subtle"

	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Hasher derives and checks secret hashes for one HashVersion.
type Hasher interface {
	Version() HashVersion
	Hash(secret string) (hash []byte, salt []byte, err error)
	Verify(secret string, hash, salt []byte) bool
}

const argon2SaltLength = 16

// Argon2idHasher uses argon2id with a random per-credential salt.
type Argon2idHasher struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
}

var _ Hasher = (*Argon2idHasher)(nil)

// NewArgon2idHasher returns a hasher with the OWASP minimum argon2id parameters.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{
		Time:    2,
		Memory:  19 * 1024,
		Threads: 1,
		KeyLen:  32,
	}
}

func (h *Argon2idHasher) Version() HashVersion {
	return HashArgon2id
}

func (h *Argon2idHasher) Hash(secret string) ([]byte, []byte, error) {
	salt := make([]byte, argon2SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, errors.Wrap(err, "Argon2idHasher.Hash rand.Read")
	}
	return argon2.IDKey([]byte(secret), salt, h.Time, h.Memory, h.Threads, h.KeyLen), salt, nil
}

func (h *Argon2idHasher) Verify(secret string, hash, salt []byte) bool {
	if len(hash) == 0 {
		return false
	}
	derived := argon2.IDKey([]byte(secret), salt, h.Time, h.Memory, h.Threads, uint32(len(hash)))
	return subtle.ConstantTimeCompare(derived, hash) == 1
}

// BcryptHasher keeps the salt inside the hash, so the salt column stays empty.
type BcryptHasher struct {
	Cost int
}

var _ Hasher = (*BcryptHasher)(nil)

func NewBcryptHasher() *BcryptHasher {
	return &BcryptHasher{Cost: bcrypt.DefaultCost}
}

func (h *BcryptHasher) Version() HashVersion {
	return HashBcrypt
}

func (h *BcryptHasher) Hash(secret string) ([]byte, []byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), h.Cost)
	if err != nil {
		return nil, nil, errors.Wrap(err, "BcryptHasher.Hash")
	}
	return hash, nil, nil
}

func (h *BcryptHasher) Verify(secret string, hash, _ []byte) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(secret)) == nil
}
