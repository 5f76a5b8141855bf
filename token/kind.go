package token

import (
	apperrors "github.com/jrsteele09/go-token-issuer/internal/errors"
	"github.com/pkg/errors"
)

// Kind is the scope class of a token.
type Kind string

const (
	FullAccess Kind = "FullAccess"
	ReadOnly   Kind = "ReadOnly"
)

// ErrUnsupportedKind is returned for any kind other than FullAccess or ReadOnly.
var ErrUnsupportedKind = apperrors.ErrUnsupportedKind

var labels = map[Kind]string{
	FullAccess: "Full access to the account",
	ReadOnly:   "Read only access to the account",
}

// Kinds lists the supported kinds in a stable order.
func Kinds() []Kind {
	return []Kind{FullAccess, ReadOnly}
}

func (k Kind) Valid() bool {
	_, ok := labels[k]
	return ok
}

// Allows reports whether a token of kind k may perform an operation that requires scope required.
func (k Kind) Allows(required Kind) bool {
	switch k {
	case FullAccess:
		return required.Valid()
	case ReadOnly:
		return required == ReadOnly
	default:
		return false
	}
}

func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", errors.Wrapf(ErrUnsupportedKind, "%q", s)
	}
	return k, nil
}

// Label returns the human readable name of a kind. Unknown kinds are an error
// rather than a made-up label.
func Label(k Kind) (string, error) {
	label, ok := labels[k]
	if !ok {
		return "", errors.Wrapf(ErrUnsupportedKind, "%q", string(k))
	}
	return label, nil
}
