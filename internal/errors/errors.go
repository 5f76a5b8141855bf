package errors

import (
	"errors"
	"fmt"
)

// Common error types shared by the credential, token and session packages
var (
	// Credential errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrIdentityExists     = errors.New("identity already registered")
	ErrInvalidIdentity    = errors.New("invalid identity")
	ErrInvalidSecret      = errors.New("invalid secret")

	// Token errors
	ErrUnknownToken       = errors.New("unknown token")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenRevoked       = errors.New("token revoked")
	ErrUnsupportedKind    = errors.New("unsupported token kind")
	ErrInsufficientScope  = errors.New("insufficient token scope")
	ErrDuplicateTokenID   = errors.New("duplicate token id")
	ErrCredentialRequired = errors.New("credential required")

	// Session errors
	ErrTimeout = errors.New("attempt timed out")

	// General errors
	ErrNotFound = errors.New("not found")
	ErrInternal = errors.New("internal error")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
