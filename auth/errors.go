package auth

import (
	"context"
	"errors"

	apperrors "github.com/jrsteele09/go-token-issuer/internal/errors"
)

// ErrorKind is the caller-facing classification of a failure.
type ErrorKind string

const (
	InvalidCredentials   ErrorKind = "InvalidCredentials"
	UnsupportedTokenKind ErrorKind = "UnsupportedTokenKind"
	Expired              ErrorKind = "Expired"
	Revoked              ErrorKind = "Revoked"
	Unknown              ErrorKind = "Unknown"
	CredentialRequired   ErrorKind = "CredentialRequired"
	Timeout              ErrorKind = "Timeout"
	InternalError        ErrorKind = "InternalError"
	InsufficientScope    ErrorKind = "InsufficientScope"
	IdentityExists       ErrorKind = "IdentityExists"
	InvalidRequest       ErrorKind = "InvalidRequest"
	Canceled             ErrorKind = "Canceled" // the caller went away
)

// Error is the only error type returned by Service.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the same request may succeed later. Only backend
// failures are; a timeout means an attempt is still running for the identity.
func (e *Error) Retryable() bool {
	return e.Kind == InternalError
}

// KindOf returns the kind of err, InternalError for foreign errors and "" for nil.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return InternalError
}

func newError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

var sentinelKinds = []struct {
	err  error
	kind ErrorKind
}{
	{apperrors.ErrInvalidCredentials, InvalidCredentials},
	{apperrors.ErrNotFound, InvalidCredentials},
	{apperrors.ErrUnsupportedKind, UnsupportedTokenKind},
	{apperrors.ErrTokenExpired, Expired},
	{apperrors.ErrTokenRevoked, Revoked},
	{apperrors.ErrUnknownToken, Unknown},
	{apperrors.ErrCredentialRequired, CredentialRequired},
	{apperrors.ErrTimeout, Timeout},
	{apperrors.ErrInsufficientScope, InsufficientScope},
	{apperrors.ErrIdentityExists, IdentityExists},
	{apperrors.ErrInvalidIdentity, InvalidRequest},
	{apperrors.ErrInvalidSecret, InvalidRequest},
	{context.Canceled, Canceled},
}

// classify maps an error from the lower packages onto an *Error.
func classify(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	for _, s := range sentinelKinds {
		if errors.Is(err, s.err) {
			return newError(s.kind, err)
		}
	}
	return newError(InternalError, err)
}
