package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-token-issuer/auth"
	apperrors "github.com/jrsteele09/go-token-issuer/internal/errors"
	"github.com/jrsteele09/go-token-issuer/token"
	"github.com/pkg/errors"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeyToken stores the validated bearer token
const ContextKeyToken ContextKey = "token"

// RequireToken is middleware that validates a Bearer token and checks that its kind covers required.
func (s *Server) RequireToken(required token.Kind) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			value, err := bearerToken(r)
			if err != nil {
				s.writeError(w, r, &auth.Error{Kind: auth.CredentialRequired, Err: err})
				return
			}

			t, err := s.auth.Authorize(r.Context(), value, required)
			if err != nil {
				s.writeError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyToken, t)
			next(w, r.WithContext(ctx))
		}
	}
}

func tokenFromContext(ctx context.Context) (*token.Token, bool) {
	t, ok := ctx.Value(ContextKeyToken).(*token.Token)
	return t, ok
}

func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.Wrap(apperrors.ErrCredentialRequired, "missing Authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", errors.Wrap(apperrors.ErrCredentialRequired, "invalid Authorization header format")
	}

	value := strings.TrimSpace(parts[1])
	if value == "" {
		return "", errors.Wrap(apperrors.ErrCredentialRequired, "empty token")
	}
	return value, nil
}
