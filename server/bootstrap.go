package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/jrsteele09/go-token-issuer/auth"
	"github.com/rs/zerolog/log"
)

// Bootstrap registers identity with a generated secret if it is not registered yet.
// The secret is returned (and logged) only when the identity was created.
func (s *Server) Bootstrap(ctx context.Context, identity string) (generatedSecret string, err error) {
	if identity == "" {
		return "", nil
	}
	log.Info().Str("identity", identity).Msg("Bootstrap: checking identity")

	// Generate a secure random secret
	secretBytes := make([]byte, 16)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	generatedSecret = base64.RawURLEncoding.EncodeToString(secretBytes)

	err = s.auth.Register(ctx, identity, generatedSecret)
	if auth.KindOf(err) == auth.IdentityExists {
		log.Info().Str("identity", identity).Msg("Bootstrap: identity already registered")
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to bootstrap identity: %w", err)
	}

	log.Warn().
		Str("identity", identity).
		Str("secret", generatedSecret).
		Msg("Bootstrap: identity created. SAVE THIS SECRET - it will not be displayed again")
	return generatedSecret, nil
}
