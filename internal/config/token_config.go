package config

import "time"

type TokenConfig interface {
	GetSigningSecret() string
	GetIssuer() string
	GetFullAccessTokenExpiry() time.Duration
	GetReadOnlyTokenExpiry() time.Duration
	GetRefreshWindow() time.Duration
	GetTokenReuseWindow() time.Duration
}

type Tokens struct{}

var _ TokenConfig = Tokens{}

// GetSigningSecret returns the HMAC key for token values. Empty means the caller
// should generate a per-process key.
func (Tokens) GetSigningSecret() string {
	return GetEnv("TOKEN_SIGNING_SECRET", "")
}

func (Tokens) GetIssuer() string {
	return GetEnv("TOKEN_ISSUER", "go-token-issuer")
}

func (Tokens) GetFullAccessTokenExpiry() time.Duration {
	return GetEnvDuration("FULL_ACCESS_TOKEN_TTL", time.Hour)
}

func (Tokens) GetReadOnlyTokenExpiry() time.Duration {
	return GetEnvDuration("READ_ONLY_TOKEN_TTL", 24*time.Hour)
}

// GetRefreshWindow is how close to expiry a token must be before Refresh re-issues it.
func (Tokens) GetRefreshWindow() time.Duration {
	return GetEnvDuration("REFRESH_WINDOW", 10*time.Minute)
}

// GetTokenReuseWindow is how long a token record outlives its expiry.
func (Tokens) GetTokenReuseWindow() time.Duration {
	return GetEnvDuration("TOKEN_REUSE_WINDOW", 24*time.Hour)
}
