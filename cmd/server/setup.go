package main

import (
	"context"
	"database/sql"
	"io"
	"os"
	"time"

	"github.com/jrsteele09/go-token-issuer/audit"
	auditpostgres "github.com/jrsteele09/go-token-issuer/audit/postgres"
	"github.com/jrsteele09/go-token-issuer/auth"
	"github.com/jrsteele09/go-token-issuer/credentials"
	credentialspostgres "github.com/jrsteele09/go-token-issuer/credentials/postgres"
	fakecredentialrepo "github.com/jrsteele09/go-token-issuer/credentials/repofake"
	"github.com/jrsteele09/go-token-issuer/internal/config"
	"github.com/jrsteele09/go-token-issuer/internal/db"
	"github.com/jrsteele09/go-token-issuer/sessions"
	"github.com/jrsteele09/go-token-issuer/token"
	tokenpostgres "github.com/jrsteele09/go-token-issuer/token/postgres"
	"github.com/jrsteele09/go-token-issuer/token/redisrepo"
	faketokenrepo "github.com/jrsteele09/go-token-issuer/token/repofake"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// setupLogging configures the global logger: console output in DEV, JSON elsewhere.
func setupLogging(c config.Config) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stderr
	if c.GetEnv() == "DEV" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

type backends struct {
	credentials credentials.Repo
	tokens      token.Repo
	audit       audit.Sink
	closers     []io.Closer
}

// openBackends picks the stores: in-memory by default, Postgres when DATABASE_DSN is
// set and Redis for token records when REDIS_ADDR is set.
func openBackends(ctx context.Context, c config.Config) (*backends, error) {
	b := &backends{
		credentials: fakecredentialrepo.NewFakeCredentialRepo(),
		tokens:      faketokenrepo.NewFakeTokenRepo(),
		audit:       audit.NewLogSink(log.Logger),
	}

	if dsn := c.GetDatabaseDSN(); dsn != "" {
		conn, err := db.Open(ctx, dsn)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, conn)
		if err := db.Migrate(ctx, conn); err != nil {
			b.Close()
			return nil, err
		}
		b.usePostgres(conn)
		log.Info().Msg("Using PostgreSQL for credentials, tokens and audit records")
	} else {
		log.Warn().Msg("DATABASE_DSN not set: credentials and tokens are kept in memory")
	}

	if addr := c.GetRedisAddr(); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr, Password: c.GetRedisPassword()})
		b.closers = append(b.closers, client)
		if err := client.Ping(ctx).Err(); err != nil {
			b.Close()
			return nil, errors.Wrap(err, "redis ping")
		}
		b.tokens = redisrepo.NewRepository(client, c.GetTokenReuseWindow())
		log.Info().Str("addr", addr).Msg("Using Redis for token records")
	}
	return b, nil
}

func (b *backends) usePostgres(conn *sql.DB) {
	b.credentials = credentialspostgres.NewRepository(conn)
	b.tokens = tokenpostgres.NewRepository(conn)
	b.audit = audit.MultiSink{b.audit, auditpostgres.NewSink(conn)}
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil {
			log.Err(err).Msg("Failed to close backend")
		}
	}
	b.closers = nil
}

func signingKey(c config.Config) ([]byte, error) {
	if secret := c.GetSigningSecret(); secret != "" {
		return []byte(secret), nil
	}
	log.Warn().Msg("TOKEN_SIGNING_SECRET not set: using a random key, tokens will not survive a restart")
	return token.GenerateSecret()
}

func newService(c config.Config, b *backends) (*auth.Service, error) {
	store, err := credentials.NewStore(b.credentials, credentials.WithMinSecretLength(c.GetMinSecretLength()))
	if err != nil {
		return nil, err
	}

	key, err := signingKey(c)
	if err != nil {
		return nil, err
	}
	issuer := token.NewIssuer(b.tokens, token.NewHMACSigner(key),
		token.WithIssuerName(c.GetIssuer()),
		token.WithExpiry(token.FullAccess, c.GetFullAccessTokenExpiry()),
		token.WithExpiry(token.ReadOnly, c.GetReadOnlyTokenExpiry()),
		token.WithReuseWindow(c.GetTokenReuseWindow()),
	)

	return auth.NewService(store, issuer,
		auth.WithRegistry(sessions.NewRegistry(sessions.WithTimeout(c.GetSignInTimeout()))),
		auth.WithAuditSink(b.audit),
		auth.WithRefreshWindow(c.GetRefreshWindow()),
	)
}

// sweepLoop runs Service.Sweep every interval until ctx is done.
func sweepLoop(ctx context.Context, service *auth.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := service.Sweep(ctx)
			if err != nil {
				log.Err(err).Msg("Sweep failed")
				continue
			}
			if n > 0 {
				log.Debug().Int("purged", n).Msg("Swept expired tokens")
			}
		}
	}
}
