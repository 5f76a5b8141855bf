package auth_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-token-issuer/audit"
	"github.com/jrsteele09/go-token-issuer/auth"
	"github.com/jrsteele09/go-token-issuer/credentials"
	fakecredentialrepo "github.com/jrsteele09/go-token-issuer/credentials/repofake"
	apperrors "github.com/jrsteele09/go-token-issuer/internal/errors"
	"github.com/jrsteele09/go-token-issuer/sessions"
	"github.com/jrsteele09/go-token-issuer/token"
	faketokenrepo "github.com/jrsteele09/go-token-issuer/token/repofake"
	"github.com/stretchr/testify/require"
)

const (
	alice       = "alice"
	aliceSecret = "pw123"
	bob         = "bob"
)

var signingKey = []byte("0123456789abcdef0123456789abcdef")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingStore counts verifications and can hold them until gate is closed.
type countingStore struct {
	*credentials.Store
	verifies atomic.Int32
	started  chan struct{}
	once     sync.Once
	gate     chan struct{}
}

func (c *countingStore) Verify(ctx context.Context, identity, secret string) (bool, error) {
	c.verifies.Add(1)
	c.once.Do(func() { close(c.started) })
	if c.gate != nil {
		<-c.gate
	}
	return c.Store.Verify(ctx, identity, secret)
}

type failingCredentialRepo struct {
	*fakecredentialrepo.FakeCredentialRepo
	err error
}

func (f failingCredentialRepo) Get(context.Context, string) (*credentials.Credential, error) {
	return nil, f.err
}

type panickingCredentialRepo struct {
	*fakecredentialrepo.FakeCredentialRepo
}

func (panickingCredentialRepo) Get(context.Context, string) (*credentials.Credential, error) {
	panic("nil driver connection")
}

type failingTokenRepo struct {
	*faketokenrepo.FakeTokenRepo
	err error
}

func (f failingTokenRepo) Insert(context.Context, *token.Token) error {
	return f.err
}

type failingSink struct{}

func (failingSink) Write(context.Context, audit.Record) error {
	return errors.New("sink unavailable")
}

type serviceFixture struct {
	clock     *testClock
	creds     *countingStore
	tokenRepo token.Repo
	issuer    *token.Issuer
	registry  *sessions.Registry
	sink      *audit.MemorySink
	service   *auth.Service
}

type fixtureConfig struct {
	credRepo     credentials.Repo
	tokenRepo    token.Repo
	gate         chan struct{}
	timeout      time.Duration
	serviceOpts  []auth.ServiceOption
	skipRegister bool
}

func setupService(t *testing.T, cfg fixtureConfig) *serviceFixture {
	t.Helper()

	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	if cfg.credRepo == nil {
		cfg.credRepo = fakecredentialrepo.NewFakeCredentialRepo()
	}
	if cfg.tokenRepo == nil {
		cfg.tokenRepo = faketokenrepo.NewFakeTokenRepo()
	}
	if cfg.timeout == 0 {
		cfg.timeout = 2 * time.Second
	}

	store, err := credentials.NewStore(cfg.credRepo,
		credentials.WithHasher(&credentials.Argon2idHasher{Time: 1, Memory: 64, Threads: 1, KeyLen: 32}),
		credentials.WithMinSecretLength(5),
		credentials.WithNowFunc(clock.Now),
	)
	require.NoError(t, err)
	creds := &countingStore{Store: store, started: make(chan struct{}), gate: cfg.gate}

	issuer := token.NewIssuer(cfg.tokenRepo, token.NewHMACSigner(signingKey),
		token.WithNowFunc(clock.Now),
		token.WithReuseWindow(time.Hour),
	)
	registry := sessions.NewRegistry(sessions.WithNowFunc(clock.Now), sessions.WithTimeout(cfg.timeout))
	sink := audit.NewMemorySink()

	opts := append([]auth.ServiceOption{
		auth.WithRegistry(registry),
		auth.WithAuditSink(sink),
		auth.WithNowFunc(clock.Now),
	}, cfg.serviceOpts...)
	service, err := auth.NewService(creds, issuer, opts...)
	require.NoError(t, err)

	if !cfg.skipRegister {
		require.NoError(t, store.Register(context.Background(), alice, aliceSecret))
	}

	return &serviceFixture{
		clock:     clock,
		creds:     creds,
		tokenRepo: cfg.tokenRepo,
		issuer:    issuer,
		registry:  registry,
		sink:      sink,
		service:   service,
	}
}

func requireKind(t *testing.T, err error, kind auth.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	var e *auth.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, kind, e.Kind)
}

func TestNewService(t *testing.T) {
	_, err := auth.NewService(nil, token.NewIssuer(faketokenrepo.NewFakeTokenRepo(), token.NewHMACSigner(signingKey)))
	require.Error(t, err)

	store, err := credentials.NewStore(fakecredentialrepo.NewFakeCredentialRepo())
	require.NoError(t, err)
	_, err = auth.NewService(store, nil)
	require.Error(t, err)

	s, err := auth.NewService(store, token.NewIssuer(faketokenrepo.NewFakeTokenRepo(), token.NewHMACSigner(signingKey)))
	require.NoError(t, err)
	require.NotNil(t, s)
}

func TestService_AliceScenario(t *testing.T) {
	ctx := context.Background()
	f := setupService(t, fixtureConfig{skipRegister: true})

	require.NoError(t, f.service.Register(ctx, alice, aliceSecret))

	t1, err := f.service.SignIn(ctx, alice, aliceSecret, token.FullAccess)
	require.NoError(t, err)

	validated, err := f.service.Validate(ctx, t1.Value)
	require.NoError(t, err)
	require.Equal(t, alice, validated.Identity)
	require.Equal(t, token.FullAccess, validated.Kind)

	require.NoError(t, f.service.Revoke(ctx, t1.Value))

	_, err = f.service.Validate(ctx, t1.Value)
	requireKind(t, err, auth.Revoked)

	records := f.sink.Filter(alice, "")
	require.Len(t, records, 3)
	require.Equal(t, audit.ActionRegister, records[0].Action)
	require.Equal(t, audit.ActionSignIn, records[1].Action)
	require.Equal(t, audit.OutcomeIssued, records[1].Outcome)
	require.Equal(t, audit.ActionRevoke, records[2].Action)
}

func TestService_SignInInvalidCredentials(t *testing.T) {
	ctx := context.Background()
	f := setupService(t, fixtureConfig{})

	_, unregistered := f.service.SignIn(ctx, bob, "wrong", token.ReadOnly)
	requireKind(t, unregistered, auth.InvalidCredentials)

	require.NoError(t, f.service.Register(ctx, bob, "right-secret"))
	_, wrongSecret := f.service.SignIn(ctx, bob, "wrong", token.ReadOnly)
	requireKind(t, wrongSecret, auth.InvalidCredentials)

	require.Equal(t, unregistered.Error(), wrongSecret.Error())
	require.Equal(t, int32(2), f.creds.verifies.Load())

	failed := 0
	for _, r := range f.sink.Filter(bob, audit.ActionSignIn) {
		require.Equal(t, audit.OutcomeFailed, r.Outcome)
		require.Equal(t, string(auth.InvalidCredentials), r.Detail)
		failed++
	}
	require.Equal(t, 2, failed)
}

func TestService_SignInUnsupportedKind(t *testing.T) {
	f := setupService(t, fixtureConfig{})

	_, err := f.service.SignIn(context.Background(), alice, aliceSecret, token.Kind("Admin"))
	requireKind(t, err, auth.UnsupportedTokenKind)
	require.Equal(t, int32(0), f.creds.verifies.Load())
	require.Len(t, f.sink.Filter(alice, audit.ActionSignIn), 1)
}

func TestService_ConcurrentSignIn(t *testing.T) {
	t.Run("identical requests share one verification and one token", func(t *testing.T) {
		gate := make(chan struct{})
		f := setupService(t, fixtureConfig{gate: gate})

		const callers = 8
		tokens := make(chan *token.Token, callers)
		var wg sync.WaitGroup
		signIn := func() {
			defer wg.Done()
			tok, err := f.service.SignIn(context.Background(), alice, aliceSecret, token.FullAccess)
			require.NoError(t, err)
			tokens <- tok
		}

		wg.Add(1)
		go signIn()
		<-f.creds.started
		for i := 1; i < callers; i++ {
			wg.Add(1)
			go signIn()
		}
		time.Sleep(100 * time.Millisecond)
		close(gate)
		wg.Wait()
		close(tokens)

		var first *token.Token
		for tok := range tokens {
			if first == nil {
				first = tok
			}
			require.Equal(t, first.ID, tok.ID)
			require.Equal(t, first.Value, tok.Value)
		}
		require.Equal(t, int32(1), f.creds.verifies.Load())
		require.Len(t, f.sink.Filter(alice, audit.ActionSignIn), 1)
		require.Equal(t, []string{first.ID}, f.registry.Tokens(alice))
	})

	t.Run("a different secret is verified on its own", func(t *testing.T) {
		gate := make(chan struct{})
		f := setupService(t, fixtureConfig{gate: gate})

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.service.SignIn(context.Background(), alice, aliceSecret, token.FullAccess)
			require.NoError(t, err)
		}()
		<-f.creds.started
		go func() {
			defer wg.Done()
			_, err := f.service.SignIn(context.Background(), alice, "guess", token.FullAccess)
			requireKind(t, err, auth.InvalidCredentials)
		}()
		time.Sleep(50 * time.Millisecond)
		close(gate)
		wg.Wait()

		require.Equal(t, int32(2), f.creds.verifies.Load())
	})
}

func TestService_SignInTimeout(t *testing.T) {
	gate := make(chan struct{})
	f := setupService(t, fixtureConfig{gate: gate, timeout: 50 * time.Millisecond})
	defer close(gate)

	_, err := f.service.SignIn(context.Background(), alice, aliceSecret, token.ReadOnly)
	requireKind(t, err, auth.Timeout)

	var e *auth.Error
	require.ErrorAs(t, err, &e)
	require.False(t, e.Retryable())
}

func TestService_SignInCancelled(t *testing.T) {
	gate := make(chan struct{})
	f := setupService(t, fixtureConfig{gate: gate})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.service.SignIn(ctx, alice, aliceSecret, token.FullAccess)
		done <- err
	}()
	<-f.creds.started
	cancel()

	err := <-done
	requireKind(t, err, auth.Canceled)
	require.ErrorIs(t, err, context.Canceled)

	var e *auth.Error
	require.ErrorAs(t, err, &e)
	require.False(t, e.Retryable())
	close(gate)
}

func TestService_BackendFailures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection reset")

	t.Run("credential backend", func(t *testing.T) {
		f := setupService(t, fixtureConfig{
			credRepo:     failingCredentialRepo{FakeCredentialRepo: fakecredentialrepo.NewFakeCredentialRepo(), err: boom},
			skipRegister: true,
		})

		_, err := f.service.SignIn(ctx, alice, aliceSecret, token.FullAccess)
		requireKind(t, err, auth.InternalError)
		require.ErrorIs(t, err, boom)

		var e *auth.Error
		require.ErrorAs(t, err, &e)
		require.True(t, e.Retryable())
	})

	t.Run("credential backend panic", func(t *testing.T) {
		f := setupService(t, fixtureConfig{
			credRepo:     panickingCredentialRepo{FakeCredentialRepo: fakecredentialrepo.NewFakeCredentialRepo()},
			skipRegister: true,
		})

		var wg sync.WaitGroup
		errs := make([]error, 3)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = f.service.SignIn(ctx, alice, aliceSecret, token.FullAccess)
			}(i)
		}
		wg.Wait()

		for _, err := range errs {
			requireKind(t, err, auth.InternalError)
			require.ErrorIs(t, err, apperrors.ErrInternal)
		}
		require.Equal(t, sessions.Idle, f.registry.State(alice))
	})

	t.Run("token backend", func(t *testing.T) {
		f := setupService(t, fixtureConfig{
			tokenRepo: failingTokenRepo{FakeTokenRepo: faketokenrepo.NewFakeTokenRepo(), err: boom},
		})

		_, err := f.service.SignIn(ctx, alice, aliceSecret, token.FullAccess)
		requireKind(t, err, auth.InternalError)
		require.Equal(t, 0, f.registry.Len())
	})

	t.Run("audit sink failure does not fail the request", func(t *testing.T) {
		f := setupService(t, fixtureConfig{serviceOpts: []auth.ServiceOption{auth.WithAuditSink(failingSink{})}})

		_, err := f.service.SignIn(ctx, alice, aliceSecret, token.FullAccess)
		require.NoError(t, err)
	})
}

func TestService_ValidateAfterRevoke(t *testing.T) {
	ctx := context.Background()
	f := setupService(t, fixtureConfig{})

	var values []string
	for _, kind := range token.Kinds() {
		tok, err := f.service.SignIn(ctx, alice, aliceSecret, kind)
		require.NoError(t, err)
		values = append(values, tok.Value)
	}

	for _, v := range values {
		require.NoError(t, f.service.Revoke(ctx, v))
		require.NoError(t, f.service.Revoke(ctx, v))
	}

	for _, advance := range []time.Duration{0, time.Minute, 2 * time.Hour, 25 * time.Hour} {
		f.clock.Advance(advance)
		for _, v := range values {
			_, err := f.service.Validate(ctx, v)
			requireKind(t, err, auth.Revoked)
		}
	}

	require.NoError(t, f.service.Revoke(ctx, "not-a-token"))
	_, err := f.service.Validate(ctx, "not-a-token")
	requireKind(t, err, auth.Unknown)
}

func TestService_Validate(t *testing.T) {
	ctx := context.Background()
	f := setupService(t, fixtureConfig{})

	tok, err := f.service.SignIn(ctx, alice, aliceSecret, token.FullAccess)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	_, err = f.service.Validate(ctx, tok.Value)
	requireKind(t, err, auth.Expired)

	_, err = f.service.Validate(ctx, "")
	requireKind(t, err, auth.Unknown)
}

func TestService_Refresh(t *testing.T) {
	ctx := context.Background()

	t.Run("token outside the refresh window is returned unchanged", func(t *testing.T) {
		f := setupService(t, fixtureConfig{})
		tok, err := f.service.SignIn(ctx, alice, aliceSecret, token.FullAccess)
		require.NoError(t, err)

		f.clock.Advance(30 * time.Minute)
		same, err := f.service.Refresh(ctx, tok.Value)
		require.NoError(t, err)
		require.Equal(t, tok.ID, same.ID)
		require.Equal(t, tok.Value, same.Value)

		refreshes := f.sink.Filter(alice, audit.ActionRefresh)
		require.Len(t, refreshes, 1)
		require.Equal(t, audit.OutcomeReused, refreshes[0].Outcome)
	})

	t.Run("token inside the refresh window is replaced", func(t *testing.T) {
		f := setupService(t, fixtureConfig{})
		tok, err := f.service.SignIn(ctx, alice, aliceSecret, token.ReadOnly)
		require.NoError(t, err)

		f.clock.Advance(24*time.Hour - 5*time.Minute)
		next, err := f.service.Refresh(ctx, tok.Value)
		require.NoError(t, err)
		require.NotEqual(t, tok.ID, next.ID)
		require.Equal(t, token.ReadOnly, next.Kind)
		require.Equal(t, f.clock.Now().Add(24*time.Hour), next.ExpiresAt)

		_, err = f.service.Validate(ctx, tok.Value)
		requireKind(t, err, auth.Revoked)
		_, err = f.service.Validate(ctx, next.Value)
		require.NoError(t, err)
		require.Equal(t, []string{next.ID}, f.registry.Tokens(alice))

		_, err = f.service.Refresh(ctx, tok.Value)
		requireKind(t, err, auth.CredentialRequired)
	})

	t.Run("concurrent refreshes never yield two replacements", func(t *testing.T) {
		f := setupService(t, fixtureConfig{})
		tok, err := f.service.SignIn(ctx, alice, aliceSecret, token.FullAccess)
		require.NoError(t, err)
		f.clock.Advance(55 * time.Minute)

		const callers = 8
		var (
			mu  sync.Mutex
			ids = map[string]struct{}{}
			wg  sync.WaitGroup
		)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				next, err := f.service.Refresh(ctx, tok.Value)
				if err != nil {
					requireKind(t, err, auth.CredentialRequired)
					return
				}
				mu.Lock()
				ids[next.ID] = struct{}{}
				mu.Unlock()
			}()
		}
		wg.Wait()

		require.Len(t, ids, 1)
		live, err := f.service.LiveTokens(ctx, alice)
		require.NoError(t, err)
		require.Len(t, live, 1)
	})

	t.Run("invalid tokens require credentials", func(t *testing.T) {
		f := setupService(t, fixtureConfig{})
		expired, err := f.service.SignIn(ctx, alice, aliceSecret, token.FullAccess)
		require.NoError(t, err)
		revoked, err := f.service.SignIn(ctx, alice, aliceSecret, token.ReadOnly)
		require.NoError(t, err)
		require.NoError(t, f.service.Revoke(ctx, revoked.Value))
		f.clock.Advance(time.Hour)

		for _, v := range []string{expired.Value, revoked.Value, "garbage", ""} {
			tok, err := f.service.Refresh(ctx, v)
			require.Nil(t, tok)
			requireKind(t, err, auth.CredentialRequired)
		}
	})
}

func TestService_Authorize(t *testing.T) {
	ctx := context.Background()
	f := setupService(t, fixtureConfig{})

	full, err := f.service.SignIn(ctx, alice, aliceSecret, token.FullAccess)
	require.NoError(t, err)
	readOnly, err := f.service.SignIn(ctx, alice, aliceSecret, token.ReadOnly)
	require.NoError(t, err)

	_, err = f.service.Authorize(ctx, full.Value, token.FullAccess)
	require.NoError(t, err)
	_, err = f.service.Authorize(ctx, full.Value, token.ReadOnly)
	require.NoError(t, err)
	_, err = f.service.Authorize(ctx, readOnly.Value, token.ReadOnly)
	require.NoError(t, err)

	_, err = f.service.Authorize(ctx, readOnly.Value, token.FullAccess)
	requireKind(t, err, auth.InsufficientScope)

	_, err = f.service.Authorize(ctx, full.Value, token.Kind("Admin"))
	requireKind(t, err, auth.UnsupportedTokenKind)
}

func TestService_TokenLabel(t *testing.T) {
	f := setupService(t, fixtureConfig{})

	full, err := f.service.TokenLabel("FullAccess")
	require.NoError(t, err)
	readOnly, err := f.service.TokenLabel("ReadOnly")
	require.NoError(t, err)
	require.NotEmpty(t, full)
	require.NotEmpty(t, readOnly)
	require.NotEqual(t, full, readOnly)

	again, err := f.service.TokenLabel("FullAccess")
	require.NoError(t, err)
	require.Equal(t, full, again)

	label, err := f.service.TokenLabel("Admin")
	require.Empty(t, label)
	requireKind(t, err, auth.UnsupportedTokenKind)
}

func TestService_SignOut(t *testing.T) {
	ctx := context.Background()
	f := setupService(t, fixtureConfig{})

	a, err := f.service.SignIn(ctx, alice, aliceSecret, token.FullAccess)
	require.NoError(t, err)
	b, err := f.service.SignIn(ctx, alice, aliceSecret, token.ReadOnly)
	require.NoError(t, err)

	n, err := f.service.SignOut(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	for _, v := range []string{a.Value, b.Value} {
		_, err := f.service.Validate(ctx, v)
		requireKind(t, err, auth.Revoked)
	}
	live, err := f.service.LiveTokens(ctx, alice)
	require.NoError(t, err)
	require.Empty(t, live)
	require.Equal(t, 0, f.registry.Len())

	n, err = f.service.SignOut(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestService_Accounts(t *testing.T) {
	ctx := context.Background()

	t.Run("register validation", func(t *testing.T) {
		f := setupService(t, fixtureConfig{})
		requireKind(t, f.service.Register(ctx, alice, "another"), auth.IdentityExists)
		requireKind(t, f.service.Register(ctx, "", "secret"), auth.InvalidRequest)
		requireKind(t, f.service.Register(ctx, bob, "abc"), auth.InvalidRequest)
	})

	t.Run("change secret revokes existing tokens", func(t *testing.T) {
		f := setupService(t, fixtureConfig{})
		tok, err := f.service.SignIn(ctx, alice, aliceSecret, token.FullAccess)
		require.NoError(t, err)

		requireKind(t, f.service.ChangeSecret(ctx, alice, "wrong", "newsecret"), auth.InvalidCredentials)
		requireKind(t, f.service.ChangeSecret(ctx, alice, aliceSecret, "abc"), auth.InvalidRequest)
		require.NoError(t, f.service.ChangeSecret(ctx, alice, aliceSecret, "newsecret"))

		_, err = f.service.Validate(ctx, tok.Value)
		requireKind(t, err, auth.Revoked)

		_, err = f.service.SignIn(ctx, alice, aliceSecret, token.FullAccess)
		requireKind(t, err, auth.InvalidCredentials)
		_, err = f.service.SignIn(ctx, alice, "newsecret", token.FullAccess)
		require.NoError(t, err)
	})

	t.Run("delete account", func(t *testing.T) {
		f := setupService(t, fixtureConfig{})
		tok, err := f.service.SignIn(ctx, alice, aliceSecret, token.ReadOnly)
		require.NoError(t, err)

		requireKind(t, f.service.DeleteAccount(ctx, alice, "wrong"), auth.InvalidCredentials)
		require.NoError(t, f.service.DeleteAccount(ctx, alice, aliceSecret))

		_, err = f.service.Validate(ctx, tok.Value)
		requireKind(t, err, auth.Revoked)
		_, err = f.service.SignIn(ctx, alice, aliceSecret, token.ReadOnly)
		requireKind(t, err, auth.InvalidCredentials)

		deletes := f.sink.Filter(alice, audit.ActionDelete)
		require.Len(t, deletes, 2)
		require.Equal(t, audit.OutcomeFailed, deletes[0].Outcome)
		require.Equal(t, audit.OutcomeOK, deletes[1].Outcome)
	})
}

func TestService_Sweep(t *testing.T) {
	ctx := context.Background()
	f := setupService(t, fixtureConfig{})

	_, err := f.service.SignIn(ctx, alice, aliceSecret, token.FullAccess)
	require.NoError(t, err)
	_, err = f.service.SignIn(ctx, alice, aliceSecret, token.ReadOnly)
	require.NoError(t, err)

	f.clock.Advance(2*time.Hour + time.Second)
	n, err := f.service.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 1, f.registry.Len())

	f.clock.Advance(24 * time.Hour)
	n, err = f.service.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 0, f.registry.Len())
}

func TestService_Session(t *testing.T) {
	ctx := context.Background()
	f := setupService(t, fixtureConfig{})

	view := f.service.Session(alice)
	require.Equal(t, sessions.Idle, view.State)
	require.Equal(t, sessions.NoOutcome, view.LastOutcome)
	require.Empty(t, view.Tracked)
	require.Zero(t, f.service.SessionCount())

	issued, err := f.service.SignIn(ctx, alice, aliceSecret, token.ReadOnly)
	require.NoError(t, err)

	view = f.service.Session(alice)
	require.Equal(t, sessions.Issued, view.LastOutcome)
	require.Equal(t, []string{issued.ID}, view.Tracked)
	require.Equal(t, 1, f.service.SessionCount())

	require.NoError(t, f.service.Revoke(ctx, issued.Value))
	require.Empty(t, f.service.Session(alice).Tracked)
}
