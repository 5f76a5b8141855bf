// Package auth is the request handler in front of the credential store, the token
// issuer and the session registry. Every failure it returns is an *Error.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-token-issuer/audit"
	apperrors "github.com/jrsteele09/go-token-issuer/internal/errors"
	"github.com/jrsteele09/go-token-issuer/sessions"
	"github.com/jrsteele09/go-token-issuer/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const defaultRefreshWindow = 10 * time.Minute

// CredentialStore is satisfied by *credentials.Store.
type CredentialStore interface {
	Verify(ctx context.Context, identity, secret string) (bool, error)
	Register(ctx context.Context, identity, secret string) error
	ChangeSecret(ctx context.Context, identity, oldSecret, newSecret string) error
	Delete(ctx context.Context, identity string) error
}

// TokenIssuer is satisfied by *token.Issuer.
type TokenIssuer interface {
	Issue(ctx context.Context, identity string, kind token.Kind) (*token.Token, error)
	Validate(ctx context.Context, value string) (*token.Token, error)
	Revoke(ctx context.Context, value string) (*token.Token, error)
	RevokeByID(ctx context.Context, id string) (*token.Token, error)
	ListByIdentity(ctx context.Context, identity string) ([]*token.Token, error)
	Cleanup(ctx context.Context) (int, error)
}

type Service struct {
	credentials   CredentialStore
	tokens        TokenIssuer
	sessions      *sessions.Registry
	audit         audit.Sink
	refreshWindow time.Duration // tokens closer than this to expiry are replaced on Refresh
	nowFunc       func() time.Time
}

type ServiceOption func(*Service)

func WithRegistry(r *sessions.Registry) ServiceOption {
	return func(s *Service) {
		s.sessions = r
	}
}

func WithAuditSink(sink audit.Sink) ServiceOption {
	return func(s *Service) {
		s.audit = sink
	}
}

func WithRefreshWindow(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.refreshWindow = d
	}
}

func WithNowFunc(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowFunc = now
	}
}

func NewService(creds CredentialStore, tokens TokenIssuer, options ...ServiceOption) (*Service, error) {
	if creds == nil {
		return nil, errors.New("[NewService] credential store is required")
	}
	if tokens == nil {
		return nil, errors.New("[NewService] token issuer is required")
	}

	s := &Service{
		credentials:   creds,
		tokens:        tokens,
		refreshWindow: defaultRefreshWindow,
		nowFunc:       time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.sessions == nil {
		s.sessions = sessions.NewRegistry(sessions.WithNowFunc(s.nowFunc))
	}
	if s.audit == nil {
		s.audit = audit.NewLogSink(log.Logger)
	}
	return s, nil
}

// SignIn verifies the secret and issues a token of the requested kind. Concurrent
// requests with the same identity, secret and kind share a single verification and
// a single token.
func (s *Service) SignIn(ctx context.Context, identity, secret string, kind token.Kind) (*token.Token, error) {
	if !kind.Valid() {
		e := newError(UnsupportedTokenKind, errors.Wrapf(apperrors.ErrUnsupportedKind, "%q", string(kind)))
		s.record(ctx, identity, kind, audit.ActionSignIn, audit.OutcomeFailed, string(e.Kind))
		return nil, e
	}

	v, err := s.sessions.Do(ctx, identity, signInKey(kind, secret), func(ctx context.Context) (any, error) {
		ok, err := s.credentials.Verify(ctx, identity, secret)
		if err == nil && !ok {
			err = apperrors.ErrInvalidCredentials
		}
		if err != nil {
			s.record(ctx, identity, kind, audit.ActionSignIn, audit.OutcomeFailed, string(classify(err).Kind))
			return nil, err
		}

		t, err := s.tokens.Issue(ctx, identity, kind)
		if err != nil {
			s.record(ctx, identity, kind, audit.ActionSignIn, audit.OutcomeFailed, string(classify(err).Kind))
			return nil, err
		}
		s.sessions.Track(identity, t.ID, t.ExpiresAt)
		s.record(ctx, identity, kind, audit.ActionSignIn, audit.OutcomeIssued, "")
		return t, nil
	})
	if err != nil {
		e := classify(err)
		if e.Kind == Timeout {
			s.record(ctx, identity, kind, audit.ActionSignIn, audit.OutcomeFailed, string(e.Kind))
		}
		return nil, e
	}
	return cloneToken(v), nil
}

// Refresh returns a usable token for the holder of value. A token with more than
// the refresh window left is returned as is; one inside the window is replaced by
// a new token of the same kind and then revoked. Expired, revoked and unknown
// values need a fresh sign-in.
func (s *Service) Refresh(ctx context.Context, value string) (*token.Token, error) {
	t, err := s.tokens.Validate(ctx, value)
	if err != nil {
		return nil, credentialRequired(err)
	}

	if t.Remaining(s.nowFunc()) > s.refreshWindow {
		s.record(ctx, t.Identity, t.Kind, audit.ActionRefresh, audit.OutcomeReused, "")
		return t, nil
	}

	v, err := s.sessions.Do(ctx, t.Identity, "refresh\x00"+t.ID, func(ctx context.Context) (any, error) {
		// another refresh may have completed since the first check
		if _, err := s.tokens.Validate(ctx, value); err != nil {
			return nil, credentialRequired(err)
		}

		next, err := s.tokens.Issue(ctx, t.Identity, t.Kind)
		if err != nil {
			s.record(ctx, t.Identity, t.Kind, audit.ActionRefresh, audit.OutcomeFailed, string(classify(err).Kind))
			return nil, err
		}
		s.sessions.Track(t.Identity, next.ID, next.ExpiresAt)

		if _, err := s.tokens.RevokeByID(ctx, t.ID); err != nil {
			log.Err(err).Str("identity", t.Identity).Msg("Refresh: failed to revoke replaced token")
		} else {
			s.sessions.Untrack(t.Identity, t.ID)
		}
		s.record(ctx, t.Identity, t.Kind, audit.ActionRefresh, audit.OutcomeIssued, "")
		return next, nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return cloneToken(v), nil
}

// Validate resolves value to its token. Failures are Expired, Revoked, Unknown or InternalError.
func (s *Service) Validate(ctx context.Context, value string) (*token.Token, error) {
	t, err := s.tokens.Validate(ctx, value)
	if err != nil {
		return nil, classify(err)
	}
	return t, nil
}

// Authorize validates value and checks that its kind covers required.
func (s *Service) Authorize(ctx context.Context, value string, required token.Kind) (*token.Token, error) {
	if !required.Valid() {
		return nil, newError(UnsupportedTokenKind, errors.Wrapf(apperrors.ErrUnsupportedKind, "%q", string(required)))
	}
	t, err := s.Validate(ctx, value)
	if err != nil {
		return nil, err
	}
	if !t.Kind.Allows(required) {
		return nil, newError(InsufficientScope, errors.Wrapf(apperrors.ErrInsufficientScope, "%s token cannot be used for %s", t.Kind, required))
	}
	return t, nil
}

// Revoke invalidates value. Unknown values are ignored, so it only fails when the backend does.
func (s *Service) Revoke(ctx context.Context, value string) error {
	t, err := s.tokens.Revoke(ctx, value)
	if err != nil {
		return newError(InternalError, err)
	}
	if t != nil {
		s.sessions.Untrack(t.Identity, t.ID)
		s.record(ctx, t.Identity, t.Kind, audit.ActionRevoke, audit.OutcomeRevoked, "")
	}
	return nil
}

// SignOut revokes every live token of identity and returns how many were revoked.
func (s *Service) SignOut(ctx context.Context, identity string) (int, error) {
	n, err := s.revokeAll(ctx, identity)
	if err != nil {
		return n, newError(InternalError, err)
	}
	s.record(ctx, identity, "", audit.ActionSignOut, audit.OutcomeRevoked, strconv.Itoa(n))
	return n, nil
}

// LiveTokens returns the identity's tokens that are neither revoked nor expired.
func (s *Service) LiveTokens(ctx context.Context, identity string) ([]*token.Token, error) {
	all, err := s.tokens.ListByIdentity(ctx, identity)
	if err != nil {
		return nil, newError(InternalError, err)
	}
	now := s.nowFunc()
	live := make([]*token.Token, 0, len(all))
	for _, t := range all {
		if !t.Revoked() && !t.Expired(now) {
			live = append(live, t)
		}
	}
	return live, nil
}

// SessionView is this process's view of an identity's session.
type SessionView struct {
	State       sessions.State
	LastOutcome sessions.Outcome
	Tracked     []string // unexpired token IDs issued here
}

// Session reports the in-process session for identity. The token store stays
// authoritative; see LiveTokens.
func (s *Service) Session(identity string) SessionView {
	v := SessionView{
		State:   s.sessions.State(identity),
		Tracked: s.sessions.Tokens(identity),
	}
	if snap, ok := s.sessions.Snapshot(identity); ok {
		v.LastOutcome = snap.LastOutcome
	}
	return v
}

// SessionCount returns the number of sessions held in process.
func (s *Service) SessionCount() int {
	return s.sessions.Len()
}

// TokenLabel returns the display label of a token kind.
func (s *Service) TokenLabel(kind string) (string, error) {
	k, err := token.ParseKind(kind)
	if err != nil {
		return "", classify(err)
	}
	label, err := token.Label(k)
	if err != nil {
		return "", classify(err)
	}
	return label, nil
}

func (s *Service) Register(ctx context.Context, identity, secret string) error {
	if err := s.credentials.Register(ctx, identity, secret); err != nil {
		e := classify(err)
		s.record(ctx, identity, "", audit.ActionRegister, audit.OutcomeFailed, string(e.Kind))
		return e
	}
	s.record(ctx, identity, "", audit.ActionRegister, audit.OutcomeOK, "")
	return nil
}

// ChangeSecret replaces the secret and revokes every token issued under the old one.
// It is serialised with sign-ins for the same identity.
func (s *Service) ChangeSecret(ctx context.Context, identity, oldSecret, newSecret string) error {
	_, err := s.sessions.Do(ctx, identity, accountKey(), func(ctx context.Context) (any, error) {
		if err := s.credentials.ChangeSecret(ctx, identity, oldSecret, newSecret); err != nil {
			return nil, err
		}
		_, err := s.revokeAll(ctx, identity)
		return nil, err
	})
	if err != nil {
		e := classify(err)
		s.record(ctx, identity, "", audit.ActionChangeSecret, audit.OutcomeFailed, string(e.Kind))
		return e
	}
	s.record(ctx, identity, "", audit.ActionChangeSecret, audit.OutcomeOK, "")
	return nil
}

// DeleteAccount removes the identity after verifying its secret and revokes its tokens.
func (s *Service) DeleteAccount(ctx context.Context, identity, secret string) error {
	_, err := s.sessions.Do(ctx, identity, accountKey(), func(ctx context.Context) (any, error) {
		ok, err := s.credentials.Verify(ctx, identity, secret)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperrors.ErrInvalidCredentials
		}
		if _, err := s.revokeAll(ctx, identity); err != nil {
			return nil, err
		}
		return nil, s.credentials.Delete(ctx, identity)
	})
	if err != nil {
		e := classify(err)
		s.record(ctx, identity, "", audit.ActionDelete, audit.OutcomeFailed, string(e.Kind))
		return e
	}
	s.record(ctx, identity, "", audit.ActionDelete, audit.OutcomeOK, "")
	return nil
}

// Sweep purges token records past their reuse window and forgets expired sessions.
// It returns the number of purged records.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	n, err := s.tokens.Cleanup(ctx)
	if err != nil {
		return 0, newError(InternalError, err)
	}
	s.sessions.Sweep(s.nowFunc())
	return n, nil
}

func (s *Service) revokeAll(ctx context.Context, identity string) (int, error) {
	all, err := s.tokens.ListByIdentity(ctx, identity)
	if err != nil {
		return 0, errors.Wrap(err, "Service.revokeAll ListByIdentity")
	}

	now := s.nowFunc()
	n := 0
	for _, t := range all {
		if t.Revoked() || t.Expired(now) {
			s.sessions.Untrack(identity, t.ID)
			continue
		}
		if _, err := s.tokens.RevokeByID(ctx, t.ID); err != nil {
			return n, errors.Wrap(err, "Service.revokeAll RevokeByID")
		}
		s.sessions.Untrack(identity, t.ID)
		n++
	}
	return n, nil
}

// record writes an audit record. A failing sink is logged but never fails the request.
func (s *Service) record(ctx context.Context, identity string, kind token.Kind, action audit.Action, outcome audit.Outcome, detail string) {
	r := audit.NewRecord(identity, string(kind), action, outcome, detail, s.nowFunc())
	if err := s.audit.Write(ctx, r); err != nil {
		log.Err(err).Str("identity", identity).Str("action", string(action)).Msg("Failed to write audit record")
	}
}

// signInKey lets only identical requests attach to a running sign-in. A caller
// with a different secret waits and is verified on its own.
func signInKey(kind token.Kind, secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return "signin\x00" + string(kind) + "\x00" + hex.EncodeToString(sum[:])
}

func accountKey() string {
	return "account\x00" + uuid.NewString()
}

func credentialRequired(err error) error {
	e := classify(err)
	switch e.Kind {
	case Expired, Revoked, Unknown, CredentialRequired:
		return newError(CredentialRequired, err)
	default:
		return e
	}
}

// cloneToken gives each attached caller its own copy.
func cloneToken(v any) *token.Token {
	t := *v.(*token.Token)
	if t.RevokedAt != nil {
		at := *t.RevokedAt
		t.RevokedAt = &at
	}
	return &t
}
