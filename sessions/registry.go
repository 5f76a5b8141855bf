// Package sessions tracks each identity's live tokens and serialises sign-in and
// refresh attempts per identity.
//
// At most one attempt runs per identity at a time. Callers presenting the same
// attempt key while it runs attach to it and share its result; callers with a
// different key wait for it to finish and then run their own. Identities are
// spread over independent shards so unrelated identities never contend.
package sessions

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-token-issuer/internal/errors"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

const (
	defaultShardCount = 64
	defaultTimeout    = 3 * time.Second
)

// State is the attempt state of an identity.
type State int

const (
	Idle State = iota
	Authenticating
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Authenticating:
		return "authenticating"
	default:
		return "unknown"
	}
}

// Outcome is the result of the most recent attempt.
type Outcome int

const (
	NoOutcome Outcome = iota
	Issued
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Issued:
		return "issued"
	case Failed:
		return "failed"
	default:
		return "none"
	}
}

// Session is a copy of an identity's registry entry.
type Session struct {
	Identity    string
	Tokens      map[string]time.Time // token ID to expiry
	LastRefresh time.Time            // last Track
	State       State
	LastOutcome Outcome
}

type entry struct {
	gate        *semaphore.Weighted
	tokens      map[string]time.Time
	lastRefresh time.Time
	state       State
	lastOutcome Outcome
	refs        int // attempts holding the entry
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
	flights singleflight.Group
}

// Registry is safe for concurrent use.
type Registry struct {
	shards  []*shard
	timeout time.Duration
	nowFunc func() time.Time
}

type RegistryOption func(*Registry)

// WithTimeout bounds how long a caller waits for an attempt and how long an attempt may run.
func WithTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		r.timeout = d
	}
}

func WithNowFunc(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.nowFunc = now
	}
}

func NewRegistry(options ...RegistryOption) *Registry {
	r := &Registry{
		shards:  newShards(defaultShardCount),
		timeout: defaultTimeout,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func newShards(n int) []*shard {
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return shards
}

func (r *Registry) shardFor(identity string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(identity))
	return r.shards[h.Sum32()%uint32(len(r.shards))]
}

// Do runs fn as the identity's attempt for key, or attaches to a running attempt with
// the same key. fn receives a context that is detached from the caller's cancellation
// and bounded by the registry timeout, since attached callers depend on its result.
//
// The caller waits at most the registry timeout (or until ctx is done). A timed out
// caller gets ErrTimeout and the key is forgotten, so the next caller starts afresh.
func (r *Registry) Do(ctx context.Context, identity, key string, fn func(ctx context.Context) (any, error)) (any, error) {
	sh := r.shardFor(identity)
	flightKey := identity + "\x00" + key

	ch := sh.flights.DoChan(flightKey, func() (any, error) {
		return r.attempt(ctx, sh, identity, fn)
	})

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-timer.C:
		sh.flights.Forget(flightKey)
		return nil, apperrors.ErrTimeout
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apperrors.ErrTimeout
		}
		return nil, errors.Wrap(ctx.Err(), "Registry.Do")
	}
}

// attempt runs fn under the identity's gate. A panic in fn is returned as an
// ErrInternal error to every attached caller.
func (r *Registry) attempt(ctx context.Context, sh *shard, identity string, fn func(ctx context.Context) (any, error)) (v any, err error) {
	e := sh.acquire(identity)
	defer sh.release(identity, e)
	defer func() {
		if p := recover(); p != nil {
			sh.setState(e, Idle, Failed)
			v, err = nil, errors.Wrapf(apperrors.ErrInternal, "attempt panicked: %v", p)
		}
	}()

	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if err := e.gate.Acquire(actx, 1); err != nil {
		return nil, apperrors.ErrTimeout
	}
	defer e.gate.Release(1)

	sh.setState(e, Authenticating, NoOutcome)
	v, err = fn(actx)
	if err != nil {
		sh.setState(e, Idle, Failed)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.ErrTimeout
		}
		return nil, err
	}
	sh.setState(e, Idle, Issued)
	return v, nil
}

// Track records a live token for identity, creating the session if needed.
func (r *Registry) Track(identity, id string, expiresAt time.Time) {
	sh := r.shardFor(identity)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e := sh.entryLocked(identity)
	e.tokens[id] = expiresAt
	e.lastRefresh = r.nowFunc()
}

// Untrack removes a token and drops the session once nothing is left in it.
func (r *Registry) Untrack(identity, id string) {
	sh := r.shardFor(identity)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[identity]
	if !ok {
		return
	}
	delete(e.tokens, id)
	sh.dropIfIdleLocked(identity, e)
}

// Tokens returns the IDs of the identity's unexpired tokens, sorted.
func (r *Registry) Tokens(identity string) []string {
	sh := r.shardFor(identity)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	now := r.nowFunc()
	ids := make([]string, 0)
	if e, ok := sh.entries[identity]; ok {
		for id, exp := range e.tokens {
			if now.Before(exp) {
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns a copy of the identity's session, if one exists.
func (r *Registry) Snapshot(identity string) (Session, bool) {
	sh := r.shardFor(identity)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[identity]
	if !ok {
		return Session{}, false
	}
	tokens := make(map[string]time.Time, len(e.tokens))
	for id, exp := range e.tokens {
		tokens[id] = exp
	}
	return Session{
		Identity:    identity,
		Tokens:      tokens,
		LastRefresh: e.lastRefresh,
		State:       e.state,
		LastOutcome: e.lastOutcome,
	}, true
}

// State returns Idle for identities without a session.
func (r *Registry) State(identity string) State {
	s, ok := r.Snapshot(identity)
	if !ok {
		return Idle
	}
	return s.State
}

// Sweep forgets expired tokens and drops sessions left empty. It returns the number
// of tokens removed.
func (r *Registry) Sweep(now time.Time) int {
	removed := 0
	for _, sh := range r.shards {
		sh.mu.Lock()
		for identity, e := range sh.entries {
			for id, exp := range e.tokens {
				if !now.Before(exp) {
					delete(e.tokens, id)
					removed++
				}
			}
			sh.dropIfIdleLocked(identity, e)
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	n := 0
	for _, sh := range r.shards {
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}

func (sh *shard) entryLocked(identity string) *entry {
	e, ok := sh.entries[identity]
	if !ok {
		e = &entry{
			gate:   semaphore.NewWeighted(1),
			tokens: make(map[string]time.Time),
		}
		sh.entries[identity] = e
	}
	return e
}

func (sh *shard) acquire(identity string) *entry {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e := sh.entryLocked(identity)
	e.refs++
	return e
}

func (sh *shard) release(identity string, e *entry) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e.refs--
	sh.dropIfIdleLocked(identity, e)
}

func (sh *shard) setState(e *entry, state State, outcome Outcome) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e.state = state
	if outcome != NoOutcome {
		e.lastOutcome = outcome
	}
}

func (sh *shard) dropIfIdleLocked(identity string, e *entry) {
	if e.refs == 0 && len(e.tokens) == 0 && sh.entries[identity] == e {
		delete(sh.entries, identity)
	}
}
