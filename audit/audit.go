// Package audit records every issuance, refresh, revocation and failed sign-in.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Action string

const (
	ActionSignIn       Action = "sign_in"
	ActionRefresh      Action = "refresh"
	ActionRevoke       Action = "revoke"
	ActionSignOut      Action = "sign_out"
	ActionRegister     Action = "register"
	ActionChangeSecret Action = "change_secret"
	ActionDelete       Action = "delete"
)

type Outcome string

const (
	OutcomeIssued  Outcome = "issued"
	OutcomeReused  Outcome = "reused"
	OutcomeRevoked Outcome = "revoked"
	OutcomeFailed  Outcome = "failed"
	OutcomeOK      Outcome = "ok"
)

// Record is one append-only audit entry. It never carries secrets or token values.
type Record struct {
	ID        uuid.UUID
	Identity  string
	Kind      string // token kind, empty for account actions
	Action    Action
	Outcome   Outcome
	Detail    string
	Timestamp time.Time
}

// NewRecord fills in the ID.
func NewRecord(identity, kind string, action Action, outcome Outcome, detail string, at time.Time) Record {
	return Record{
		ID:        uuid.New(),
		Identity:  identity,
		Kind:      kind,
		Action:    action,
		Outcome:   outcome,
		Detail:    detail,
		Timestamp: at,
	}
}

// Sink receives audit records.
type Sink interface {
	Write(ctx context.Context, r Record) error
}

// LogSink writes records as structured log events.
type LogSink struct {
	logger zerolog.Logger
}

var _ Sink = (*LogSink)(nil)

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Write(_ context.Context, r Record) error {
	ev := s.logger.Info()
	if r.Outcome == OutcomeFailed {
		ev = s.logger.Warn()
	}
	ev.Str("audit_id", r.ID.String()).
		Str("identity", r.Identity).
		Str("kind", r.Kind).
		Str("action", string(r.Action)).
		Str("outcome", string(r.Outcome)).
		Str("detail", r.Detail).
		Time("at", r.Timestamp).
		Msg("audit")
	return nil
}

// MemorySink keeps records in memory, in write order.
type MemorySink struct {
	mu      sync.RWMutex
	records []Record
}

var _ Sink = (*MemorySink)(nil)

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Write(_ context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return nil
}

func (s *MemorySink) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Filter returns the records matching identity and action. An empty action matches all.
func (s *MemorySink) Filter(identity string, action Action) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, r := range s.records {
		if r.Identity == identity && (action == "" || r.Action == action) {
			out = append(out, r)
		}
	}
	return out
}

// MultiSink writes to every sink and returns the first error.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, r Record) error {
	var first error
	for _, s := range m {
		if err := s.Write(ctx, r); err != nil && first == nil {
			first = err
		}
	}
	return first
}
