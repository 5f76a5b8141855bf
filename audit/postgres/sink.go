// Package postgres appends audit records to the audit_records table.
package postgres

import (
	"context"

	"github.com/jrsteele09/go-token-issuer/audit"
	"github.com/jrsteele09/go-token-issuer/internal/db"
	"github.com/pkg/errors"
)

var _ audit.Sink = (*Sink)(nil)

type Sink struct {
	db db.DBTX
}

func NewSink(conn db.DBTX) *Sink {
	return &Sink{db: conn}
}

func (s *Sink) Write(ctx context.Context, r audit.Record) error {
	query := `
		INSERT INTO audit_records (id, identity, kind, action, outcome, detail, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query, r.ID.String(), r.Identity, r.Kind, string(r.Action), string(r.Outcome), r.Detail, r.Timestamp)
	if err != nil {
		return errors.Wrap(err, "audit.Sink.Write")
	}
	return nil
}

// ListByIdentity returns the identity's records, oldest first.
func (s *Sink) ListByIdentity(ctx context.Context, identity string) ([]audit.Record, error) {
	query := `
		SELECT id, identity, kind, action, outcome, detail, recorded_at
		FROM audit_records
		WHERE identity = $1
		ORDER BY recorded_at
	`
	rows, err := s.db.QueryContext(ctx, query, identity)
	if err != nil {
		return nil, errors.Wrap(err, "audit.Sink.ListByIdentity")
	}
	defer rows.Close()

	var out []audit.Record
	for rows.Next() {
		var (
			r               audit.Record
			action, outcome string
		)
		if err := rows.Scan(&r.ID, &r.Identity, &r.Kind, &action, &outcome, &r.Detail, &r.Timestamp); err != nil {
			return nil, errors.Wrap(err, "audit.Sink.ListByIdentity Scan")
		}
		r.Action = audit.Action(action)
		r.Outcome = audit.Outcome(outcome)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "audit.Sink.ListByIdentity rows")
	}
	return out, nil
}
