// Command credctl manages stored credentials directly in the database.
//
//	credctl [-dsn DSN] register <identity>
//	credctl [-dsn DSN] passwd <identity>
//	credctl [-dsn DSN] delete <identity>
//	credctl [-dsn DSN] audit <identity>
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jrsteele09/go-token-issuer/audit"
	auditpostgres "github.com/jrsteele09/go-token-issuer/audit/postgres"
	"github.com/jrsteele09/go-token-issuer/credentials"
	credentialspostgres "github.com/jrsteele09/go-token-issuer/credentials/postgres"
	"github.com/jrsteele09/go-token-issuer/internal/config"
	"github.com/jrsteele09/go-token-issuer/internal/db"
	"github.com/jrsteele09/go-token-issuer/token"
	tokenpostgres "github.com/jrsteele09/go-token-issuer/token/postgres"
	"github.com/pkg/errors"
	"golang.org/x/term"
)

const auditDetail = "credctl"

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

var errUsage = errors.New("usage: credctl [-dsn DSN] register|passwd|delete|audit <identity>")

// stores are the repositories a command works on, all bound to one transaction.
type stores struct {
	credentials *credentials.Store
	tokens      token.Repo
	audit       audit.Sink
}

type backend interface {
	// inTx runs fn in a single transaction: either every write lands or none does.
	inTx(ctx context.Context, fn func(ctx context.Context, s stores) error) error
	auditTrail(ctx context.Context, identity string) ([]audit.Record, error)
}

type postgresBackend struct {
	conn            *sql.DB
	minSecretLength int
}

func (b *postgresBackend) inTx(ctx context.Context, fn func(ctx context.Context, s stores) error) error {
	return db.WithTx(ctx, b.conn, func(ctx context.Context, tx db.DBTX) error {
		store, err := credentials.NewStore(credentialspostgres.NewRepository(tx), credentials.WithMinSecretLength(b.minSecretLength))
		if err != nil {
			return err
		}
		return fn(ctx, stores{
			credentials: store,
			tokens:      tokenpostgres.NewRepository(tx),
			audit:       auditpostgres.NewSink(tx),
		})
	})
}

func (b *postgresBackend) auditTrail(ctx context.Context, identity string) ([]audit.Record, error) {
	return auditpostgres.NewSink(b.conn).ListByIdentity(ctx, identity)
}

func main() {
	c := config.New()
	dsn := flag.String("dsn", c.GetDatabaseDSN(), "PostgreSQL DSN (defaults to DATABASE_DSN)")
	flag.Parse()

	if err := run(context.Background(), *dsn, c.GetMinSecretLength(), flag.Args(), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "credctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, dsn string, minSecretLength int, args []string, out io.Writer) error {
	if len(args) != 2 {
		return errUsage
	}
	if dsn == "" {
		return errors.New("no database configured: set DATABASE_DSN or pass -dsn")
	}

	conn, err := db.Open(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := db.Migrate(ctx, conn); err != nil {
		return err
	}

	return runCommand(ctx, &postgresBackend{conn: conn, minSecretLength: minSecretLength}, args, out)
}

func runCommand(ctx context.Context, b backend, args []string, out io.Writer) error {
	if len(args) != 2 {
		return errUsage
	}
	command, identity := args[0], args[1]

	switch command {
	case "register":
		secret, err := promptNewSecret(out)
		if err != nil {
			return err
		}
		err = b.inTx(ctx, func(ctx context.Context, s stores) error {
			if err := s.credentials.Register(ctx, identity, secret); err != nil {
				return err
			}
			return s.audit.Write(ctx, audit.NewRecord(identity, "", audit.ActionRegister, audit.OutcomeOK, auditDetail, time.Now()))
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "registered %s\n", identity)

	case "passwd":
		current, err := promptSecret(out, "Current secret: ")
		if err != nil {
			return err
		}
		secret, err := promptNewSecret(out)
		if err != nil {
			return err
		}
		var n int
		err = b.inTx(ctx, func(ctx context.Context, s stores) error {
			if err := s.credentials.ChangeSecret(ctx, identity, current, secret); err != nil {
				return err
			}
			if n, err = revokeTokens(ctx, s.tokens, identity); err != nil {
				return err
			}
			detail := fmt.Sprintf("%s: %d token(s) revoked", auditDetail, n)
			return s.audit.Write(ctx, audit.NewRecord(identity, "", audit.ActionChangeSecret, audit.OutcomeOK, detail, time.Now()))
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "secret changed for %s, %d token(s) revoked\n", identity, n)

	case "delete":
		var n int
		err := b.inTx(ctx, func(ctx context.Context, s stores) error {
			var err error
			if n, err = revokeTokens(ctx, s.tokens, identity); err != nil {
				return err
			}
			if err := s.credentials.Delete(ctx, identity); err != nil {
				return err
			}
			detail := fmt.Sprintf("%s: %d token(s) revoked", auditDetail, n)
			return s.audit.Write(ctx, audit.NewRecord(identity, "", audit.ActionDelete, audit.OutcomeOK, detail, time.Now()))
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "deleted %s, %d token(s) revoked\n", identity, n)

	case "audit":
		records, err := b.auditTrail(ctx, identity)
		if err != nil {
			return err
		}
		printRecords(out, records)

	default:
		return errUsage
	}
	return nil
}

func printRecords(out io.Writer, records []audit.Record) {
	if len(records) == 0 {
		fmt.Fprintln(out, "no audit records")
		return
	}
	for _, r := range records {
		kind := r.Kind
		if kind == "" {
			kind = "-"
		}
		fmt.Fprintf(out, "%s  %-13s %-8s %-10s %s\n", r.Timestamp.UTC().Format(time.RFC3339), r.Action, r.Outcome, kind, r.Detail)
	}
}

func promptSecret(out io.Writer, prompt string) (string, error) {
	if _, err := fmt.Fprint(out, prompt); err != nil {
		return "", err
	}
	b, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", errors.Wrap(err, "read secret")
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}

func promptNewSecret(out io.Writer) (string, error) {
	secret, err := promptSecret(out, "New secret: ")
	if err != nil {
		return "", err
	}
	confirm, err := promptSecret(out, "Repeat secret: ")
	if err != nil {
		return "", err
	}
	if secret != confirm {
		return "", errors.New("secrets do not match")
	}
	return secret, nil
}

// revokeTokens revokes the identity's live tokens directly in the token store.
func revokeTokens(ctx context.Context, tokens token.Repo, identity string) (int, error) {
	all, err := tokens.ListByIdentity(ctx, identity)
	if err != nil {
		return 0, err
	}
	now := time.Now()
	n := 0
	for _, t := range all {
		if t.Revoked() || t.Expired(now) {
			continue
		}
		if _, err := tokens.Revoke(ctx, t.ID, now); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
