package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/emanara/passkey-auth/internal/auth/domain"
	"github.com/emanara/passkey-auth/internal/resilience"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the stores need; pgxmock satisfies it in
// tests.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// base carries the pool and the database circuit-breaker executor shared by
// both stores.
type base struct {
	db   DB
	exec *resilience.Executor
}

// Ping reports database reachability through the circuit breaker.
func (b base) Ping(ctx context.Context) error {
	return b.exec.Execute(ctx, func(ctx context.Context) error {
		return markBackendError(b.db.Ping(ctx))
	})
}

type scannable interface {
	Scan(dest ...any) error
}

func scanCredential(row scannable) (*domain.Credential, error) {
	var cred domain.Credential
	var signCount int64
	var flags []byte

	err := row.Scan(&cred.ID, &cred.UserID, &cred.PublicKey, &signCount, &cred.Transports, &flags, &cred.CreatedAt)
	if err != nil {
		return nil, err
	}
	cred.SignCount = uint32(signCount)
	if len(flags) > 0 {
		if err := json.Unmarshal(flags, &cred.Flags); err != nil {
			return nil, fmt.Errorf("unmarshal credential flags: %w", err)
		}
	}
	return &cred, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// markBackendError marks driver and connectivity errors as transient so the
// executor retries them. Errors the server rejected deliberately (integrity,
// data, syntax) stay non-transient.
func markBackendError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case "22", "23", "42":
			return err
		}
	}
	return resilience.MarkTransient(err)
}
