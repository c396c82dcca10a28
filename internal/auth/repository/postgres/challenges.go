package postgres

import (
	"context"
	"time"

	"github.com/emanara/passkey-auth/internal/auth/domain"
	autherror "github.com/emanara/passkey-auth/internal/errors"
	"github.com/emanara/passkey-auth/internal/resilience"
	"github.com/jackc/pgx/v5"
)

// ChallengeStore implements domain.ChallengeStore on PostgreSQL.
type ChallengeStore struct {
	base
}

func NewChallengeStore(db DB, exec *resilience.Executor) *ChallengeStore {
	return &ChallengeStore{base{db: db, exec: exec}}
}

func (s *ChallengeStore) Create(ctx context.Context, ch *domain.Challenge) error {
	return s.exec.Execute(ctx, func(ctx context.Context) error {
		_, err := s.db.Exec(ctx, `
			INSERT INTO challenges (id, user_id, purpose, session_data, created_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, ch.ID, ch.UserID, string(ch.Purpose), ch.SessionData, ch.CreatedAt, ch.ExpiresAt)
		return markBackendError(err)
	})
}

// Consume is the atomic read-and-delete: DELETE ... RETURNING means exactly
// one of two concurrent consumers sees the row.
func (s *ChallengeStore) Consume(ctx context.Context, id string, purpose domain.ChallengePurpose) (*domain.Challenge, error) {
	return resilience.Do(ctx, s.exec, func(ctx context.Context) (*domain.Challenge, error) {
		row := s.db.QueryRow(ctx, `
			DELETE FROM challenges
			WHERE id = $1 AND purpose = $2
			RETURNING id, user_id, purpose, session_data, created_at, expires_at
		`, id, string(purpose))

		var ch domain.Challenge
		var p string
		err := row.Scan(&ch.ID, &ch.UserID, &p, &ch.SessionData, &ch.CreatedAt, &ch.ExpiresAt)
		if err == pgx.ErrNoRows {
			return nil, autherror.ErrChallengeNotFound
		}
		if err != nil {
			return nil, markBackendError(err)
		}
		ch.Purpose = domain.ChallengePurpose(p)
		return &ch, nil
	})
}

func (s *ChallengeStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	return resilience.Do(ctx, s.exec, func(ctx context.Context) (int, error) {
		tag, err := s.db.Exec(ctx, `DELETE FROM challenges WHERE expires_at < $1`, now)
		if err != nil {
			return 0, markBackendError(err)
		}
		return int(tag.RowsAffected()), nil
	})
}
