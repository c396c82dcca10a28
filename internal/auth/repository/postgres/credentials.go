package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/emanara/passkey-auth/internal/auth/domain"
	autherror "github.com/emanara/passkey-auth/internal/errors"
	"github.com/emanara/passkey-auth/internal/resilience"
	"github.com/jackc/pgx/v5"
)

// CredentialStore implements domain.CredentialStore on PostgreSQL.
type CredentialStore struct {
	base
}

func NewCredentialStore(db DB, exec *resilience.Executor) *CredentialStore {
	return &CredentialStore{base{db: db, exec: exec}}
}

func (s *CredentialStore) Create(ctx context.Context, cred *domain.Credential) error {
	flags, err := json.Marshal(cred.Flags)
	if err != nil {
		return fmt.Errorf("marshal credential flags: %w", err)
	}

	return s.exec.Execute(ctx, func(ctx context.Context) error {
		_, err := s.db.Exec(ctx, `
			INSERT INTO credentials (credential_id, user_id, public_key, sign_count, transports, flags, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, cred.ID, cred.UserID, cred.PublicKey, int64(cred.SignCount), cred.Transports, flags, cred.CreatedAt)
		if isUniqueViolation(err) {
			return autherror.ErrCredentialExists
		}
		return markBackendError(err)
	})
}

func (s *CredentialStore) GetByID(ctx context.Context, credentialID []byte) (*domain.Credential, error) {
	return resilience.Do(ctx, s.exec, func(ctx context.Context) (*domain.Credential, error) {
		row := s.db.QueryRow(ctx, `
			SELECT credential_id, user_id, public_key, sign_count, transports, flags, created_at
			FROM credentials
			WHERE credential_id = $1
		`, credentialID)

		cred, err := scanCredential(row)
		if err == pgx.ErrNoRows {
			return nil, autherror.ErrCredentialNotFound
		}
		if err != nil {
			return nil, markBackendError(err)
		}
		return cred, nil
	})
}

func (s *CredentialStore) GetByUser(ctx context.Context, userID string) ([]domain.Credential, error) {
	return resilience.Do(ctx, s.exec, func(ctx context.Context) ([]domain.Credential, error) {
		rows, err := s.db.Query(ctx, `
			SELECT credential_id, user_id, public_key, sign_count, transports, flags, created_at
			FROM credentials
			WHERE user_id = $1
			ORDER BY created_at
		`, userID)
		if err != nil {
			return nil, markBackendError(err)
		}
		defer rows.Close()

		var creds []domain.Credential
		for rows.Next() {
			cred, err := scanCredential(rows)
			if err != nil {
				return nil, markBackendError(err)
			}
			creds = append(creds, *cred)
		}
		if err := rows.Err(); err != nil {
			return nil, markBackendError(err)
		}
		return creds, nil
	})
}

// UpdateSignCount commits only strictly increasing counters; the WHERE
// clause is the compare-and-set closing the concurrent-replay race.
func (s *CredentialStore) UpdateSignCount(ctx context.Context, credentialID []byte, newCount uint32) error {
	return s.exec.Execute(ctx, func(ctx context.Context) error {
		tag, err := s.db.Exec(ctx, `
			UPDATE credentials
			SET sign_count = $2
			WHERE credential_id = $1 AND sign_count < $2
		`, credentialID, int64(newCount))
		if err != nil {
			return markBackendError(err)
		}
		if tag.RowsAffected() > 0 {
			return nil
		}

		var exists bool
		err = s.db.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM credentials WHERE credential_id = $1)
		`, credentialID).Scan(&exists)
		if err != nil {
			return markBackendError(err)
		}
		if !exists {
			return autherror.ErrCredentialNotFound
		}
		return autherror.ErrCounterNotIncreased
	})
}

func (s *CredentialStore) Delete(ctx context.Context, credentialID []byte) error {
	return s.exec.Execute(ctx, func(ctx context.Context) error {
		tag, err := s.db.Exec(ctx, `DELETE FROM credentials WHERE credential_id = $1`, credentialID)
		if err != nil {
			return markBackendError(err)
		}
		if tag.RowsAffected() == 0 {
			return autherror.ErrCredentialNotFound
		}
		return nil
	})
}
