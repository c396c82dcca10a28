package domain

//go:generate mockgen -destination=../../mocks/mock_credential_store.go -package=mocks github.com/emanara/passkey-auth/internal/auth/domain CredentialStore
//go:generate mockgen -destination=../../mocks/mock_challenge_store.go -package=mocks github.com/emanara/passkey-auth/internal/auth/domain ChallengeStore
//go:generate mockgen -destination=../../mocks/mock_token_blacklist.go -package=mocks github.com/emanara/passkey-auth/internal/auth/domain TokenBlacklist

import (
	"context"
	"time"
)

// CredentialStore is the durable record of registered authenticators.
type CredentialStore interface {
	// Create stores a new credential. Returns ErrCredentialExists when the
	// credential ID is already registered.
	Create(ctx context.Context, cred *Credential) error

	// GetByID returns ErrCredentialNotFound when the ID is unknown.
	GetByID(ctx context.Context, credentialID []byte) (*Credential, error)

	GetByUser(ctx context.Context, userID string) ([]Credential, error)

	// UpdateSignCount commits newCount only if it is strictly greater than
	// the stored counter (compare-and-set). Returns ErrCounterNotIncreased
	// when the stored counter already caught up, ErrCredentialNotFound when
	// the credential is gone.
	UpdateSignCount(ctx context.Context, credentialID []byte, newCount uint32) error

	// Delete removes a credential on explicit user revocation.
	Delete(ctx context.Context, credentialID []byte) error
}

// ChallengeStore holds short-lived, single-use ceremony challenges.
type ChallengeStore interface {
	Create(ctx context.Context, ch *Challenge) error

	// Consume atomically loads and deletes a challenge. Two concurrent calls
	// with the same ID yield exactly one challenge; the loser (and any later
	// replay) gets ErrChallengeNotFound. Consume does not check expiry.
	Consume(ctx context.Context, id string, purpose ChallengePurpose) (*Challenge, error)

	// DeleteExpired garbage-collects challenges whose expiry has passed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// TokenBlacklist is the set of revoked token IDs, each entry expiring with
// the token it blacklists.
type TokenBlacklist interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)

	// RevokeSubject invalidates every token of a subject issued at or before
	// now; used by the reuse-detection policy.
	RevokeSubject(ctx context.Context, subject string, ttl time.Duration) error

	// SubjectRevokedAt returns the subject revocation time, or ok=false when
	// the subject has no active revocation.
	SubjectRevokedAt(ctx context.Context, subject string) (time.Time, bool, error)
}
