package memory

import (
	"context"
	"sync"
	"time"

	"github.com/emanara/passkey-auth/internal/auth/domain"
	autherror "github.com/emanara/passkey-auth/internal/errors"
)

// CredentialStore is an in-memory CredentialStore with the same atomicity
// guarantees as the postgres implementation.
type CredentialStore struct {
	mu    sync.RWMutex
	creds map[string]domain.Credential
}

func NewCredentialStore() *CredentialStore {
	return &CredentialStore{creds: make(map[string]domain.Credential)}
}

func (s *CredentialStore) Create(ctx context.Context, cred *domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := string(cred.ID)
	if _, ok := s.creds[key]; ok {
		return autherror.ErrCredentialExists
	}
	s.creds[key] = *cred
	return nil
}

func (s *CredentialStore) GetByID(ctx context.Context, credentialID []byte) (*domain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.creds[string(credentialID)]
	if !ok {
		return nil, autherror.ErrCredentialNotFound
	}
	out := cred
	return &out, nil
}

func (s *CredentialStore) GetByUser(ctx context.Context, userID string) ([]domain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Credential
	for _, cred := range s.creds {
		if cred.UserID == userID {
			out = append(out, cred)
		}
	}
	return out, nil
}

func (s *CredentialStore) UpdateSignCount(ctx context.Context, credentialID []byte, newCount uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := string(credentialID)
	cred, ok := s.creds[key]
	if !ok {
		return autherror.ErrCredentialNotFound
	}
	if newCount <= cred.SignCount {
		return autherror.ErrCounterNotIncreased
	}
	cred.SignCount = newCount
	s.creds[key] = cred
	return nil
}

func (s *CredentialStore) Delete(ctx context.Context, credentialID []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := string(credentialID)
	if _, ok := s.creds[key]; !ok {
		return autherror.ErrCredentialNotFound
	}
	delete(s.creds, key)
	return nil
}

// ChallengeStore is an in-memory single-use challenge store.
type ChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]domain.Challenge
}

func NewChallengeStore() *ChallengeStore {
	return &ChallengeStore{challenges: make(map[string]domain.Challenge)}
}

func (s *ChallengeStore) Create(ctx context.Context, ch *domain.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.challenges[ch.ID] = *ch
	return nil
}

func (s *ChallengeStore) Consume(ctx context.Context, id string, purpose domain.ChallengePurpose) (*domain.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.challenges[id]
	if !ok || ch.Purpose != purpose {
		return nil, autherror.ErrChallengeNotFound
	}
	delete(s.challenges, id)
	out := ch
	return &out, nil
}

func (s *ChallengeStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, ch := range s.challenges {
		if ch.Expired(now) {
			delete(s.challenges, id)
			n++
		}
	}
	return n, nil
}

// TokenBlacklist is an in-memory TokenBlacklist. Entries expire lazily on
// read; Sweep removes them eagerly.
type TokenBlacklist struct {
	mu       sync.RWMutex
	revoked  map[string]time.Time
	subjects map[string]subjectRevocation
}

type subjectRevocation struct {
	revokedAt time.Time
	expiresAt time.Time
}

func NewTokenBlacklist() *TokenBlacklist {
	return &TokenBlacklist{
		revoked:  make(map[string]time.Time),
		subjects: make(map[string]subjectRevocation),
	}
}

func (b *TokenBlacklist) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.revoked[tokenID] = time.Now().Add(ttl)
	return nil
}

func (b *TokenBlacklist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	expiresAt, ok := b.revoked[tokenID]
	if !ok || time.Now().After(expiresAt) {
		return false, nil
	}
	return true, nil
}

func (b *TokenBlacklist) RevokeSubject(ctx context.Context, subject string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.subjects[subject] = subjectRevocation{revokedAt: now, expiresAt: now.Add(ttl)}
	return nil
}

func (b *TokenBlacklist) SubjectRevokedAt(ctx context.Context, subject string) (time.Time, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rev, ok := b.subjects[subject]
	if !ok || time.Now().After(rev.expiresAt) {
		return time.Time{}, false, nil
	}
	return rev.revokedAt, true, nil
}

// Sweep drops expired entries.
func (b *TokenBlacklist) Sweep(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, exp := range b.revoked {
		if now.After(exp) {
			delete(b.revoked, id)
		}
	}
	for sub, rev := range b.subjects {
		if now.After(rev.expiresAt) {
			delete(b.subjects, sub)
		}
	}
}
