package service

import (
	"context"
	"log"

	"github.com/emanara/passkey-auth/internal/auth/domain"
	autherror "github.com/emanara/passkey-auth/internal/errors"
	"github.com/go-webauthn/webauthn/protocol"
)

// Pinger reports reachability of a backing dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AuthService composes the ceremony engine and the token lifecycle into the
// operations the HTTP layer exposes.
type AuthService struct {
	ceremonies  *CeremonyService
	tokens      *TokenService
	credentials domain.CredentialStore
	db          Pinger
	cache       Pinger
}

func NewAuthService(ceremonies *CeremonyService, tokens *TokenService, credentials domain.CredentialStore, db, cache Pinger) *AuthService {
	return &AuthService{
		ceremonies:  ceremonies,
		tokens:      tokens,
		credentials: credentials,
		db:          db,
		cache:       cache,
	}
}

func (s *AuthService) BeginRegistration(ctx context.Context, userID, name, displayName string) (*protocol.CredentialCreation, string, error) {
	return s.ceremonies.BeginRegistration(ctx, userID, name, displayName)
}

// FinishRegistration establishes the credential only; the user still logs in
// with it afterwards, no tokens are issued here.
func (s *AuthService) FinishRegistration(ctx context.Context, challengeID string, response *protocol.ParsedCredentialCreationData) (*domain.Credential, error) {
	return s.ceremonies.FinishRegistration(ctx, challengeID, response)
}

func (s *AuthService) BeginLogin(ctx context.Context, userID string) (*protocol.CredentialAssertion, string, error) {
	return s.ceremonies.BeginAuthentication(ctx, userID)
}

// FinishLogin completes the assertion ceremony and exchanges it for a token
// pair.
func (s *AuthService) FinishLogin(ctx context.Context, challengeID string, response *protocol.ParsedCredentialAssertionData) (string, *TokenPair, error) {
	userID, _, err := s.ceremonies.FinishAuthentication(ctx, challengeID, response)
	if err != nil {
		return "", nil, err
	}
	pair, err := s.tokens.Issue(ctx, userID)
	if err != nil {
		return "", nil, err
	}
	return userID, pair, nil
}

func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	return s.tokens.Refresh(ctx, refreshToken)
}

func (s *AuthService) VerifyAccess(ctx context.Context, accessToken string) (string, error) {
	return s.tokens.VerifyAccess(ctx, accessToken)
}

// Logout retires both tokens of a session. Tokens that are already expired
// or unparsable are skipped; a logout with a stale pair still succeeds.
func (s *AuthService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	for _, token := range []string{accessToken, refreshToken} {
		if token == "" {
			continue
		}
		if err := s.tokens.RevokeToken(ctx, token); err != nil {
			if err == autherror.ErrTokenInvalid {
				continue
			}
			return err
		}
	}
	return nil
}

func (s *AuthService) ListCredentials(ctx context.Context, userID string) ([]domain.Credential, error) {
	return s.credentials.GetByUser(ctx, userID)
}

// RevokeCredential deletes a credential after verifying the caller owns it.
func (s *AuthService) RevokeCredential(ctx context.Context, userID string, credentialID []byte) error {
	cred, err := s.credentials.GetByID(ctx, credentialID)
	if err != nil {
		return err
	}
	if cred.UserID != userID {
		return autherror.ErrCredentialNotOwned
	}
	return s.credentials.Delete(ctx, credentialID)
}

// Health pings the database and the cache through their circuit breakers.
func (s *AuthService) Health(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return err
	}
	return s.cache.Ping(ctx)
}

// SweepChallenges runs one garbage-collection pass over expired challenges.
func (s *AuthService) SweepChallenges(ctx context.Context) {
	n, err := s.ceremonies.SweepExpiredChallenges(ctx)
	if err != nil {
		log.Printf("challenge sweep failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("swept %d expired challenges", n)
	}
}
