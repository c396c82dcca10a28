package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/emanara/passkey-auth/internal/auth/domain"
	autherror "github.com/emanara/passkey-auth/internal/errors"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
)

// ceremonyUser adapts a user ID and its stored credentials to the shape the
// webauthn library expects.
type ceremonyUser struct {
	id          []byte
	name        string
	displayName string
	credentials []webauthn.Credential
}

func (u *ceremonyUser) WebAuthnID() []byte                         { return u.id }
func (u *ceremonyUser) WebAuthnName() string                       { return u.name }
func (u *ceremonyUser) WebAuthnDisplayName() string                { return u.displayName }
func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential { return u.credentials }

// CeremonyService runs WebAuthn registration and authentication ceremonies.
// Every ceremony is anchored to a single-use challenge; finishing twice, or
// finishing after the TTL, fails.
type CeremonyService struct {
	webAuthn     *webauthn.WebAuthn
	credentials  domain.CredentialStore
	challenges   domain.ChallengeStore
	challengeTTL time.Duration
	now          func() time.Time
}

func NewCeremonyService(wa *webauthn.WebAuthn, credentials domain.CredentialStore, challenges domain.ChallengeStore, challengeTTL time.Duration) *CeremonyService {
	return &CeremonyService{
		webAuthn:     wa,
		credentials:  credentials,
		challenges:   challenges,
		challengeTTL: challengeTTL,
		now:          time.Now,
	}
}

func toWebauthnCredential(c domain.Credential) webauthn.Credential {
	transports := make([]protocol.AuthenticatorTransport, 0, len(c.Transports))
	for _, t := range c.Transports {
		transports = append(transports, protocol.AuthenticatorTransport(t))
	}
	return webauthn.Credential{
		ID:        c.ID,
		PublicKey: c.PublicKey,
		Transport: transports,
		Flags: webauthn.CredentialFlags{
			UserPresent:    c.Flags.UserPresent,
			UserVerified:   c.Flags.UserVerified,
			BackupEligible: c.Flags.BackupEligible,
			BackupState:    c.Flags.BackupState,
		},
		Authenticator: webauthn.Authenticator{
			SignCount: c.SignCount,
		},
	}
}

func fromWebauthnCredential(c *webauthn.Credential, userID string, now time.Time) *domain.Credential {
	transports := make([]string, 0, len(c.Transport))
	for _, t := range c.Transport {
		transports = append(transports, string(t))
	}
	return &domain.Credential{
		ID:         c.ID,
		UserID:     userID,
		PublicKey:  c.PublicKey,
		SignCount:  c.Authenticator.SignCount,
		Transports: transports,
		Flags: domain.CredentialFlags{
			UserPresent:    c.Flags.UserPresent,
			UserVerified:   c.Flags.UserVerified,
			BackupEligible: c.Flags.BackupEligible,
			BackupState:    c.Flags.BackupState,
		},
		CreatedAt: now,
	}
}

func (s *CeremonyService) loadUser(ctx context.Context, userID, name, displayName string) (*ceremonyUser, error) {
	creds, err := s.credentials.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	user := &ceremonyUser{
		id:          []byte(userID),
		name:        name,
		displayName: displayName,
		credentials: make([]webauthn.Credential, 0, len(creds)),
	}
	for _, c := range creds {
		user.credentials = append(user.credentials, toWebauthnCredential(c))
	}
	return user, nil
}

// storeChallenge persists the library session under a fresh challenge ID.
func (s *CeremonyService) storeChallenge(ctx context.Context, userID string, purpose domain.ChallengePurpose, session *webauthn.SessionData) (string, error) {
	data, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("marshal ceremony session: %w", err)
	}
	now := s.now()
	ch := &domain.Challenge{
		ID:          uuid.NewString(),
		UserID:      userID,
		Purpose:     purpose,
		SessionData: data,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.challengeTTL),
	}
	if err := s.challenges.Create(ctx, ch); err != nil {
		return "", err
	}
	return ch.ID, nil
}

// consumeChallenge retires the challenge and checks its TTL. The challenge
// is gone either way; an expired one cannot be retried.
func (s *CeremonyService) consumeChallenge(ctx context.Context, id string, purpose domain.ChallengePurpose) (*domain.Challenge, *webauthn.SessionData, error) {
	ch, err := s.challenges.Consume(ctx, id, purpose)
	if err != nil {
		return nil, nil, err
	}
	if ch.Expired(s.now()) {
		return nil, nil, autherror.ErrChallengeExpired
	}
	var session webauthn.SessionData
	if err := json.Unmarshal(ch.SessionData, &session); err != nil {
		return nil, nil, fmt.Errorf("unmarshal ceremony session: %w", err)
	}
	return ch, &session, nil
}

// BeginRegistration opens a registration ceremony. Credentials the user
// already registered are excluded so an authenticator is never enrolled
// twice.
func (s *CeremonyService) BeginRegistration(ctx context.Context, userID, name, displayName string) (*protocol.CredentialCreation, string, error) {
	user, err := s.loadUser(ctx, userID, name, displayName)
	if err != nil {
		return nil, "", err
	}

	exclusions := make([]protocol.CredentialDescriptor, 0, len(user.credentials))
	for _, c := range user.credentials {
		exclusions = append(exclusions, c.Descriptor())
	}

	options, session, err := s.webAuthn.BeginRegistration(user, webauthn.WithExclusions(exclusions))
	if err != nil {
		return nil, "", fmt.Errorf("begin registration: %w", err)
	}

	challengeID, err := s.storeChallenge(ctx, userID, domain.PurposeRegister, session)
	if err != nil {
		return nil, "", err
	}
	return options, challengeID, nil
}

// FinishRegistration verifies the attestation against the pending challenge
// and stores the new credential with its attested sign counter.
func (s *CeremonyService) FinishRegistration(ctx context.Context, challengeID string, response *protocol.ParsedCredentialCreationData) (*domain.Credential, error) {
	ch, session, err := s.consumeChallenge(ctx, challengeID, domain.PurposeRegister)
	if err != nil {
		return nil, err
	}

	user := &ceremonyUser{id: []byte(ch.UserID)}
	waCred, err := s.webAuthn.CreateCredential(user, *session, response)
	if err != nil {
		log.Printf("attestation rejected for user %s: %v", ch.UserID, err)
		return nil, autherror.ErrAttestationInvalid
	}

	cred := fromWebauthnCredential(waCred, ch.UserID, s.now())
	if err := s.credentials.Create(ctx, cred); err != nil {
		return nil, err
	}
	return cred, nil
}

// BeginAuthentication opens an authentication ceremony. An empty userID
// requests a discoverable (resident-key) login where the authenticator
// identifies the user.
func (s *CeremonyService) BeginAuthentication(ctx context.Context, userID string) (*protocol.CredentialAssertion, string, error) {
	var (
		options *protocol.CredentialAssertion
		session *webauthn.SessionData
		err     error
	)
	if userID == "" {
		options, session, err = s.webAuthn.BeginDiscoverableLogin()
	} else {
		var user *ceremonyUser
		user, err = s.loadUser(ctx, userID, "", "")
		if err != nil {
			return nil, "", err
		}
		if len(user.credentials) == 0 {
			return nil, "", autherror.ErrCredentialNotFound
		}
		options, session, err = s.webAuthn.BeginLogin(user)
	}
	if err != nil {
		return nil, "", fmt.Errorf("begin authentication: %w", err)
	}

	challengeID, err := s.storeChallenge(ctx, userID, domain.PurposeAuthenticate, session)
	if err != nil {
		return nil, "", err
	}
	return options, challengeID, nil
}

// FinishAuthentication verifies the assertion and returns the owner of the
// asserted credential. A non-increasing sign counter, observed either by the
// verification itself or by losing the conditional counter update, is
// treated as a cloned authenticator and fails the ceremony with no state
// written.
func (s *CeremonyService) FinishAuthentication(ctx context.Context, challengeID string, response *protocol.ParsedCredentialAssertionData) (string, *domain.Credential, error) {
	ch, session, err := s.consumeChallenge(ctx, challengeID, domain.PurposeAuthenticate)
	if err != nil {
		return "", nil, err
	}

	ownerID := ch.UserID
	var waCred *webauthn.Credential
	var lookupErr error
	if ch.UserID == "" {
		waCred, err = s.webAuthn.ValidateDiscoverableLogin(func(rawID, userHandle []byte) (webauthn.User, error) {
			stored, err := s.credentials.GetByID(ctx, rawID)
			if err != nil {
				lookupErr = err
				return nil, err
			}
			ownerID = stored.UserID
			return &ceremonyUser{
				id:          userHandle,
				credentials: []webauthn.Credential{toWebauthnCredential(*stored)},
			}, nil
		}, *session, response)
	} else {
		var user *ceremonyUser
		user, err = s.loadUser(ctx, ch.UserID, "", "")
		if err != nil {
			return "", nil, err
		}
		waCred, err = s.webAuthn.ValidateLogin(user, *session, response)
	}
	if err != nil {
		if lookupErr != nil {
			return "", nil, lookupErr
		}
		if errors.Is(err, autherror.ErrCredentialNotFound) {
			return "", nil, err
		}
		log.Printf("assertion rejected: %v", err)
		return "", nil, autherror.ErrAssertionInvalid
	}

	if waCred.Authenticator.CloneWarning {
		log.Printf("clone warning for credential of user %s", ownerID)
		return "", nil, autherror.ErrPossibleCloneDetected
	}

	if err := s.commitSignCount(ctx, waCred.ID, waCred.Authenticator.SignCount); err != nil {
		return "", nil, err
	}

	cred := fromWebauthnCredential(waCred, ownerID, s.now())
	return ownerID, cred, nil
}

// commitSignCount persists an asserted counter value. Authenticators
// without a counter report zero forever; only real increments are
// committed. Losing the conditional update means a concurrent assertion
// already advanced the counter past this one.
func (s *CeremonyService) commitSignCount(ctx context.Context, credentialID []byte, signCount uint32) error {
	if signCount == 0 {
		return nil
	}
	err := s.credentials.UpdateSignCount(ctx, credentialID, signCount)
	if errors.Is(err, autherror.ErrCounterNotIncreased) {
		return autherror.ErrPossibleCloneDetected
	}
	return err
}

// SweepExpiredChallenges garbage-collects abandoned ceremonies.
func (s *CeremonyService) SweepExpiredChallenges(ctx context.Context) (int, error) {
	return s.challenges.DeleteExpired(ctx, s.now())
}
