package service

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/emanara/passkey-auth/internal/auth/repository/memory"
	autherror "github.com/emanara/passkey-auth/internal/errors"
	"github.com/emanara/passkey-auth/internal/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

func newAuthFixture(t *testing.T) (*AuthService, *ceremonyFixture) {
	t.Helper()
	f := newCeremonyFixture(t)

	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	tokens := NewTokenService(key, memory.NewTokenBlacklist(), 5*time.Minute, 24*time.Hour, false)

	svc := NewAuthService(f.svc, tokens, f.creds, stubPinger{}, stubPinger{})
	return svc, f
}

func TestAuthService_RegisterLoginRefreshLogout(t *testing.T) {
	ctx := context.Background()
	svc, f := newAuthFixture(t)

	// Registration establishes the credential without issuing tokens.
	options, challengeID, err := svc.BeginRegistration(ctx, "user-1", "user-1", "Test User")
	require.NoError(t, err)
	cred, err := svc.FinishRegistration(ctx, challengeID, attestation(t, f, options))
	require.NoError(t, err)
	f.auth.AddCredential(f.cred)

	// Login exchanges a successful assertion for a token pair.
	loginOptions, loginChallengeID, err := svc.BeginLogin(ctx, "user-1")
	require.NoError(t, err)
	userID, pair, err := svc.FinishLogin(ctx, loginChallengeID, assertion(t, f, loginOptions))
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
	require.NotNil(t, pair)

	verified, err := svc.VerifyAccess(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", verified)

	// Rotation.
	rotated, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, autherror.ErrTokenReuseDetected)

	// Logout kills the session.
	require.NoError(t, svc.Logout(ctx, rotated.AccessToken, rotated.RefreshToken))
	_, err = svc.VerifyAccess(ctx, rotated.AccessToken)
	assert.ErrorIs(t, err, autherror.ErrTokenRevoked)
	_, err = svc.Refresh(ctx, rotated.RefreshToken)
	assert.ErrorIs(t, err, autherror.ErrTokenReuseDetected)

	// The credential survives the logout.
	creds, err := svc.ListCredentials(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, cred.ID, creds[0].ID)
}

func TestAuthService_LogoutToleratesGarbageTokens(t *testing.T) {
	ctx := context.Background()
	svc, _ := newAuthFixture(t)

	assert.NoError(t, svc.Logout(ctx, "garbage", ""))
	assert.NoError(t, svc.Logout(ctx, "", ""))
}

func TestAuthService_RevokeCredential(t *testing.T) {
	ctx := context.Background()
	svc, f := newAuthFixture(t)
	cred := register(t, f, "user-1")

	t.Run("owner check", func(t *testing.T) {
		err := svc.RevokeCredential(ctx, "someone-else", cred.ID)
		assert.ErrorIs(t, err, autherror.ErrCredentialNotOwned)
	})

	t.Run("owner can revoke", func(t *testing.T) {
		require.NoError(t, svc.RevokeCredential(ctx, "user-1", cred.ID))
		creds, err := svc.ListCredentials(ctx, "user-1")
		require.NoError(t, err)
		assert.Empty(t, creds)
	})

	t.Run("unknown credential", func(t *testing.T) {
		err := svc.RevokeCredential(ctx, "user-1", []byte("missing"))
		assert.ErrorIs(t, err, autherror.ErrCredentialNotFound)
	})
}

func TestAuthService_Health(t *testing.T) {
	ctx := context.Background()
	_, f := newAuthFixture(t)

	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	tokens := NewTokenService(key, memory.NewTokenBlacklist(), 5*time.Minute, 24*time.Hour, false)

	t.Run("healthy", func(t *testing.T) {
		svc := NewAuthService(f.svc, tokens, f.creds, stubPinger{}, stubPinger{})
		assert.NoError(t, svc.Health(ctx))
	})

	t.Run("cache down", func(t *testing.T) {
		svc := NewAuthService(f.svc, tokens, f.creds, stubPinger{}, stubPinger{err: resilience.ErrCircuitOpen})
		assert.ErrorIs(t, svc.Health(ctx), resilience.ErrCircuitOpen)
	})
}
