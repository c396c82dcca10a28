package handler_test

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/emanara/passkey-auth/internal/auth/domain"
	"github.com/emanara/passkey-auth/internal/auth/dto"
	"github.com/emanara/passkey-auth/internal/auth/handler"
	"github.com/emanara/passkey-auth/internal/auth/repository/memory"
	"github.com/emanara/passkey-auth/internal/auth/service"
	autherror "github.com/emanara/passkey-auth/internal/errors"
	"github.com/emanara/passkey-auth/internal/mocks"
	"github.com/emanara/passkey-auth/internal/resilience"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/gofiber/fiber/v2"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

func newApp(t *testing.T, creds domain.CredentialStore, challenges domain.ChallengeStore, dbPing, cachePing error) (*fiber.App, *service.TokenService) {
	t.Helper()

	wa, err := webauthn.New(&webauthn.Config{
		RPID:          "example.com",
		RPDisplayName: "Example Corp",
		RPOrigins:     []string{"https://example.com"},
	})
	require.NoError(t, err)

	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	ceremonies := service.NewCeremonyService(wa, creds, challenges, 5*time.Minute)
	tokens := service.NewTokenService(key, memory.NewTokenBlacklist(), 5*time.Minute, 24*time.Hour, false)
	authService := service.NewAuthService(ceremonies, tokens, creds, stubPinger{err: dbPing}, stubPinger{err: cachePing})

	app := fiber.New()
	handler.RegisterRoutes(app, handler.NewAuthHandler(authService))
	return app, tokens
}

func TestBeginRegister(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockCreds := mocks.NewMockCredentialStore(ctrl)
	mockChallenges := mocks.NewMockChallengeStore(ctrl)
	app, _ := newApp(t, mockCreds, mockChallenges, nil, nil)

	t.Run("success", func(t *testing.T) {
		mockCreds.EXPECT().GetByUser(gomock.Any(), "user-1").Return(nil, nil)
		mockChallenges.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)

		body, _ := json.Marshal(dto.BeginRegisterInput{UserID: "user-1", Username: "user-1"})
		req := httptest.NewRequest("POST", "/api/v1/register/begin", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		resp, _ := app.Test(req)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		var out dto.CeremonyOutput
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.NotEmpty(t, out.ChallengeID)
		assert.NotNil(t, out.Options)
	})

	t.Run("missing fields", func(t *testing.T) {
		body, _ := json.Marshal(dto.BeginRegisterInput{})
		req := httptest.NewRequest("POST", "/api/v1/register/begin", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		resp, _ := app.Test(req)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("challenge store behind open circuit", func(t *testing.T) {
		mockCreds.EXPECT().GetByUser(gomock.Any(), "user-1").Return(nil, nil)
		mockChallenges.EXPECT().Create(gomock.Any(), gomock.Any()).
			Return(fmt.Errorf("challenges: %w", resilience.ErrCircuitOpen))

		body, _ := json.Marshal(dto.BeginRegisterInput{UserID: "user-1", Username: "user-1"})
		req := httptest.NewRequest("POST", "/api/v1/register/begin", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		resp, _ := app.Test(req)
		assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	})
}

func TestFinishRegister_BadPayloads(t *testing.T) {
	app, _ := newApp(t, memory.NewCredentialStore(), memory.NewChallengeStore(), nil, nil)

	t.Run("malformed credential", func(t *testing.T) {
		body, _ := json.Marshal(dto.FinishRegisterInput{ChallengeID: "ch-1", Credential: json.RawMessage(`{"not":"webauthn"}`)})
		req := httptest.NewRequest("POST", "/api/v1/register/finish", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		resp, _ := app.Test(req)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing challenge id", func(t *testing.T) {
		body, _ := json.Marshal(dto.FinishRegisterInput{})
		req := httptest.NewRequest("POST", "/api/v1/register/finish", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		resp, _ := app.Test(req)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})
}

func TestRefresh(t *testing.T) {
	app, tokens := newApp(t, memory.NewCredentialStore(), memory.NewChallengeStore(), nil, nil)
	ctx := context.Background()

	pair, err := tokens.Issue(ctx, "user-1")
	require.NoError(t, err)

	t.Run("success", func(t *testing.T) {
		body, _ := json.Marshal(dto.RefreshInput{RefreshToken: pair.RefreshToken})
		req := httptest.NewRequest("POST", "/api/v1/refresh", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		resp, _ := app.Test(req)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		var out dto.TokenOutput
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.NotEmpty(t, out.AccessToken)
		assert.NotEqual(t, pair.RefreshToken, out.RefreshToken)
		assert.Equal(t, "Bearer", out.TokenType)
	})

	t.Run("reused refresh token", func(t *testing.T) {
		body, _ := json.Marshal(dto.RefreshInput{RefreshToken: pair.RefreshToken})
		req := httptest.NewRequest("POST", "/api/v1/refresh", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		resp, _ := app.Test(req)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("missing token", func(t *testing.T) {
		body, _ := json.Marshal(dto.RefreshInput{})
		req := httptest.NewRequest("POST", "/api/v1/refresh", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		resp, _ := app.Test(req)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})
}

func TestLogout(t *testing.T) {
	app, tokens := newApp(t, memory.NewCredentialStore(), memory.NewChallengeStore(), nil, nil)
	ctx := context.Background()

	pair, err := tokens.Issue(ctx, "user-1")
	require.NoError(t, err)

	body, _ := json.Marshal(dto.LogoutInput{RefreshToken: pair.RefreshToken})
	req := httptest.NewRequest("DELETE", "/api/v1/session", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)

	resp, _ := app.Test(req)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	// Both tokens of the pair are now dead.
	_, err = tokens.VerifyAccess(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, autherror.ErrTokenRevoked)
	_, err = tokens.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, autherror.ErrTokenReuseDetected)
}

func TestProtectedRoutes(t *testing.T) {
	creds := memory.NewCredentialStore()
	app, tokens := newApp(t, creds, memory.NewChallengeStore(), nil, nil)
	ctx := context.Background()

	require.NoError(t, creds.Create(ctx, &domain.Credential{
		ID:        []byte("cred-1"),
		UserID:    "user-1",
		PublicKey: []byte("pubkey"),
		CreatedAt: time.Now(),
	}))

	pair, err := tokens.Issue(ctx, "user-1")
	require.NoError(t, err)

	t.Run("me requires a token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/me", nil)
		resp, _ := app.Test(req)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("me lists credentials", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/me", nil)
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)

		resp, _ := app.Test(req)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		var out struct {
			UserID      string                 `json:"user_id"`
			Credentials []dto.CredentialOutput `json:"credentials"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.Equal(t, "user-1", out.UserID)
		require.Len(t, out.Credentials, 1)
		assert.Equal(t, base64.RawURLEncoding.EncodeToString([]byte("cred-1")), out.Credentials[0].ID)
	})

	t.Run("refresh token is not a bearer token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/me", nil)
		req.Header.Set("Authorization", "Bearer "+pair.RefreshToken)

		resp, _ := app.Test(req)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("revoke someone else's credential", func(t *testing.T) {
		otherPair, err := tokens.Issue(ctx, "user-2")
		require.NoError(t, err)

		target := base64.RawURLEncoding.EncodeToString([]byte("cred-1"))
		req := httptest.NewRequest("DELETE", "/api/v1/credentials/"+target, nil)
		req.Header.Set("Authorization", "Bearer "+otherPair.AccessToken)

		resp, _ := app.Test(req)
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	})

	t.Run("revoke own credential", func(t *testing.T) {
		target := base64.RawURLEncoding.EncodeToString([]byte("cred-1"))
		req := httptest.NewRequest("DELETE", "/api/v1/credentials/"+target, nil)
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)

		resp, _ := app.Test(req)
		assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

		_, err := creds.GetByID(ctx, []byte("cred-1"))
		assert.ErrorIs(t, err, autherror.ErrCredentialNotFound)
	})
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		app, _ := newApp(t, memory.NewCredentialStore(), memory.NewChallengeStore(), nil, nil)
		req := httptest.NewRequest("GET", "/api/v1/health", nil)
		resp, _ := app.Test(req)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("database unreachable", func(t *testing.T) {
		app, _ := newApp(t, memory.NewCredentialStore(), memory.NewChallengeStore(), resilience.ErrCircuitOpen, nil)
		req := httptest.NewRequest("GET", "/api/v1/health", nil)
		resp, _ := app.Test(req)
		assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	})
}
