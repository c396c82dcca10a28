package handler

import (
	"bytes"
	"encoding/base64"
	"errors"
	"time"

	"github.com/emanara/passkey-auth/internal/auth/dto"
	"github.com/emanara/passkey-auth/internal/auth/service"
	autherror "github.com/emanara/passkey-auth/internal/errors"
	"github.com/emanara/passkey-auth/internal/resilience"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/gofiber/fiber/v2"
)

type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// statusFromError maps service failures onto HTTP statuses. Verification
// failures deliberately collapse into 401 so a caller learns nothing about
// why a ceremony or token was rejected.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, autherror.ErrAttestationInvalid),
		errors.Is(err, autherror.ErrAssertionInvalid),
		errors.Is(err, autherror.ErrPossibleCloneDetected),
		errors.Is(err, autherror.ErrTokenInvalid),
		errors.Is(err, autherror.ErrTokenExpired),
		errors.Is(err, autherror.ErrTokenRevoked),
		errors.Is(err, autherror.ErrTokenReuseDetected):
		return fiber.StatusUnauthorized
	case errors.Is(err, autherror.ErrChallengeExpired):
		return fiber.StatusGone
	case errors.Is(err, autherror.ErrChallengeNotFound),
		errors.Is(err, autherror.ErrCredentialNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, autherror.ErrCredentialExists):
		return fiber.StatusConflict
	case errors.Is(err, autherror.ErrCredentialNotOwned):
		return fiber.StatusForbidden
	case errors.Is(err, resilience.ErrCircuitOpen),
		errors.Is(err, resilience.ErrDependencyTimeout),
		errors.Is(err, resilience.ErrDependencyUnavailable):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func fail(c *fiber.Ctx, err error) error {
	return c.Status(statusFromError(err)).JSON(fiber.Map{"error": err.Error()})
}

func (h *AuthHandler) BeginRegister(c *fiber.Ctx) error {
	var input dto.BeginRegisterInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}
	if input.UserID == "" || input.Username == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id and username are required"})
	}

	options, challengeID, err := h.authService.BeginRegistration(c.Context(), input.UserID, input.Username, input.DisplayName)
	if err != nil {
		return fail(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(dto.CeremonyOutput{
		ChallengeID: challengeID,
		Options:     options,
	})
}

func (h *AuthHandler) FinishRegister(c *fiber.Ctx) error {
	var input dto.FinishRegisterInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}
	if input.ChallengeID == "" || len(input.Credential) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "challenge_id and credential are required"})
	}

	response, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(input.Credential))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed credential"})
	}

	cred, err := h.authService.FinishRegistration(c.Context(), input.ChallengeID, response)
	if err != nil {
		return fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.CredentialOutput{
		ID:         base64.RawURLEncoding.EncodeToString(cred.ID),
		Transports: cred.Transports,
		BackedUp:   cred.Flags.BackupState,
		CreatedAt:  cred.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func (h *AuthHandler) BeginLogin(c *fiber.Ctx) error {
	var input dto.BeginLoginInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}

	options, challengeID, err := h.authService.BeginLogin(c.Context(), input.UserID)
	if err != nil {
		return fail(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(dto.CeremonyOutput{
		ChallengeID: challengeID,
		Options:     options,
	})
}

func (h *AuthHandler) FinishLogin(c *fiber.Ctx) error {
	var input dto.FinishLoginInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}
	if input.ChallengeID == "" || len(input.Assertion) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "challenge_id and assertion are required"})
	}

	response, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(input.Assertion))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed assertion"})
	}

	userID, pair, err := h.authService.FinishLogin(c.Context(), input.ChallengeID, response)
	if err != nil {
		return fail(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"user_id":       userID,
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"token_type":    "Bearer",
		"expires_in":    int64(pair.AccessExpiresIn.Seconds()),
	})
}

func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var input dto.RefreshInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}
	if input.RefreshToken == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "refresh_token is required"})
	}

	pair, err := h.authService.Refresh(c.Context(), input.RefreshToken)
	if err != nil {
		return fail(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(dto.TokenOutput{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(pair.AccessExpiresIn.Seconds()),
	})
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var input dto.LogoutInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}

	if err := h.authService.Logout(c.Context(), bearerToken(c), input.RefreshToken); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	userID, _ := c.Locals(localsUserID).(string)

	creds, err := h.authService.ListCredentials(c.Context(), userID)
	if err != nil {
		return fail(c, err)
	}

	out := make([]dto.CredentialOutput, 0, len(creds))
	for _, cred := range creds {
		out = append(out, dto.CredentialOutput{
			ID:         base64.RawURLEncoding.EncodeToString(cred.ID),
			Transports: cred.Transports,
			BackedUp:   cred.Flags.BackupState,
			CreatedAt:  cred.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"user_id":     userID,
		"credentials": out,
	})
}

func (h *AuthHandler) RevokeCredential(c *fiber.Ctx) error {
	userID, _ := c.Locals(localsUserID).(string)

	credentialID, err := base64.RawURLEncoding.DecodeString(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid credential id"})
	}

	if err := h.authService.RevokeCredential(c.Context(), userID, credentialID); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AuthHandler) Health(c *fiber.Ctx) error {
	if err := h.authService.Health(c.Context()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded", "error": err.Error()})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
}
