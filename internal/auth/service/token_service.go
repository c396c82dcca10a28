package service

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/emanara/passkey-auth/internal/auth/domain"
	autherror "github.com/emanara/passkey-auth/internal/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims is the JWT payload for both token types; Type discriminates them so
// a refresh token can never pass as an access token.
type Claims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken     string
	RefreshToken    string
	AccessExpiresIn time.Duration
}

// TokenService issues, verifies and rotates Ed25519-signed token pairs.
// Verification is pure except for the blacklist lookups.
type TokenService struct {
	privateKey       ed25519.PrivateKey
	publicKey        ed25519.PublicKey
	blacklist        domain.TokenBlacklist
	accessTTL        time.Duration
	refreshTTL       time.Duration
	revokeAllOnReuse bool
	now              func() time.Time
}

func NewTokenService(key ed25519.PrivateKey, blacklist domain.TokenBlacklist, accessTTL, refreshTTL time.Duration, revokeAllOnReuse bool) *TokenService {
	return &TokenService{
		privateKey:       key,
		publicKey:        key.Public().(ed25519.PublicKey),
		blacklist:        blacklist,
		accessTTL:        accessTTL,
		refreshTTL:       refreshTTL,
		revokeAllOnReuse: revokeAllOnReuse,
		now:              time.Now,
	}
}

// Issue mints a fresh access/refresh pair for the subject.
func (s *TokenService) Issue(ctx context.Context, userID string) (*TokenPair, error) {
	access, err := s.sign(userID, tokenTypeAccess, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.sign(userID, tokenTypeRefresh, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:     access,
		RefreshToken:    refresh,
		AccessExpiresIn: s.accessTTL,
	}, nil
}

func (s *TokenService) sign(userID, tokenType string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		Type: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

// parse verifies the signature and validity window and checks the token type.
// It performs no blacklist lookups.
func (s *TokenService) parse(tokenString, wantType string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return s.publicKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, autherror.ErrTokenExpired
		}
		return nil, autherror.ErrTokenInvalid
	}
	if claims.Type != wantType {
		return nil, autherror.ErrTokenInvalid
	}
	return claims, nil
}

// checkRevocation reports ErrTokenRevoked when the token ID is blacklisted or
// the whole subject was revoked at or after the token's issue time.
func (s *TokenService) checkRevocation(ctx context.Context, claims *Claims) error {
	revoked, err := s.blacklist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return err
	}
	if revoked {
		return autherror.ErrTokenRevoked
	}

	revokedAt, ok, err := s.blacklist.SubjectRevokedAt(ctx, claims.Subject)
	if err != nil {
		return err
	}
	if ok && !claims.IssuedAt.Time.After(revokedAt) {
		return autherror.ErrTokenRevoked
	}
	return nil
}

// VerifyAccess validates an access token and returns its subject.
func (s *TokenService) VerifyAccess(ctx context.Context, tokenString string) (string, error) {
	claims, err := s.parse(tokenString, tokenTypeAccess)
	if err != nil {
		return "", err
	}
	if err := s.checkRevocation(ctx, claims); err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Refresh rotates a refresh token: the presented token is retired and a new
// pair is issued. Presenting an already-rotated token is treated as theft
// evidence.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.parse(refreshToken, tokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	revoked, err := s.blacklist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		if s.revokeAllOnReuse {
			log.Printf("token reuse detected for subject %s, revoking all sessions", claims.Subject)
			if err := s.blacklist.RevokeSubject(ctx, claims.Subject, s.refreshTTL); err != nil {
				return nil, err
			}
		}
		return nil, autherror.ErrTokenReuseDetected
	}

	revokedAt, ok, err := s.blacklist.SubjectRevokedAt(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if ok && !claims.IssuedAt.Time.After(revokedAt) {
		return nil, autherror.ErrTokenRevoked
	}

	// Retire the old token before handing out the new pair so a crash in
	// between cannot leave two live refresh tokens.
	if err := s.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return nil, err
	}
	return s.Issue(ctx, claims.Subject)
}

// Revoke blacklists a token ID until its natural expiry. Revoking an already
// expired token is a no-op.
func (s *TokenService) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	return s.blacklist.Revoke(ctx, tokenID, expiresAt.Sub(s.now()))
}

// RevokeToken parses a token without checking its validity window and
// blacklists it; expired tokens are accepted silently so logout works with a
// stale pair. The signature must still verify.
func (s *TokenService) RevokeToken(ctx context.Context, tokenString string) error {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return s.publicKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return autherror.ErrTokenInvalid
	}
	return s.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}
