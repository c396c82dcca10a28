package errors

import (
	"errors"
)

var (
	// Ceremony errors. A consumed challenge and an unknown challenge are
	// deliberately indistinguishable to callers.
	ErrChallengeNotFound     = errors.New("challenge not found")
	ErrChallengeExpired      = errors.New("challenge expired")
	ErrAttestationInvalid    = errors.New("attestation verification failed")
	ErrAssertionInvalid      = errors.New("assertion verification failed")
	ErrPossibleCloneDetected = errors.New("possible cloned authenticator detected")

	// Credential store errors.
	ErrCredentialNotFound  = errors.New("credential not found")
	ErrCredentialExists    = errors.New("credential already registered")
	ErrCounterNotIncreased = errors.New("sign counter did not increase")
	ErrCredentialNotOwned  = errors.New("credential does not belong to user")

	// Token errors.
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrTokenRevoked       = errors.New("token revoked")
	ErrTokenReuseDetected = errors.New("refresh token reuse detected")
)
