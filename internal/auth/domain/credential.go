package domain

import "time"

// Credential is one registered authenticator for a user. The credential ID
// is globally unique; the sign counter only ever moves forward.
type Credential struct {
	ID         []byte
	UserID     string
	PublicKey  []byte
	SignCount  uint32
	Transports []string
	Flags      CredentialFlags
	CreatedAt  time.Time
}

// CredentialFlags mirrors the authenticator flags captured at registration.
// Backup eligibility must stay consistent across assertions.
type CredentialFlags struct {
	UserPresent    bool `json:"userPresent"`
	UserVerified   bool `json:"userVerified"`
	BackupEligible bool `json:"backupEligible"`
	BackupState    bool `json:"backupState"`
}

// ChallengePurpose distinguishes the two ceremony kinds.
type ChallengePurpose string

const (
	PurposeRegister     ChallengePurpose = "register"
	PurposeAuthenticate ChallengePurpose = "authenticate"
)

// Challenge is one pending ceremony: the serialized webauthn session data
// (which embeds the random challenge bytes) plus an expiry. Consumed exactly
// once, never usable past ExpiresAt.
type Challenge struct {
	ID          string
	UserID      string
	Purpose     ChallengePurpose
	SessionData []byte
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Expired reports whether the challenge is past its expiry at the given time.
func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
