package dto

import "encoding/json"

type BeginRegisterInput struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

type FinishRegisterInput struct {
	ChallengeID string `json:"challenge_id"`
	// Credential is the authenticator attestation response exactly as the
	// browser produced it.
	Credential json.RawMessage `json:"credential"`
}

// CeremonyOutput pairs the browser-bound creation or request options with
// the challenge ID the client must echo back to finish the ceremony.
type CeremonyOutput struct {
	ChallengeID string `json:"challenge_id"`
	Options     any    `json:"options"`
}

type CredentialOutput struct {
	ID         string   `json:"id"`
	Transports []string `json:"transports,omitempty"`
	BackedUp   bool     `json:"backed_up"`
	CreatedAt  string   `json:"created_at"`
}
