package dto

import "encoding/json"

type BeginLoginInput struct {
	// UserID is optional; an empty value requests a discoverable
	// (resident-key) login.
	UserID string `json:"user_id"`
}

type FinishLoginInput struct {
	ChallengeID string          `json:"challenge_id"`
	Assertion   json.RawMessage `json:"assertion"`
}

type TokenOutput struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}
