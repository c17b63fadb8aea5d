package transfer

import "time"

// AccountConnection carries plaintext credentials handed over by the
// operator; they are encrypted before storage.
type AccountConnection struct {
	ClientID        int64             `json:"client_id"`
	Platform        string            `json:"platform"`
	AccountID       string            `json:"account_id"`
	AccountName     string            `json:"account_name"`
	AccountUsername string            `json:"account_username"`
	AccessToken     string            `json:"access_token"`
	RefreshToken    string            `json:"refresh_token"`
	TokenExpiresAt  time.Time         `json:"token_expires_at"`
	Extra           map[string]string `json:"extra"`
}
