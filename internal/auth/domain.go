package auth

import "time"

// APIKey is an issued credential. The secret is stored only as a bcrypt hash;
// the plaintext is shown once at mint time.
type APIKey struct {
	KeyID      string     `json:"key_id"`
	Name       string     `json:"name"`
	SecretHash string     `json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// MintedKey is the one-time response to a key mint.
type MintedKey struct {
	APIKey
	Token string `json:"token"`
}

// MintKeyRequest names a new API key.
type MintKeyRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}
