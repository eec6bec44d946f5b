package models

import (
	"time"

	"golang.org/x/oauth2"
)

// Credential is a usable access credential for one user's mailbox.
type Credential struct {
	UserID string
	// Email is the mailbox address. IMAP needs it for OAUTHBEARER.
	Email string
	Token *oauth2.Token
}

// AuthToken is the persisted form of a credential: one row per user,
// holding the encrypted token JSON.
type AuthToken struct {
	UserID         string    `json:"user_id"`
	Email          string    `json:"email"`
	EncryptedToken []byte    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
