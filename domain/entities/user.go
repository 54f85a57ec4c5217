package entities

import (
	"time"

	"github.com/google/uuid"

	"meterhub-backend/domain/keys"
)

// User is addressed by two identities: the internal id (primary key) and
// the OAuth subject (belongs-to index). The wallet address is optional and
// only set once the user connects one for asset minting.
type User struct {
	ID      string
	OAuthID string
	Email   string
	Wallet  string
	Status  string
	Created int64
}

// NewUser creates an active user for an OAuth subject.
func NewUser(oauthID, email string) *User {
	return &User{
		ID:      uuid.New().String(),
		OAuthID: oauthID,
		Email:   email,
		Status:  keys.StatusActive,
		Created: time.Now().UnixMilli(),
	}
}

// KeySet is the cached JWKS blob, a singleton item refreshed on miss or on
// verification failure.
type KeySet struct {
	Blob     string // base64-encoded JWKS document
	CachedAt int64
}
