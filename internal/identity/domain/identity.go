package domain

import "time"

// Identity is a credential a user can sign in with. Only local identities carry a password hash.
type Identity struct {
	ID           string
	UserID       string
	Provider     IdentityProvider
	ProviderID   string
	PasswordHash string // empty if not local
	CreatedAt    time.Time
}

type IdentityProvider string

const (
	IdentityProviderLocal IdentityProvider = "local"
	IdentityProviderOIDC  IdentityProvider = "oidc"
	IdentityProviderSAML  IdentityProvider = "saml"
)
