package auth

import "context"

// APIKeyInfo holds the identity and permission data for a validated API key.
// UserID identifies the marketplace user acting through the key; it is what
// the catalog core receives as the acting identity.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	UserID  int64
	Scopes  []string
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}
