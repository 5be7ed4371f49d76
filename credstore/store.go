// Package credstore persists the credential pair issued by the auth
// endpoints. The API client is the only writer; the pair is created on
// login/registration, overwritten on every successful refresh, and cleared
// on logout or irrecoverable refresh failure.
package credstore

import "errors"

// ErrNoCredentials indicates the store holds no credential pair.
var ErrNoCredentials = errors.New("no stored credentials")

// Credentials is the access/refresh token pair.
type Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Empty reports whether the pair carries no tokens at all.
func (c Credentials) Empty() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

// Store persists a single credential pair. Implementations must be safe for
// concurrent use.
type Store interface {
	// Load returns the stored pair, or ErrNoCredentials if none is stored.
	Load() (Credentials, error)
	// Save overwrites the stored pair.
	Save(Credentials) error
	// Clear removes the stored pair. Clearing an empty store is a no-op.
	Clear() error
}
