package client

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/pentedigital/extrashifty/credstore"
)

// AuthAPI handles authentication operations. Successful logins and
// registrations persist the issued credential pair in the client's store.
type AuthAPI struct {
	client *Client
}

// LoginRequest is the login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the registration payload.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     Role   `json:"role"`
}

// Login authenticates with email and password.
func (a *AuthAPI) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	var session Session
	if err := a.client.do(ctx, http.MethodPost, "/auth/login", req, &session); err != nil {
		return nil, err
	}
	if err := a.persist(session); err != nil {
		return nil, err
	}
	a.client.logger.Info("logged in", zap.String("email", req.Email))
	return &session, nil
}

// Register creates a new account and signs it in.
func (a *AuthAPI) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	var session Session
	if err := a.client.do(ctx, http.MethodPost, "/auth/register", req, &session); err != nil {
		return nil, err
	}
	if err := a.persist(session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Refresh forces a token refresh outside the transparent 401 path.
func (a *AuthAPI) Refresh(ctx context.Context) error {
	_, err := a.client.refresh(ctx)
	return err
}

// Logout revokes the session server-side and clears the stored pair. The
// local pair is cleared even when the revocation call fails.
func (a *AuthAPI) Logout(ctx context.Context) error {
	err := a.client.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
	if clearErr := a.client.store.Clear(); clearErr != nil && err == nil {
		err = clearErr
	}
	return err
}

func (a *AuthAPI) persist(session Session) error {
	creds := credstore.Credentials{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
	}
	if err := a.client.store.Save(creds); err != nil {
		return fmt.Errorf("persist credentials: %w", err)
	}
	return nil
}
