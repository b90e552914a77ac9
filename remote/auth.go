package remote

import (
	"context"
	"net/http"

	"github.com/goliatone/go-artisan/gateway"
)

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresIn    int    `json:"expiresIn,omitempty"`
}

// Profile is the authenticated admin returned by GET /auth/me.
type Profile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

// AuthAPI wraps the authentication endpoints.
type AuthAPI struct {
	client *gateway.Client
}

// NewAuthAPI wraps the login, session, and logout endpoints.
func NewAuthAPI(client *gateway.Client) *AuthAPI {
	return &AuthAPI{client: client}
}

// Login exchanges credentials for a token pair and stores it in the gateway.
func (a *AuthAPI) Login(ctx context.Context, identifier, password string) (*TokenPair, error) {
	resp, err := a.client.Do(ctx, gateway.Request{
		Method:   http.MethodPost,
		Path:     "/auth/login",
		Body:     LoginRequest{Identifier: identifier, Password: password},
		SkipAuth: true,
	})
	if err != nil {
		return nil, err
	}

	pair := &TokenPair{}
	if err := resp.Decode(pair); err != nil {
		return nil, err
	}
	if err := a.client.SetTokens(ctx, pair.AccessToken, pair.RefreshToken); err != nil {
		return nil, err
	}
	return pair, nil
}

func (a *AuthAPI) Me(ctx context.Context) (*Profile, error) {
	profile := &Profile{}
	if err := a.client.Get(ctx, "/auth/me", profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// Logout drops the stored credentials. Tokens are stateless, the server is
// not contacted.
func (a *AuthAPI) Logout(ctx context.Context) error {
	return a.client.Logout(ctx)
}
