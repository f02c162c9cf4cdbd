package postgrest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/aTrapDeer/portfolio-backend/internal/apperrors"
	"github.com/aTrapDeer/portfolio-backend/internal/auth"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int `json:"expires_in"`
	User      struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// SignIn exchanges an email and password for an access token with the
// password grant of the auth service.
func (c *Client) SignIn(ctx context.Context, email, password string) (auth.Identity, error) {
	body := map[string]string{"email": email, "password": password}
	endpoint := c.endpoint("/auth/v1/token", url.Values{"grant_type": {"password"}})

	var tok tokenResponse
	err := c.do(ctx, http.MethodPost, endpoint, body, mediaJSON, &tok)
	switch {
	case errors.Is(err, apperrors.ErrInvalid), errors.Is(err, apperrors.ErrUnauthorized):
		return auth.Identity{}, auth.ErrInvalidCredentials
	case err != nil:
		return auth.Identity{}, fmt.Errorf("sign in: %w", err)
	}
	if tok.AccessToken == "" {
		return auth.Identity{}, fmt.Errorf("sign in: response carried no access token")
	}
	id := auth.Identity{ID: tok.User.ID, Email: tok.User.Email, AccessToken: tok.AccessToken}
	if tok.ExpiresIn > 0 {
		id.AccessExpiresAt = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	}
	return id, nil
}
