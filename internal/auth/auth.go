// Package auth signs the admin in, keeps the session in a signed cookie and
// gates admin routes.
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aTrapDeer/portfolio-backend/internal/apperrors"
)

// ErrInvalidCredentials is returned by a Provider when the email or password
// does not match. It wraps apperrors.ErrUnauthorized.
var ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", apperrors.ErrUnauthorized)

// Identity is a signed-in user. AccessToken is set when the store issued a
// token of its own that writes must carry; AccessExpiresAt, when set, is
// when the store stops accepting it.
type Identity struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	AccessToken     string    `json:"-"`
	AccessExpiresAt time.Time `json:"-"`
}

// Provider checks credentials against the data store.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (Identity, error)
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// CurrentUser returns the identity attached by the session middleware.
func CurrentUser(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

func sameEmail(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
