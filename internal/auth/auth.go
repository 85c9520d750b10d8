// Package auth validates the identity behind an inbound connection. Login
// and token issuance live elsewhere; this package only checks tokens.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNoCredentials      = errors.New("no credentials provided")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrExpiredCredentials = errors.New("credentials expired")
)

// Identity is the post-authentication view of a user.
type Identity struct {
	UserID    string
	Anonymous bool
}

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (Identity, error)
}

// AnonymousAuthenticator accepts every connection and gives it a throwaway
// identity. Only meant for local development.
type AnonymousAuthenticator struct{}

func (AnonymousAuthenticator) Authenticate(_ context.Context, _ string) (Identity, error) {
	return Identity{UserID: "anon-" + uuid.NewString(), Anonymous: true}, nil
}

// TokenFromRequest extracts a bearer token from the Authorization header,
// falling back to the "token" query parameter since browsers cannot set
// headers on websocket upgrades.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			if token := strings.TrimSpace(parts[1]); token != "" {
				return token
			}
		}
	}
	return r.URL.Query().Get("token")
}
