// Package auth obtains the bearer token used for all report requests.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/clavis-export/pkg/client"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// TokenEndpoint is the fixed, unauthenticated route that issues tokens.
const TokenEndpoint = "token"

// Token is an opaque bearer token valid for one job run.
type Token string

// AuthError is returned when a token cannot be obtained.
type AuthError struct {
	StatusCode int
	Reason     string
	Err        error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authenticate: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("authenticate: %s", e.Reason)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *AuthError) Unwrap() error {
	return e.Err
}

// Doer executes a single API request.
type Doer interface {
	Do(ctx context.Context, req *client.Request) (*client.Response, error)
}

type tokenResponse struct {
	Data *struct {
		Token string `json:"token"`
	} `json:"data"`
}

// Authenticator exchanges nothing for a fresh token. Tokens are never cached.
type Authenticator struct {
	api    Doer
	logger zerolog.Logger
}

// NewAuthenticator creates an authenticator on top of api.
func NewAuthenticator(api Doer) *Authenticator {
	return &Authenticator{
		api:    api,
		logger: log.With().Str("component", "authenticator").Logger(),
	}
}

// Authenticate issues one unauthenticated request to the token endpoint.
func (a *Authenticator) Authenticate(ctx context.Context) (Token, error) {
	resp, err := a.api.Do(ctx, &client.Request{
		Endpoint: TokenEndpoint,
		Auth:     client.AuthNone,
	})
	if err != nil {
		authErr := &AuthError{Reason: "token request failed", Err: err}
		var httpErr *client.HTTPError
		if errors.As(err, &httpErr) {
			authErr.StatusCode = httpErr.StatusCode
		}
		a.logger.Error().Err(err).Int("status", authErr.StatusCode).Msg("Token request failed")
		return "", authErr
	}

	var body tokenResponse
	if err := resp.DecodeJSON(&body); err != nil {
		return "", &AuthError{StatusCode: resp.StatusCode, Reason: "token response is not JSON", Err: err}
	}

	if body.Data == nil || body.Data.Token == "" {
		return "", &AuthError{StatusCode: resp.StatusCode, Reason: "token response missing data.token"}
	}

	a.logger.Debug().Msg("Obtained API token")

	return Token(body.Data.Token), nil
}
