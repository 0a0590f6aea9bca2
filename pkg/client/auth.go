package client

import (
	"fmt"
	"net/http"
)

// AuthMode selects how a single request is authenticated.
type AuthMode int

const (
	// AuthNone sends no Authorization header, even when the connection has
	// static credentials.
	AuthNone AuthMode = iota

	// AuthStatic sends the connection's basic credentials.
	AuthStatic

	// AuthBearer sends "Authorization: Token token={token}".
	AuthBearer
)

// String returns the mode name used in logs.
func (m AuthMode) String() string {
	switch m {
	case AuthNone:
		return "none"
	case AuthStatic:
		return "static"
	case AuthBearer:
		return "bearer"
	default:
		return fmt.Sprintf("auth_mode(%d)", int(m))
	}
}

// TokenHeader formats the Authorization header value for a bearer token.
func TokenHeader(token string) string {
	return "Token token=" + token
}

func (m AuthMode) apply(req *http.Request, static *StaticCredentials, token string) error {
	switch m {
	case AuthNone:
		req.Header.Del("Authorization")
		return nil
	case AuthStatic:
		if static == nil {
			return fmt.Errorf("static auth requested but connection has no credentials")
		}
		req.SetBasicAuth(static.Username, static.Password)
		return nil
	case AuthBearer:
		if token == "" {
			return fmt.Errorf("bearer auth requested without a token")
		}
		req.Header.Set("Authorization", TokenHeader(token))
		return nil
	default:
		return fmt.Errorf("unknown auth mode %d", int(m))
	}
}
