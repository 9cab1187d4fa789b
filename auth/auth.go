package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/ggoodman/govdata-mcp/internal/jwtauth"
)

// ErrUnauthorized indicates authentication failed or no valid credentials
// were supplied.
var ErrUnauthorized = errors.New("unauthorized")

// UnauthorizedDetail is the only failure message a client receives.
const UnauthorizedDetail = "Invalid authentication. Provide either X-API-Key header or JWT Bearer token."

// Claims is the decoded claim set of a verified bearer token.
type Claims = jwtauth.Claims

// Mode names the credential factor that authenticated a request.
type Mode string

const (
	ModeNone   Mode = "none"
	ModeAPIKey Mode = "api_key"
	ModeBearer Mode = "bearer"
)

// Reason is a diagnostic code for a failed decision. It is never sent to
// clients.
type Reason string

const (
	ReasonMissing       Reason = "missing auth headers"
	ReasonInvalidAPIKey Reason = "invalid API key"
	ReasonInvalidBearer Reason = "invalid bearer token"
)

// Decision is the per-request outcome of authentication. It is never
// persisted.
type Decision struct {
	Authenticated bool
	Mode          Mode
	// Claims is set when a bearer token authenticated the request.
	Claims Claims
	// Reason is set when Authenticated is false.
	Reason Reason
}

// Authenticator is consulted by every transport entry point before any
// protocol work happens.
type Authenticator interface {
	Authenticate(ctx context.Context, h http.Header) Decision
}

// BearerVerifier validates a bearer token and returns its claims.
type BearerVerifier interface {
	Verify(ctx context.Context, tok string) (Claims, error)
}

// Challenge describes the HTTP response used to reject a request.
type Challenge struct {
	Status          int
	WWWAuthenticate string
	Detail          string
}

// UnauthorizedChallenge is the fixed rejection for failed authentication.
func UnauthorizedChallenge() Challenge {
	return Challenge{
		Status:          http.StatusUnauthorized,
		WWWAuthenticate: "Bearer",
		Detail:          UnauthorizedDetail,
	}
}
