// Package authtest provides fixed Authenticators for transport tests.
package authtest

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/ggoodman/govdata-mcp/auth"
)

// Fixed returns the same decision for every request and counts calls.
type Fixed struct {
	Decision auth.Decision
	calls    atomic.Int64
}

// Allow authenticates every request as an API key caller.
func Allow() *Fixed {
	return &Fixed{Decision: auth.Decision{Authenticated: true, Mode: auth.ModeAPIKey}}
}

// Deny rejects every request with reason.
func Deny(reason auth.Reason) *Fixed {
	return &Fixed{Decision: auth.Decision{Mode: auth.ModeNone, Reason: reason}}
}

// Authenticate implements auth.Authenticator.
func (f *Fixed) Authenticate(ctx context.Context, h http.Header) auth.Decision {
	f.calls.Add(1)
	return f.Decision
}

// Calls reports how many decisions were requested.
func (f *Fixed) Calls() int64 { return f.calls.Load() }

var _ auth.Authenticator = (*Fixed)(nil)
