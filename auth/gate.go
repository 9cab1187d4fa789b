package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ggoodman/govdata-mcp/internal/telemetry"
)

const (
	headerAPIKey        = "X-API-Key"
	headerAuthorization = "Authorization"
	bearerPrefix        = "bearer "
)

// Gate is the single authentication decision point.
type Gate struct {
	creds   *CredentialStore
	tokens  BearerVerifier
	log     *slog.Logger
	metrics *telemetry.Metrics
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithGateLogger sets the logger used for decision diagnostics.
func WithGateLogger(l *slog.Logger) GateOption {
	return func(g *Gate) { g.log = l }
}

// WithGateMetrics records every decision.
func WithGateMetrics(m *telemetry.Metrics) GateOption {
	return func(g *Gate) { g.metrics = m }
}

// NewGate builds a Gate. tokens may be nil, in which case bearer tokens are
// never accepted.
func NewGate(creds *CredentialStore, tokens BearerVerifier, opts ...GateOption) *Gate {
	g := &Gate{creds: creds, tokens: tokens, log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authenticate checks the API key first and the bearer token second. A
// valid key wins regardless of any bearer token sent alongside it.
func (g *Gate) Authenticate(ctx context.Context, h http.Header) Decision {
	d := g.decide(ctx, h)
	g.metrics.RecordAuthDecision(ctx, string(d.Mode), d.Authenticated, string(d.Reason))
	return d
}

func (g *Gate) decide(ctx context.Context, h http.Header) Decision {
	p := InspectHeaders(h)

	if p.APIKeyPresent && g.creds != nil && g.creds.IsValidAPIKey(h.Get(headerAPIKey)) {
		return Decision{Authenticated: true, Mode: ModeAPIKey}
	}

	if p.BearerPresent && g.tokens != nil {
		claims, err := g.tokens.Verify(ctx, bearerToken(h))
		if err == nil && claims != nil {
			return Decision{Authenticated: true, Mode: ModeBearer, Claims: claims}
		}
		g.log.DebugContext(ctx, "auth.bearer.rejected", slog.String("err", errString(err)))
	}

	return Decision{Mode: ModeNone, Reason: p.failureReason()}
}

// Presence summarizes which credential headers a request carried, with
// masked values safe for logs.
type Presence struct {
	APIKeyPresent bool
	BearerPresent bool
	MaskedAPIKey  string
	MaskedBearer  string
}

// InspectHeaders reports credential presence without validating anything.
func InspectHeaders(h http.Header) Presence {
	var p Presence
	if vals, ok := h[http.CanonicalHeaderKey(headerAPIKey)]; ok && len(vals) > 0 {
		p.APIKeyPresent = true
		p.MaskedAPIKey = MaskSecret(vals[0])
	}
	if authz := h.Get(headerAuthorization); len(authz) >= len(bearerPrefix) && strings.EqualFold(authz[:len(bearerPrefix)], bearerPrefix) {
		p.BearerPresent = true
		p.MaskedBearer = MaskSecret(authz[len(bearerPrefix):])
	}
	return p
}

func (p Presence) failureReason() Reason {
	switch {
	case !p.APIKeyPresent && !p.BearerPresent:
		return ReasonMissing
	case p.APIKeyPresent && !p.BearerPresent:
		return ReasonInvalidAPIKey
	default:
		return ReasonInvalidBearer
	}
}

func bearerToken(h http.Header) string {
	return strings.TrimSpace(h.Get(headerAuthorization)[len(bearerPrefix):])
}

// MaskSecret keeps the first four and last two characters of v.
func MaskSecret(v string) string {
	switch {
	case v == "":
		return ""
	case len(v) <= 6:
		return "***"
	default:
		return v[:4] + "…" + v[len(v)-2:]
	}
}
