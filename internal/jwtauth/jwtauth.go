// Package jwtauth verifies bearer tokens, either RS256 tokens issued by an
// OIDC provider or tokens signed locally with a shared HMAC secret.
package jwtauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"

	"github.com/ggoodman/govdata-mcp/internal/jwks"
)

// ErrUnauthorized indicates that the token failed validation and the request
// should be treated as unauthenticated. Every error returned by a verifier
// wraps it.
var ErrUnauthorized = errors.New("jwtauth: unauthorized")

var (
	// ErrMalformedToken is returned when the token header cannot be read.
	ErrMalformedToken = fmt.Errorf("%w: malformed token", ErrUnauthorized)
	// ErrKeyNotFound is returned when no published key matches the token's
	// kid, even after one forced refresh of the key set.
	ErrKeyNotFound = fmt.Errorf("%w: signing key not found", ErrUnauthorized)
	// ErrIncompleteConfig is returned for every token when the verifier has
	// no issuer or no audience to check against.
	ErrIncompleteConfig = fmt.Errorf("%w: issuer and audience must be configured", ErrUnauthorized)
)

// oidcAlgorithm is the only algorithm accepted from the OIDC provider.
const oidcAlgorithm = "RS256"

// Claims is the decoded claim set of a verified token.
type Claims map[string]any

// Subject returns the "sub" claim, if any.
func (c Claims) Subject() string {
	s, _ := c["sub"].(string)
	return s
}

// KeySource supplies the provider's signing keys. *jwks.Cache satisfies it.
type KeySource interface {
	LoadKeys(ctx context.Context, issuer string) (*jose.JSONWebKeySet, error)
	Invalidate(ctx context.Context)
}

// Config controls OIDC token validation.
type Config struct {
	// Issuer must match the token's iss claim and locates the discovery
	// document.
	Issuer string
	// Audience must be present in the token's aud claim.
	Audience string
	// Leeway tolerates clock skew on exp/nbf/iat.
	Leeway time.Duration
}

// OIDCVerifier validates RS256 tokens against the provider's published keys.
type OIDCVerifier struct {
	cfg  Config
	keys KeySource
}

// NewOIDC constructs a verifier. Issuer and audience may be empty so the
// process can start and report the gap, but such a verifier rejects every
// token with ErrIncompleteConfig.
func NewOIDC(cfg Config, keys KeySource) (*OIDCVerifier, error) {
	if keys == nil {
		return nil, errors.New("key source is required")
	}
	return &OIDCVerifier{cfg: cfg, keys: keys}, nil
}

// Verify checks tok and returns its claims. A kid missing from the cached
// key set triggers exactly one invalidation and reload before giving up.
// Panics raised while verifying are converted into ErrUnauthorized.
func (v *OIDCVerifier) Verify(ctx context.Context, tok string) (claims Claims, err error) {
	defer func() {
		if r := recover(); r != nil {
			claims = nil
			err = fmt.Errorf("%w: verification panicked: %v", ErrUnauthorized, r)
		}
	}()

	if v.cfg.Issuer == "" || v.cfg.Audience == "" {
		return nil, ErrIncompleteConfig
	}

	kid, err := UnverifiedKeyID(tok)
	if err != nil {
		return nil, err
	}

	set, err := v.keys.LoadKeys(ctx, v.cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("%w: loading keys: %v", ErrUnauthorized, err)
	}
	key := jwks.FindKey(set, kid)
	if key == nil {
		v.keys.Invalidate(ctx)
		set, err = v.keys.LoadKeys(ctx, v.cfg.Issuer)
		if err != nil {
			return nil, fmt.Errorf("%w: reloading keys: %v", ErrUnauthorized, err)
		}
		if key = jwks.FindKey(set, kid); key == nil {
			return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
		}
	}

	kf, err := keyfuncFor(key)
	if err != nil {
		return nil, fmt.Errorf("%w: kid %q: %v", ErrUnauthorized, kid, err)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{oidcAlgorithm}),
		jwt.WithLeeway(v.cfg.Leeway),
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithAudience(v.cfg.Audience),
	)
	// at_hash is not inspected: access tokens rarely carry it.
	parsed, err := parser.Parse(tok, kf.Keyfunc)
	if err != nil {
		return nil, fmt.Errorf("%w: token parse/verify failed: %v", ErrUnauthorized, err)
	}
	return toClaims(parsed)
}

// keyfuncFor serves key to the parser. keyfunc checks that the token's kid
// and alg agree with the published key and that the key is meant for
// signatures.
func keyfuncFor(key *jose.JSONWebKey) (keyfunc.Keyfunc, error) {
	raw, err := json.Marshal(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{*key}})
	if err != nil {
		return nil, fmt.Errorf("encoding key: %w", err)
	}
	return keyfunc.NewJWKSetJSON(raw)
}

// UnverifiedKeyID reads the kid header without checking the signature.
func UnverifiedKeyID(tok string) (string, error) {
	if tok == "" {
		return "", fmt.Errorf("%w: empty token", ErrMalformedToken)
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(tok, jwt.MapClaims{})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	kid, _ := parsed.Header["kid"].(string)
	if kid == "" {
		return "", fmt.Errorf("%w: missing kid header", ErrMalformedToken)
	}
	return kid, nil
}

func toClaims(parsed *jwt.Token) (Claims, error) {
	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: invalid claims type", ErrUnauthorized)
	}
	return Claims(mc), nil
}
