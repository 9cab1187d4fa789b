package auth

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ggoodman/govdata-mcp/internal/jwks"
	"github.com/ggoodman/govdata-mcp/internal/jwks/jwkstest"
	"github.com/ggoodman/govdata-mcp/internal/jwtauth"
)

const (
	testKey    = "dev-key-12345"
	testSecret = "change-this-in-production"
	testAud    = "govdata-mcp"
)

func headers(kv ...string) http.Header {
	h := http.Header{}
	for i := 0; i+1 < len(kv); i += 2 {
		h.Set(kv[i], kv[i+1])
	}
	return h
}

func localToken(t *testing.T, secret string, exp time.Duration) string {
	t.Helper()
	tok, err := jwtauth.SignLocal(secret, "HS256", jwt.MapClaims{"sub": "svc", "exp": time.Now().Add(exp).Unix()})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func localGate(t *testing.T) *Gate {
	t.Helper()
	local, err := jwtauth.NewLocal(testSecret, "HS256")
	if err != nil {
		t.Fatalf("local: %v", err)
	}
	creds := NewCredentialStore([]string{testKey, " second-key ", ""}, LocalSecret{Key: testSecret, Algorithm: "HS256"})
	return NewGate(creds, NewTokenVerifier(VerifierConfig{Local: local}))
}

func TestGate_APIKeyWinsRegardlessOfBearer(t *testing.T) {
	g := localGate(t)
	ctx := context.Background()

	for _, bearer := range []string{"", "Bearer garbage", "Bearer " + localToken(t, "wrong", time.Hour)} {
		h := headers("X-API-Key", testKey)
		if bearer != "" {
			h.Set("Authorization", bearer)
		}
		d := g.Authenticate(ctx, h)
		if !d.Authenticated || d.Mode != ModeAPIKey {
			t.Fatalf("bearer %q: expected api key auth, got %+v", bearer, d)
		}
	}

	if d := g.Authenticate(ctx, headers("X-API-Key", "second-key")); !d.Authenticated {
		t.Fatal("trimmed key should be accepted")
	}
}

func TestGate_LocalBearer(t *testing.T) {
	g := localGate(t)
	ctx := context.Background()

	d := g.Authenticate(ctx, headers("Authorization", "Bearer "+localToken(t, testSecret, time.Hour)))
	if !d.Authenticated || d.Mode != ModeBearer {
		t.Fatalf("expected bearer auth, got %+v", d)
	}
	if d.Claims.Subject() != "svc" {
		t.Fatalf("claims not propagated: %v", d.Claims)
	}

	// Scheme matching is case-insensitive.
	d = g.Authenticate(ctx, headers("Authorization", "BEARER "+localToken(t, testSecret, time.Hour)))
	if !d.Authenticated {
		t.Fatal("expected case-insensitive bearer scheme")
	}

	for name, h := range map[string]http.Header{
		"expired":    headers("Authorization", "Bearer "+localToken(t, testSecret, -time.Hour)),
		"mis-signed": headers("Authorization", "Bearer "+localToken(t, "other", time.Hour)),
	} {
		if d := g.Authenticate(ctx, h); d.Authenticated || d.Reason != ReasonInvalidBearer {
			t.Fatalf("%s: expected invalid bearer, got %+v", name, d)
		}
	}
}

func TestGate_Reasons(t *testing.T) {
	g := localGate(t)
	ctx := context.Background()

	cases := []struct {
		name string
		h    http.Header
		want Reason
	}{
		{"none", headers(), ReasonMissing},
		{"basic auth is not bearer", headers("Authorization", "Basic Zm9vOmJhcg=="), ReasonMissing},
		{"bad key", headers("X-API-Key", "nope"), ReasonInvalidAPIKey},
		{"empty key", headers("X-API-Key", ""), ReasonInvalidAPIKey},
		{"bad key and bearer", headers("X-API-Key", "nope", "Authorization", "Bearer x"), ReasonInvalidBearer},
		{"bad bearer", headers("Authorization", "Bearer x"), ReasonInvalidBearer},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := g.Authenticate(ctx, tc.h)
			if d.Authenticated {
				t.Fatalf("expected rejection, got %+v", d)
			}
			if d.Reason != tc.want {
				t.Fatalf("reason = %q, want %q", d.Reason, tc.want)
			}
		})
	}
}

func TestGate_InvalidKeyFallsThroughToValidBearer(t *testing.T) {
	g := localGate(t)
	h := headers("X-API-Key", "nope", "Authorization", "Bearer "+localToken(t, testSecret, time.Hour))
	if d := g.Authenticate(context.Background(), h); !d.Authenticated || d.Mode != ModeBearer {
		t.Fatalf("expected bearer auth, got %+v", d)
	}
}

func oidcBackend(t *testing.T, iss *jwkstest.Issuer) BearerVerifier {
	t.Helper()
	cache, err := jwks.New(jwks.Config{HTTPClient: iss.Client(), KeyTTL: time.Hour})
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	v, err := jwtauth.NewOIDC(jwtauth.Config{Issuer: iss.URL, Audience: testAud}, cache)
	if err != nil {
		t.Fatalf("oidc: %v", err)
	}
	return v
}

func oidcToken(t *testing.T, iss *jwkstest.Issuer, kid string) string {
	t.Helper()
	pk := iss.AddKey(t, kid)
	return jwkstest.SignRS256(t, pk, kid, jwt.MapClaims{
		"iss": iss.URL,
		"aud": testAud,
		"sub": "agent",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
}

func TestTokenVerifier_OIDCWithoutFallbackRejectsLocalTokens(t *testing.T) {
	iss := jwkstest.NewIssuer(t)
	local, _ := jwtauth.NewLocal(testSecret, "HS256")
	v := NewTokenVerifier(VerifierConfig{OIDC: oidcBackend(t, iss), Local: local})
	ctx := context.Background()

	if _, err := v.Verify(ctx, oidcToken(t, iss, "k1")); err != nil {
		t.Fatalf("oidc token: %v", err)
	}
	_, err := v.Verify(ctx, localToken(t, testSecret, time.Hour))
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("local token must not authenticate without fallback, got %v", err)
	}
}

func TestTokenVerifier_OIDCWithFallback(t *testing.T) {
	iss := jwkstest.NewIssuer(t)
	local, _ := jwtauth.NewLocal(testSecret, "HS256")
	v := NewTokenVerifier(VerifierConfig{OIDC: oidcBackend(t, iss), Local: local, AllowLocalFallback: true})
	ctx := context.Background()

	if _, err := v.Verify(ctx, oidcToken(t, iss, "k1")); err != nil {
		t.Fatalf("oidc token: %v", err)
	}
	if _, err := v.Verify(ctx, localToken(t, testSecret, time.Hour)); err != nil {
		t.Fatalf("local token with fallback: %v", err)
	}
	if _, err := v.Verify(ctx, localToken(t, "other", time.Hour)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("mis-signed local token: %v", err)
	}
}

func TestGate_OIDCUnknownKidFailsWithoutPanic(t *testing.T) {
	iss := jwkstest.NewIssuer(t)
	iss.AddKey(t, "published")
	stray := jwkstest.GenerateKey(t)
	tok := jwkstest.SignRS256(t, stray, "unpublished", jwt.MapClaims{"iss": iss.URL, "aud": testAud, "sub": "x"})

	g := NewGate(NewCredentialStore(nil, LocalSecret{}), NewTokenVerifier(VerifierConfig{OIDC: oidcBackend(t, iss)}))
	d := g.Authenticate(context.Background(), headers("Authorization", "Bearer "+tok))
	if d.Authenticated {
		t.Fatal("expected rejection for unknown kid")
	}
	if got := iss.KeySetHits(); got != 2 {
		t.Fatalf("expected exactly one forced refresh, got %d key set fetches", got)
	}
}

func TestCredentialStore(t *testing.T) {
	s := NewCredentialStore(ParseAPIKeys(" a, b ,,a"), LocalSecret{Key: "k", Algorithm: "HS256"})
	keys := s.ValidAPIKeys()
	if len(keys) != 2 {
		t.Fatalf("expected 2 distinct keys, got %v", keys)
	}
	if !s.IsValidAPIKey("a") || !s.IsValidAPIKey("b") || s.IsValidAPIKey("c") || s.IsValidAPIKey("") {
		t.Fatal("unexpected key membership")
	}
	if s.LocalSecret().Algorithm != "HS256" {
		t.Fatalf("local secret = %+v", s.LocalSecret())
	}
}

func TestMaskSecret(t *testing.T) {
	cases := map[string]string{
		"":              "",
		"abc":           "***",
		"abcdef":        "***",
		"dev-key-12345": "dev-…45",
	}
	for in, want := range cases {
		if got := MaskSecret(in); got != want {
			t.Fatalf("MaskSecret(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUnauthorizedChallenge(t *testing.T) {
	c := UnauthorizedChallenge()
	if c.Status != http.StatusUnauthorized || c.WWWAuthenticate != "Bearer" || c.Detail != UnauthorizedDetail {
		t.Fatalf("unexpected challenge: %+v", c)
	}
}
