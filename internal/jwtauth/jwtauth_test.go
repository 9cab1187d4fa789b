package jwtauth

import (
	"context"
	"errors"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"

	"github.com/ggoodman/govdata-mcp/internal/jwks"
	"github.com/ggoodman/govdata-mcp/internal/jwks/jwkstest"
)

const testAudience = "https://govdata.example.com/mcp"

func newVerifier(t *testing.T, iss *jwkstest.Issuer) *OIDCVerifier {
	t.Helper()
	cache, err := jwks.New(jwks.Config{HTTPClient: iss.Client(), KeyTTL: time.Hour})
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	v, err := NewOIDC(Config{Issuer: iss.URL, Audience: testAudience}, cache)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	return v
}

func validClaims(issuer string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss": issuer,
		"sub": "user-123",
		"aud": testAudience,
		"exp": now.Add(time.Hour).Unix(),
		"iat": now.Unix(),
	}
}

func TestOIDCVerifier_HappyPath(t *testing.T) {
	iss := jwkstest.NewIssuer(t)
	pk := iss.AddKey(t, "k1")
	v := newVerifier(t, iss)

	tok := jwkstest.SignRS256(t, pk, "k1", validClaims(iss.URL))
	claims, err := v.Verify(context.Background(), tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject() != "user-123" {
		t.Fatalf("sub = %q", claims.Subject())
	}
}

func TestOIDCVerifier_AudienceArray(t *testing.T) {
	iss := jwkstest.NewIssuer(t)
	pk := iss.AddKey(t, "k1")
	v := newVerifier(t, iss)

	c := validClaims(iss.URL)
	c["aud"] = []string{"other", testAudience}
	if _, err := v.Verify(context.Background(), jwkstest.SignRS256(t, pk, "k1", c)); err != nil {
		t.Fatalf("expected aud array containing audience to verify: %v", err)
	}
}

func TestOIDCVerifier_Rejects(t *testing.T) {
	iss := jwkstest.NewIssuer(t)
	pk := iss.AddKey(t, "k1")
	stranger := jwkstest.GenerateKey(t)
	v := newVerifier(t, iss)

	cases := []struct {
		name string
		tok  func() string
	}{
		{"wrong audience", func() string {
			c := validClaims(iss.URL)
			c["aud"] = "someone-else"
			return jwkstest.SignRS256(t, pk, "k1", c)
		}},
		{"wrong issuer", func() string {
			return jwkstest.SignRS256(t, pk, "k1", validClaims("https://evil.example.com"))
		}},
		{"expired", func() string {
			c := validClaims(iss.URL)
			c["exp"] = time.Now().Add(-time.Hour).Unix()
			return jwkstest.SignRS256(t, pk, "k1", c)
		}},
		{"bad signature", func() string {
			return jwkstest.SignRS256(t, stranger, "k1", validClaims(iss.URL))
		}},
		{"hs256 with published kid", func() string {
			tok := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims(iss.URL))
			tok.Header["kid"] = "k1"
			s, _ := tok.SignedString([]byte("secret"))
			return s
		}},
		{"missing kid", func() string {
			return jwkstest.SignRS256(t, pk, "", validClaims(iss.URL))
		}},
		{"garbage", func() string { return "not-a-jwt" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			claims, err := v.Verify(context.Background(), tc.tok())
			if !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized, got claims=%v err=%v", claims, err)
			}
		})
	}
}

func TestOIDCVerifier_UnknownKidRefreshesOnce(t *testing.T) {
	iss := jwkstest.NewIssuer(t)
	iss.AddKey(t, "k1")
	stray := jwkstest.GenerateKey(t)
	v := newVerifier(t, iss)
	ctx := context.Background()

	tok := jwkstest.SignRS256(t, stray, "k-unknown", validClaims(iss.URL))
	_, err := v.Verify(ctx, tok)
	if !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
	if got := iss.KeySetHits(); got != 2 {
		t.Fatalf("expected initial fetch plus one forced refresh, got %d fetches", got)
	}
}

func TestOIDCVerifier_RotatedKeyPickedUpByRefresh(t *testing.T) {
	iss := jwkstest.NewIssuer(t)
	pk1 := iss.AddKey(t, "k1")
	v := newVerifier(t, iss)
	ctx := context.Background()

	if _, err := v.Verify(ctx, jwkstest.SignRS256(t, pk1, "k1", validClaims(iss.URL))); err != nil {
		t.Fatalf("verify k1: %v", err)
	}

	pk2 := iss.AddKey(t, "k2")
	if _, err := v.Verify(ctx, jwkstest.SignRS256(t, pk2, "k2", validClaims(iss.URL))); err != nil {
		t.Fatalf("verify rotated k2: %v", err)
	}
	if got := iss.KeySetHits(); got != 2 {
		t.Fatalf("expected one refresh for rotation, got %d fetches", got)
	}
}

type panickingSource struct{}

func (panickingSource) LoadKeys(context.Context, string) (*jose.JSONWebKeySet, error) {
	panic("boom")
}
func (panickingSource) Invalidate(context.Context) {}

func TestOIDCVerifier_RecoversPanics(t *testing.T) {
	v, err := NewOIDC(Config{Issuer: "https://issuer", Audience: testAudience}, panickingSource{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	pk := jwkstest.GenerateKey(t)
	_, err = v.Verify(context.Background(), jwkstest.SignRS256(t, pk, "k", validClaims("https://issuer")))
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized from panic, got %v", err)
	}
}

func TestOIDCVerifier_RequiresIssuerAndAudience(t *testing.T) {
	iss := jwkstest.NewIssuer(t)
	pk := iss.AddKey(t, "k1")
	cache, err := jwks.New(jwks.Config{HTTPClient: iss.Client(), KeyTTL: time.Hour})
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	tok := jwkstest.SignRS256(t, pk, "k1", validClaims(iss.URL))

	for _, cfg := range []Config{{Issuer: iss.URL}, {Audience: testAudience}, {}} {
		v, err := NewOIDC(cfg, cache)
		if err != nil {
			t.Fatalf("new %+v: %v", cfg, err)
		}
		if _, err := v.Verify(context.Background(), tok); !errors.Is(err, ErrIncompleteConfig) {
			t.Fatalf("config %+v: expected ErrIncompleteConfig, got %v", cfg, err)
		}
	}
	if got := iss.KeySetHits(); got != 0 {
		t.Fatalf("incomplete config still fetched keys %d times", got)
	}
}

func TestKeyfuncForServesPublishedKey(t *testing.T) {
	pk := jwkstest.GenerateKey(t)
	key := jose.JSONWebKey{Key: &pk.PublicKey, KeyID: "k1", Algorithm: "RS256", Use: "sig"}
	kf, err := keyfuncFor(&key)
	if err != nil {
		t.Fatalf("keyfuncFor: %v", err)
	}
	tok, err := jwt.Parse(jwkstest.SignRS256(t, pk, "k1", jwt.MapClaims{"sub": "x"}), kf.Keyfunc)
	if err != nil || !tok.Valid {
		t.Fatalf("parse with published key: %v", err)
	}
}

func TestOIDCVerifier_WrongSignerUnderPublishedKid(t *testing.T) {
	iss := jwkstest.NewIssuer(t)
	iss.AddKey(t, "k1")
	v := newVerifier(t, iss)

	impostor := jwkstest.GenerateKey(t)
	_, err := v.Verify(context.Background(), jwkstest.SignRS256(t, impostor, "k1", validClaims(iss.URL)))
	if !errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected a signature failure, got %v", err)
	}
}

func TestUnverifiedKeyID(t *testing.T) {
	pk := jwkstest.GenerateKey(t)
	kid, err := UnverifiedKeyID(jwkstest.SignRS256(t, pk, "abc", jwt.MapClaims{"sub": "x"}))
	if err != nil || kid != "abc" {
		t.Fatalf("kid=%q err=%v", kid, err)
	}
	if _, err := UnverifiedKeyID("a.b"); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("expected ErrMalformedToken, got %v", err)
	}
}
