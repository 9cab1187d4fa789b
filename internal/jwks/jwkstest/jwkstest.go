// Package jwkstest provides an in-process OIDC issuer for tests that need
// discovery documents, key sets and RS256-signed tokens.
package jwkstest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

// Issuer serves /.well-known/openid-configuration and /keys and counts
// requests to each.
type Issuer struct {
	URL string

	srv           *httptest.Server
	mu            sync.Mutex
	keys          []jose.JSONWebKey
	discoveryHits atomic.Int64
	keySetHits    atomic.Int64
}

// NewIssuer starts an issuer that is closed when the test ends.
func NewIssuer(t testing.TB) *Issuer {
	t.Helper()
	iss := &Issuer{}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		iss.discoveryHits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                                iss.URL,
			"jwks_uri":                              iss.KeySetURL(),
			"authorization_endpoint":                iss.URL + "/oauth2/auth",
			"token_endpoint":                        iss.URL + "/oauth2/token",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) {
		iss.keySetHits.Add(1)
		iss.mu.Lock()
		set := jose.JSONWebKeySet{Keys: append([]jose.JSONWebKey(nil), iss.keys...)}
		iss.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	})

	iss.srv = httptest.NewServer(mux)
	iss.URL = iss.srv.URL
	t.Cleanup(iss.srv.Close)
	return iss
}

// KeySetURL is the location advertised as jwks_uri.
func (i *Issuer) KeySetURL() string { return i.URL + "/keys" }

// Client returns an HTTP client that trusts the issuer.
func (i *Issuer) Client() *http.Client { return i.srv.Client() }

// DiscoveryHits reports how many discovery requests were served.
func (i *Issuer) DiscoveryHits() int64 { return i.discoveryHits.Load() }

// KeySetHits reports how many key set requests were served.
func (i *Issuer) KeySetHits() int64 { return i.keySetHits.Load() }

// AddKey generates an RSA key, publishes its public half under kid and
// returns the private key.
func (i *Issuer) AddKey(t testing.TB, kid string) *rsa.PrivateKey {
	t.Helper()
	pk := GenerateKey(t)
	i.mu.Lock()
	i.keys = append(i.keys, jose.JSONWebKey{Key: &pk.PublicKey, KeyID: kid, Algorithm: "RS256", Use: "sig"})
	i.mu.Unlock()
	return pk
}

// RemoveKey unpublishes kid.
func (i *Issuer) RemoveKey(kid string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	kept := i.keys[:0]
	for _, k := range i.keys {
		if k.KeyID != kid {
			kept = append(kept, k)
		}
	}
	i.keys = kept
}

// GenerateKey returns a fresh 2048-bit RSA key.
func GenerateKey(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	return pk
}

// SignRS256 signs claims with pk and sets the kid header.
func SignRS256(t testing.TB, pk *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		tok.Header["kid"] = kid
	}
	s, err := tok.SignedString(pk)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}
