package jwtauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LocalAlgorithms lists the symmetric algorithms accepted for locally signed
// tokens.
var LocalAlgorithms = []string{"HS256", "HS384", "HS512"}

// LocalVerifier validates tokens signed with the gateway's shared secret.
type LocalVerifier struct {
	secret []byte
	alg    string
	leeway time.Duration
}

// NewLocal constructs a verifier for secret and alg.
func NewLocal(secret, alg string) (*LocalVerifier, error) {
	if secret == "" {
		return nil, errors.New("secret is required")
	}
	if !isLocalAlgorithm(alg) {
		return nil, fmt.Errorf("unsupported local algorithm %q", alg)
	}
	return &LocalVerifier{secret: []byte(secret), alg: alg}, nil
}

// Algorithm reports the configured signing algorithm.
func (v *LocalVerifier) Algorithm() string { return v.alg }

// Verify checks tok's signature and time claims.
func (v *LocalVerifier) Verify(ctx context.Context, tok string) (Claims, error) {
	if tok == "" {
		return nil, fmt.Errorf("%w: empty token", ErrMalformedToken)
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{v.alg}),
		jwt.WithLeeway(v.leeway),
	)
	parsed, err := parser.Parse(tok, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: token parse/verify failed: %v", ErrUnauthorized, err)
	}
	return toClaims(parsed)
}

// SignLocal issues a token for claims using secret and alg. It backs the
// token minting command and tests.
func SignLocal(secret, alg string, claims jwt.MapClaims) (string, error) {
	if !isLocalAlgorithm(alg) {
		return "", fmt.Errorf("unsupported local algorithm %q", alg)
	}
	return jwt.NewWithClaims(jwt.GetSigningMethod(alg), claims).SignedString([]byte(secret))
}

func isLocalAlgorithm(alg string) bool {
	for _, a := range LocalAlgorithms {
		if a == alg {
			return true
		}
	}
	return false
}
