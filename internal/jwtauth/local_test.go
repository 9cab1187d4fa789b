package jwtauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestLocalVerifier(t *testing.T) {
	v, err := NewLocal("s3cret", "HS256")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	good, err := SignLocal("s3cret", "HS256", jwt.MapClaims{"sub": "svc", "exp": time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := v.Verify(ctx, good)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject() != "svc" {
		t.Fatalf("sub = %q", claims.Subject())
	}

	// Tokens without exp are accepted; exp is enforced only when present.
	noExp, _ := SignLocal("s3cret", "HS256", jwt.MapClaims{"sub": "svc"})
	if _, err := v.Verify(ctx, noExp); err != nil {
		t.Fatalf("verify without exp: %v", err)
	}

	bad := map[string]string{}
	bad["expired"], _ = SignLocal("s3cret", "HS256", jwt.MapClaims{"sub": "svc", "exp": time.Now().Add(-time.Minute).Unix()})
	bad["wrong secret"], _ = SignLocal("other", "HS256", jwt.MapClaims{"sub": "svc"})
	bad["wrong algorithm"], _ = SignLocal("s3cret", "HS512", jwt.MapClaims{"sub": "svc"})
	bad["empty"] = ""

	for name, tok := range bad {
		t.Run(name, func(t *testing.T) {
			if _, err := v.Verify(ctx, tok); !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}
		})
	}
}

func TestNewLocalValidation(t *testing.T) {
	if _, err := NewLocal("", "HS256"); err == nil {
		t.Fatal("expected error for empty secret")
	}
	if _, err := NewLocal("s", "RS256"); err == nil {
		t.Fatal("expected error for asymmetric algorithm")
	}
	if _, err := SignLocal("s", "none", jwt.MapClaims{}); err == nil {
		t.Fatal("expected error for unsupported algorithm")
	}
}
