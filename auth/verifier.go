package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// VerifierConfig wires the bearer backends into a TokenVerifier.
type VerifierConfig struct {
	// OIDC verifies provider-issued tokens. Nil disables OIDC.
	OIDC BearerVerifier
	// Local verifies tokens signed with the local secret. Nil disables
	// local verification.
	Local BearerVerifier
	// AllowLocalFallback lets Local run after an OIDC failure.
	AllowLocalFallback bool
	Logger             *slog.Logger
}

// TokenVerifier applies the bearer backend priority and fallback policy.
type TokenVerifier struct {
	oidc          BearerVerifier
	local         BearerVerifier
	allowFallback bool
	log           *slog.Logger
}

// NewTokenVerifier constructs a TokenVerifier.
func NewTokenVerifier(cfg VerifierConfig) *TokenVerifier {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &TokenVerifier{
		oidc:          cfg.OIDC,
		local:         cfg.Local,
		allowFallback: cfg.AllowLocalFallback,
		log:           log,
	}
}

// OIDCEnabled reports whether an OIDC backend is configured.
func (v *TokenVerifier) OIDCEnabled() bool { return v.oidc != nil }

// Verify returns the token's claims or an error wrapping ErrUnauthorized.
func (v *TokenVerifier) Verify(ctx context.Context, tok string) (Claims, error) {
	var oidcErr error
	if v.oidc != nil {
		claims, err := v.oidc.Verify(ctx, tok)
		if err == nil && claims != nil {
			return claims, nil
		}
		oidcErr = err
		v.log.DebugContext(ctx, "auth.oidc.fail", slog.String("err", errString(err)))
		if !v.allowFallback {
			return nil, fmt.Errorf("%w: oidc verification failed: %v", ErrUnauthorized, err)
		}
	}

	if v.local == nil {
		return nil, errors.Join(ErrUnauthorized, oidcErr)
	}
	claims, err := v.local.Verify(ctx, tok)
	if err != nil {
		v.log.DebugContext(ctx, "auth.local.fail", slog.String("err", err.Error()))
		return nil, errors.Join(fmt.Errorf("%w: local verification failed: %v", ErrUnauthorized, err), oidcErr)
	}
	return claims, nil
}

func errString(err error) string {
	if err == nil {
		return "no claims"
	}
	return err.Error()
}
