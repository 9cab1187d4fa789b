package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ggoodman/govdata-mcp/auth"
	"github.com/ggoodman/govdata-mcp/config"
	"github.com/ggoodman/govdata-mcp/internal/jwks"
	"github.com/ggoodman/govdata-mcp/internal/jwtauth"
	"github.com/ggoodman/govdata-mcp/internal/telemetry"
	"github.com/ggoodman/govdata-mcp/storage"
	redisstore "github.com/ggoodman/govdata-mcp/storage/redis"
)

const redisPingTimeout = 5 * time.Second

// buildGate assembles the credential store, the bearer backends and the
// key cache behind them. The returned func releases the cache store.
func buildGate(ctx context.Context, cfg *config.Config, log *slog.Logger, metrics *telemetry.Metrics) (*auth.Gate, func(), error) {
	creds := auth.NewCredentialStore(cfg.APIKeys(), auth.LocalSecret{
		Key:       cfg.Auth.JWTSecretKey,
		Algorithm: cfg.Auth.JWTAlgorithm,
	})

	vcfg := auth.VerifierConfig{
		AllowLocalFallback: cfg.Auth.AllowLocalJWTFallback,
		Logger:             log,
	}
	if cfg.Auth.JWTSecretKey != "" {
		local, err := jwtauth.NewLocal(cfg.Auth.JWTSecretKey, cfg.Auth.JWTAlgorithm)
		if err != nil {
			return nil, nil, fmt.Errorf("local JWT verifier: %w", err)
		}
		vcfg.Local = local
	}

	release := func() {}
	if cfg.OIDC.Enabled {
		store, closeStore, err := buildKeyStore(ctx, cfg, log)
		if err != nil {
			return nil, nil, err
		}
		release = closeStore

		cache, err := jwks.New(jwks.Config{
			KeySetURL: cfg.OIDC.JWKSURL,
			KeyTTL:    cfg.KeyTTL(),
			Store:     store,
			Logger:    log,
			Metrics:   metrics,
		})
		if err != nil {
			release()
			return nil, nil, fmt.Errorf("jwks cache: %w", err)
		}
		oidcVerifier, err := jwtauth.NewOIDC(jwtauth.Config{
			Issuer:   cfg.OIDC.IssuerURL,
			Audience: cfg.OIDC.Audience,
		}, cache)
		if err != nil {
			release()
			return nil, nil, fmt.Errorf("oidc verifier: %w", err)
		}
		vcfg.OIDC = oidcVerifier
	}

	gate := auth.NewGate(creds, auth.NewTokenVerifier(vcfg),
		auth.WithGateLogger(log),
		auth.WithGateMetrics(metrics),
	)
	return gate, release, nil
}

// buildKeyStore returns the shared redis store when REDIS_ADDR is set. A nil
// store lets the cache keep entries in process.
func buildKeyStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.Store, func(), error) {
	if cfg.Cache.RedisAddr == "" {
		return nil, func() {}, nil
	}
	client := goredis.NewClient(&goredis.Options{Addr: cfg.Cache.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis %s: %w", cfg.Cache.RedisAddr, err)
	}
	store, err := redisstore.New(redisstore.Config{Client: client, KeyPrefix: cfg.Cache.KeyPrefix})
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	log.Info("jwks.store.redis", slog.String("addr", cfg.Cache.RedisAddr))
	return store, func() { _ = store.Close() }, nil
}
