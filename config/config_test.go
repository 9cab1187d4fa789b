package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/govdata")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Addr() != "0.0.0.0:8080" {
		t.Fatalf("addr = %q", cfg.Addr())
	}
	if keys := cfg.APIKeys(); len(keys) != 1 || keys[0] != "dev-key-12345" {
		t.Fatalf("api keys = %v", keys)
	}
	if cfg.Auth.JWTAlgorithm != "HS256" || cfg.Auth.JWTSecretKey != "change-this-in-production" {
		t.Fatalf("auth defaults = %+v", cfg.Auth)
	}
	if cfg.OIDC.Enabled || cfg.Auth.AllowLocalJWTFallback {
		t.Fatalf("oidc and fallback must default off: %+v", cfg)
	}
	if cfg.KeyTTL() != time.Hour {
		t.Fatalf("key ttl = %s", cfg.KeyTTL())
	}
	if cfg.QueryTimeout() != 300*time.Second {
		t.Fatalf("query timeout = %s", cfg.QueryTimeout())
	}
	if cfg.TokenTTL() != 30*time.Minute {
		t.Fatalf("token ttl = %s", cfg.TokenTTL())
	}
	if cfg.Transport != TransportAuto {
		t.Fatalf("transport = %q", cfg.Transport)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("API_KEYS", " a , b,, ")
	t.Setenv("OIDC_ENABLED", "true")
	t.Setenv("OIDC_ISSUER_URL", "https://issuer.example.com")
	t.Setenv("OIDC_AUDIENCE", "govdata")
	t.Setenv("OIDC_CACHE_TTL_SECONDS", "120")
	t.Setenv("AUTH_ALLOW_LOCAL_JWT_FALLBACK", "true")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
	if keys := cfg.APIKeys(); len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Fatalf("api keys = %v", keys)
	}
	if !cfg.OIDC.Enabled || cfg.KeyTTL() != 2*time.Minute {
		t.Fatalf("oidc = %+v", cfg.OIDC)
	}
	if lvl, _ := ParseLevel(cfg.LogLevel); lvl != slog.LevelDebug {
		t.Fatalf("level = %v", lvl)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"port":      func(c *Config) { c.Server.Port = 0 },
		"level":     func(c *Config) { c.LogLevel = "LOUD" },
		"algorithm": func(c *Config) { c.Auth.JWTAlgorithm = "RS256" },
		"transport": func(c *Config) { c.Transport = "carrier-pigeon" },
		"rate":      func(c *Config) { c.RateLimitRPS = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := validConfig()
			mutate(&c)
			if err := c.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestHints(t *testing.T) {
	c := validConfig()
	c.Auth.JWTSecretKey = "a-real-secret"
	if hints := c.Hints(); len(hints) != 0 {
		t.Fatalf("expected no hints, got %v", hints)
	}

	c.OIDC.LegacyIssuer = "https://issuer"
	c.OIDC.Enabled = true
	c.Auth.AllowLocalJWTFallback = true
	hints := strings.Join(c.Hints(), "\n")
	for _, want := range []string{"OIDC_ISSUER", "fallback", "OIDC_AUDIENCE"} {
		if !strings.Contains(hints, want) {
			t.Fatalf("hints missing %q:\n%s", want, hints)
		}
	}
}

func TestClampQueryTimeout(t *testing.T) {
	cases := map[time.Duration]time.Duration{
		0:                MinQueryTimeout,
		-time.Minute:     MinQueryTimeout,
		90 * time.Second: 90 * time.Second,
		5 * time.Hour:    MaxQueryTimeout,
	}
	for in, want := range cases {
		if got := ClampQueryTimeout(in); got != want {
			t.Fatalf("ClampQueryTimeout(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestAuthSummary(t *testing.T) {
	c := validConfig()
	c.OIDC.Enabled = true
	attrs := c.AuthSummary()
	var jwks string
	for _, a := range attrs {
		if a.Key == "jwks" {
			jwks = a.Value.String()
		}
	}
	if jwks != "auto-discovery" {
		t.Fatalf("jwks source = %q", jwks)
	}
}

func validConfig() Config {
	return Config{
		Server:              Server{Host: "127.0.0.1", Port: 8080},
		Auth:                Auth{APIKeys: "k", JWTSecretKey: "s", JWTAlgorithm: "HS256"},
		OIDC:                OIDC{CacheTTLSeconds: 3600},
		QueryTimeoutSeconds: 300,
		LogLevel:            "INFO",
		Transport:           TransportAuto,
	}
}
