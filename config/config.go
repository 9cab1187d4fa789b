// Package config loads gateway settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"

	"github.com/ggoodman/govdata-mcp/auth"
	"github.com/ggoodman/govdata-mcp/internal/jwtauth"
)

// Transport selection values for MCP_TRANSPORT.
const (
	TransportAuto  = "auto"
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

const (
	MinQueryTimeout = time.Second
	MaxQueryTimeout = time.Hour
)

// ErrMissingDatabaseURL is returned when a serving mode starts without a
// SQL backend.
var ErrMissingDatabaseURL = errors.New("config: DATABASE_URL is required")

// Config is the immutable process configuration. Defaults are provided via
// struct tags.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL"`

	Server Server
	Auth   Auth
	OIDC   OIDC
	Cache  Cache

	QueryTimeoutSeconds int `env:"QUERY_TIMEOUT_SECONDS,default=300"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS,default=0"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST,default=20"`

	LogLevel  string `env:"LOG_LEVEL,default=INFO"`
	Transport string `env:"MCP_TRANSPORT,default=auto"`
}

// Server holds listener settings.
type Server struct {
	Host string `env:"SERVER_HOST,default=0.0.0.0"`
	Port int    `env:"SERVER_PORT,default=8080"`
}

// Auth holds static credentials and the local token policy.
type Auth struct {
	APIKeys               string `env:"API_KEYS,default=dev-key-12345"`
	JWTSecretKey          string `env:"JWT_SECRET_KEY,default=change-this-in-production"`
	JWTAlgorithm          string `env:"JWT_ALGORITHM,default=HS256"`
	TokenExpireMinutes    int    `env:"JWT_ACCESS_TOKEN_EXPIRE_MINUTES,default=30"`
	AllowLocalJWTFallback bool   `env:"AUTH_ALLOW_LOCAL_JWT_FALLBACK,default=false"`
}

// OIDC holds provider verification settings.
type OIDC struct {
	Enabled         bool   `env:"OIDC_ENABLED,default=false"`
	IssuerURL       string `env:"OIDC_ISSUER_URL"`
	Audience        string `env:"OIDC_AUDIENCE"`
	JWKSURL         string `env:"OIDC_JWKS_URL"`
	CacheTTLSeconds int    `env:"OIDC_CACHE_TTL_SECONDS,default=3600"`

	// LegacyIssuer catches the commonly mistyped OIDC_ISSUER variable.
	LegacyIssuer string `env:"OIDC_ISSUER"`
}

// Cache selects where fetched key material is kept.
type Cache struct {
	RedisAddr string `env:"REDIS_ADDR"`
	KeyPrefix string `env:"CACHE_KEY_PREFIX,default=govdata:auth:"`
}

// Load reads the environment and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("config: decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: SERVER_PORT %d out of range", c.Server.Port))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.Auth.JWTSecretKey != "" && !isLocalAlgorithm(c.Auth.JWTAlgorithm) {
		errs = append(errs, fmt.Errorf("config: JWT_ALGORITHM %q must be one of %s", c.Auth.JWTAlgorithm, strings.Join(jwtauth.LocalAlgorithms, ", ")))
	}
	switch c.Transport {
	case TransportAuto, TransportStdio, TransportHTTP:
	default:
		errs = append(errs, fmt.Errorf("config: MCP_TRANSPORT %q must be auto, stdio or http", c.Transport))
	}
	if c.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("config: RATE_LIMIT_RPS must not be negative"))
	}
	return errors.Join(errs...)
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// APIKeys returns the parsed static key list.
func (c *Config) APIKeys() []string {
	return auth.ParseAPIKeys(c.Auth.APIKeys)
}

// KeyTTL is the configured JWKS freshness window before the floor is applied.
func (c *Config) KeyTTL() time.Duration {
	return time.Duration(c.OIDC.CacheTTLSeconds) * time.Second
}

// QueryTimeout is the default per-query deadline.
func (c *Config) QueryTimeout() time.Duration {
	return ClampQueryTimeout(time.Duration(c.QueryTimeoutSeconds) * time.Second)
}

// TokenTTL is the lifetime of locally minted tokens.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenExpireMinutes) * time.Minute
}

// ClampQueryTimeout bounds d to [MinQueryTimeout, MaxQueryTimeout].
func ClampQueryTimeout(d time.Duration) time.Duration {
	return min(max(d, MinQueryTimeout), MaxQueryTimeout)
}

// Hints returns configuration warnings worth logging at startup.
func (c *Config) Hints() []string {
	var hints []string
	if c.OIDC.LegacyIssuer != "" && c.OIDC.IssuerURL == "" {
		hints = append(hints, "Detected OIDC_ISSUER in environment but OIDC_ISSUER_URL is not set. Did you mean OIDC_ISSUER_URL?")
	}
	if c.OIDC.Enabled && c.Auth.AllowLocalJWTFallback {
		hints = append(hints, "OIDC is enabled and local JWT fallback is also enabled. This will accept both provider and locally signed tokens.")
	}
	if c.OIDC.Enabled && (c.OIDC.IssuerURL == "" || c.OIDC.Audience == "") {
		hints = append(hints, "OIDC is enabled but OIDC_ISSUER_URL or OIDC_AUDIENCE is not set. Tokens will fail to validate.")
	}
	if c.Auth.JWTSecretKey == "change-this-in-production" && (!c.OIDC.Enabled || c.Auth.AllowLocalJWTFallback) {
		hints = append(hints, "JWT_SECRET_KEY is the built-in default. Set a real secret before exposing the gateway.")
	}
	return hints
}

// AuthSummary describes the active authentication setup as log attributes.
func (c *Config) AuthSummary() []slog.Attr {
	attrs := []slog.Attr{slog.Int("api_keys", len(c.APIKeys()))}
	if c.OIDC.Enabled {
		jwksSource := c.OIDC.JWKSURL
		if jwksSource == "" {
			jwksSource = "auto-discovery"
		}
		return append(attrs,
			slog.Bool("oidc", true),
			slog.String("issuer", c.OIDC.IssuerURL),
			slog.String("audience", c.OIDC.Audience),
			slog.String("jwks", jwksSource),
			slog.Bool("local_jwt_fallback", c.Auth.AllowLocalJWTFallback),
		)
	}
	attrs = append(attrs, slog.Bool("oidc", false))
	if c.Auth.JWTSecretKey != "" {
		attrs = append(attrs, slog.String("local_jwt", c.Auth.JWTAlgorithm))
	}
	return attrs
}

// ParseLevel maps LOG_LEVEL values onto slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "", "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR", "CRITICAL":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("config: unknown LOG_LEVEL %q", s)
	}
}

func isLocalAlgorithm(alg string) bool {
	for _, a := range jwtauth.LocalAlgorithms {
		if a == alg {
			return true
		}
	}
	return false
}
