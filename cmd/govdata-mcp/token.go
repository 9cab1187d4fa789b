package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/pflag"

	"github.com/ggoodman/govdata-mcp/config"
	"github.com/ggoodman/govdata-mcp/internal/jwtauth"
)

const defaultTokenSubject = "govdata-client"

// reservedClaims are set by the command and cannot be overridden with --claim.
var reservedClaims = map[string]bool{"sub": true, "iat": true, "exp": true}

// runToken mints a bearer token signed with the local JWT secret and prints
// it to stdout.
func runToken(args []string, stdout, stderr io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	return mintToken(cfg, args, time.Now, stdout, stderr)
}

func mintToken(cfg *config.Config, args []string, now func() time.Time, stdout, stderr io.Writer) error {
	flagSet := pflag.NewFlagSet(programName+" token", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	subject := flagSet.String("subject", defaultTokenSubject, "sub claim of the token")
	ttl := flagSet.Duration("ttl", cfg.TokenTTL(), "token lifetime (defaults to JWT_ACCESS_TOKEN_EXPIRE_MINUTES)")
	extra := flagSet.StringToString("claim", nil, "additional string claim as key=value, repeatable")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if cfg.Auth.JWTSecretKey == "" {
		return errors.New("JWT_SECRET_KEY must be set to mint tokens")
	}
	if *ttl <= 0 {
		return fmt.Errorf("--ttl must be positive, got %s", *ttl)
	}
	if *subject == "" {
		return errors.New("--subject must not be empty")
	}

	issued := now()
	claims := jwt.MapClaims{
		"sub": *subject,
		"iat": issued.Unix(),
		"exp": issued.Add(*ttl).Unix(),
	}
	for k, v := range *extra {
		if reservedClaims[k] {
			return fmt.Errorf("--claim %s is set by the command", k)
		}
		claims[k] = v
	}

	tok, err := jwtauth.SignLocal(cfg.Auth.JWTSecretKey, cfg.Auth.JWTAlgorithm, claims)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	for _, hint := range cfg.Hints() {
		fmt.Fprintf(stderr, "warning: %s\n", hint)
	}
	_, err = fmt.Fprintln(stdout, tok)
	return err
}
