package auth

import (
	"crypto/subtle"
	"strings"
)

// LocalSecret is the symmetric key used to sign and verify local tokens.
type LocalSecret struct {
	Key       string
	Algorithm string
}

// CredentialStore holds the static API keys and the local signing secret.
// It is immutable after construction.
type CredentialStore struct {
	apiKeys []string
	local   LocalSecret
}

// NewCredentialStore builds a store from raw API keys. Keys are trimmed and
// empty entries dropped.
func NewCredentialStore(apiKeys []string, local LocalSecret) *CredentialStore {
	s := &CredentialStore{local: local}
	seen := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		s.apiKeys = append(s.apiKeys, k)
	}
	return s
}

// ParseAPIKeys splits a comma-separated key list.
func ParseAPIKeys(raw string) []string {
	var out []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// ValidAPIKeys returns the configured key set.
func (s *CredentialStore) ValidAPIKeys() map[string]struct{} {
	out := make(map[string]struct{}, len(s.apiKeys))
	for _, k := range s.apiKeys {
		out[k] = struct{}{}
	}
	return out
}

// LocalSecret returns the local signing secret and algorithm.
func (s *CredentialStore) LocalSecret() LocalSecret {
	return s.local
}

// IsValidAPIKey reports whether key is configured. Every configured key is
// compared in constant time.
func (s *CredentialStore) IsValidAPIKey(key string) bool {
	if key == "" {
		return false
	}
	match := 0
	for _, k := range s.apiKeys {
		match |= subtle.ConstantTimeCompare([]byte(k), []byte(key))
	}
	return match == 1
}
