// Package auth decides whether an inbound request may talk to the gateway.
//
// Two factors are accepted. A static API key in the X-API-Key header is
// checked first against the CredentialStore. Failing that, a bearer token in
// the Authorization header is handed to a TokenVerifier, which validates it
// against an OIDC provider's published keys, the locally configured HMAC
// secret, or both.
//
// # Verification order
//
// When OIDC is enabled its result is authoritative. Locally signed tokens are
// only considered after an OIDC failure if AllowLocalFallback is set; with
// OIDC disabled the local secret is the only bearer backend.
//
// # Diagnostics
//
// Gate.Authenticate returns a Decision carrying a coarse Reason for server
// logs. Clients only ever see the fixed UnauthorizedDetail message, so the
// response never reveals which factor failed.
package auth
