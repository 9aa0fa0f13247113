// Package auth provides pluggable authentication and rate limiting for
// the gateway.
//
// Authentication uses a chain-of-responsibility pattern with
// three-outcome voting: each authenticator returns Yes (identity
// found), No (credentials invalid), or Abstain (can't handle). A
// configurable default voter decides when all authenticators abstain,
// which is how the gateway key check degrades to open access when no
// key is configured.
//
// Auth is implemented as HTTP middleware, keeping it decoupled from
// stream orchestration.
package auth
