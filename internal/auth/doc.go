// Package auth provides authentication and authorisation for TapGate.
//
// It implements a 3-tier role model (user → admin → owner) with:
//   - Argon2id password hashing (OWASP 2025 recommendation)
//   - JWT access tokens for the human-facing HTTP API
//   - Static role-permission mapping (compile-time, no database lookup)
//
// The authorisation model follows "own resources by default, grant the rest
// explicitly": a user sees and manages only their own cards unless they hold
// the system-configuration permission. Reader appliances are NOT users —
// they authenticate to the gateway with provisioning tokens and never hold
// a role from this package.
package auth
