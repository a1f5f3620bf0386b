// Package keys implements per-card key diversification for TapGate.
//
// Every physical card carries application keys in its secure element. Rather
// than storing a key per card, TapGate derives each one on demand from a
// single master secret using AES-128 CMAC diversification (the AN10922
// construction). Compromise of one diversified key exposes neither the
// master secret nor any other card's keys.
//
// The Service is pure and stateless after construction: the master secret is
// loaded once at startup and never mutated, so DeriveKey is safe to call
// concurrently from any number of reader connections without locking.
//
// Security Considerations:
//   - Derived keys exist only in memory, on demand; nothing is persisted
//   - Key bytes cross a serialization boundary only as lowercase hex via
//     Key.Hex(); Key's String() redacts itself so accidental logging leaks
//     nothing
package keys
