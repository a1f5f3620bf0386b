// Package reader implements the per-connection protocol state machine
// for NFC reader appliances, plus the registry of provisioned readers.
//
// One Machine exists per live connection. It holds the connection's
// current state (NoResourcesAttached, AwaitingCardTap, ValidatingCard,
// SessionActive), reacts to device events, and emits display and session
// commands back through the gateway. The machine has side effects on
// physical hardware: what it sends decides what the appliance shows and
// whether a resource is marked in use.
//
// State rules:
//   - Exactly one state is active at a time; exit of the old state
//     completes before entry of the new one.
//   - An event that is not valid for the current state is logged and
//     ignored, never an error. Readers produce out-of-order hardware
//     events and must not be able to desynchronize the backend.
//   - Connection teardown is the terminal exit; active sessions are
//     closed on the way out.
//
// A Machine is not safe for concurrent use. The gateway funnels all
// events, commands, and the final shutdown through a single goroutine per
// connection, which also gives the strict arrival-order guarantee.
//
// The registry half (Reader, Repository) persists provisioned readers.
// A reader authenticates at connect time with its ID and a provisioning
// token; only the SHA-256 hash of the token is stored.
package reader
