// Package gateway accepts WebSocket connections from reader appliances
// and owns the socket for each one.
//
// The gateway authenticates a reader before the upgrade (reader ID plus
// provisioning token, checked against the stored hash), binds exactly
// one state machine to the connection, and is the sole writer to the
// socket. Inbound frames are decoded and delivered to the machine from
// a single per-connection goroutine, so events for one reader are
// processed strictly in arrival order. A second connection
// authenticating as the same reader supersedes and closes the first.
//
// Connection teardown is the only cancellation mechanism: on close the
// machine receives its terminal shutdown, the connection leaves the
// registry, and outbound sends for it are silently dropped. Nothing
// survives a reconnect; a reconnecting reader starts fresh.
package gateway
