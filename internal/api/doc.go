// Package api provides the HTTP surface of TapGate: the human-facing
// REST routes (login, card management, reader provisioning, resource
// attachments, key issue) and the reader WebSocket endpoint, which it
// delegates to the gateway.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Human routes authenticate with a JWT bearer token; the reader
// WebSocket route authenticates with reader credentials inside the
// gateway and never sees a JWT.
package api
