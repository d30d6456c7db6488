// Package server is the HTTP front door of a payment-gated protocol engine:
// one route carrying cross-origin handling, the payment gate, and session
// multiplexing over the Mcp-Session-Id header. The engine itself stays behind
// two narrow interfaces so the router never owns the protocol wire schema.
package server

import "context"

// Connection is one live conversation with the protocol engine. A connection
// is owned by exactly one session (or one stateless request) and is never
// handled by two callers concurrently.
type Connection interface {
	// Handle processes one inbound protocol message and returns the reply,
	// or nil for messages that produce none (notifications).
	Handle(ctx context.Context, message []byte) ([]byte, error)

	// Events yields server-initiated messages. The channel closes when the
	// connection does.
	Events() <-chan []byte

	// OnClose registers fn to run exactly once when the connection closes,
	// whether by Close or by engine-side failure.
	OnClose(fn func())

	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// Engine opens connections to the underlying protocol engine. See mcpengine
// for the production implementation.
type Engine interface {
	Connect(ctx context.Context) (Connection, error)
}
