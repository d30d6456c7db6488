// Package mcpengine adapts the official MCP Go SDK
// (github.com/modelcontextprotocol/go-sdk/mcp) to the engine interfaces the
// router and connector work against. The SDK owns the protocol schema on both
// sides; this package only moves messages.
package mcpengine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/agentgate/agentgate/server"
)

// Engine exposes an mcpsdk.Server as a server.Engine. Each Connect spins up
// an in-memory transport pair: the SDK server on one end, an internal SDK
// client on the other, with inbound messages dispatched through the client
// session so the SDK handles the protocol handshake and schema.
type Engine struct {
	server *mcpsdk.Server
	impl   *mcpsdk.Implementation
}

// NewEngine wraps an already-configured SDK server.
func NewEngine(s *mcpsdk.Server) *Engine {
	return &Engine{
		server: s,
		impl:   &mcpsdk.Implementation{Name: "agentgate-router", Version: "1.0.0"},
	}
}

// Connect implements server.Engine.
func (e *Engine) Connect(ctx context.Context) (server.Connection, error) {
	serverTransport, clientTransport := mcpsdk.NewInMemoryTransports()

	serverSession, err := e.server.Connect(ctx, serverTransport, nil)
	if err != nil {
		return nil, fmt.Errorf("engine server session: %w", err)
	}

	internal := mcpsdk.NewClient(e.impl, nil)
	clientSession, err := internal.Connect(ctx, clientTransport, nil)
	if err != nil {
		serverSession.Close()
		return nil, fmt.Errorf("engine client session: %w", err)
	}

	conn := &connection{
		client: clientSession,
		server: serverSession,
		events: make(chan []byte),
	}

	// Engine-side termination fires the same close signal as Close.
	go func() {
		serverSession.Wait()
		conn.shutdown()
	}()

	return conn, nil
}

// connection is one live pairing of an external client with the SDK server.
// Server-initiated traffic is not replayed onto Events by this adapter; the
// channel only closes with the connection.
type connection struct {
	client *mcpsdk.ClientSession
	server *mcpsdk.ServerSession
	events chan []byte

	mu        sync.Mutex
	closed    bool
	closeFns  []func()
	closeOnce sync.Once
}

var _ server.Connection = (*connection)(nil)

type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

const (
	codeMethodNotFound = -32601
	codeInternalError  = -32603
)

// Handle dispatches one inbound message through the internal client session.
// Notifications return nil; protocol-level failures come back as JSON-RPC
// error replies, not Go errors.
func (c *connection) Handle(ctx context.Context, message []byte) ([]byte, error) {
	var msg rpcMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return nil, fmt.Errorf("not a protocol message: %w", err)
	}

	if len(msg.ID) == 0 {
		// Notifications produce no reply. The handshake notification was
		// already exchanged by the internal client.
		return nil, nil
	}

	result, err := c.dispatch(ctx, msg)
	if err != nil {
		code := codeInternalError
		if _, unknown := err.(*unknownMethodError); unknown {
			code = codeMethodNotFound
		}
		return json.Marshal(rpcResponse{
			JSONRPC: "2.0",
			ID:      msg.ID,
			Error:   &rpcError{Code: code, Message: err.Error()},
		})
	}

	return json.Marshal(rpcResponse{
		JSONRPC: "2.0",
		ID:      msg.ID,
		Result:  result,
	})
}

type unknownMethodError struct{ method string }

func (e *unknownMethodError) Error() string {
	return fmt.Sprintf("method %q not supported", e.method)
}

func (c *connection) dispatch(ctx context.Context, msg rpcMessage) (interface{}, error) {
	switch msg.Method {
	case "initialize":
		// The internal client already completed the handshake; its result
		// is the server's authoritative capability set.
		result := c.client.InitializeResult()
		if result == nil {
			return nil, fmt.Errorf("engine session not initialized")
		}
		return result, nil

	case "ping":
		if err := c.client.Ping(ctx, &mcpsdk.PingParams{}); err != nil {
			return nil, err
		}
		return struct{}{}, nil

	case "tools/list":
		return c.client.ListTools(ctx, nil)

	case "tools/call":
		var params mcpsdk.CallToolParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return nil, fmt.Errorf("invalid tools/call params: %w", err)
		}
		return c.client.CallTool(ctx, &params)

	case "resources/list":
		return c.client.ListResources(ctx, nil)

	case "resources/read":
		var params mcpsdk.ReadResourceParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return nil, fmt.Errorf("invalid resources/read params: %w", err)
		}
		return c.client.ReadResource(ctx, &params)

	case "prompts/list":
		return c.client.ListPrompts(ctx, nil)

	default:
		return nil, &unknownMethodError{method: msg.Method}
	}
}

// Events implements server.Connection.
func (c *connection) Events() <-chan []byte { return c.events }

// OnClose implements server.Connection.
func (c *connection) OnClose(fn func()) {
	c.mu.Lock()
	closed := c.closed
	if !closed {
		c.closeFns = append(c.closeFns, fn)
	}
	c.mu.Unlock()
	if closed {
		fn()
	}
}

// Close implements server.Connection.
func (c *connection) Close() error {
	c.client.Close()
	c.server.Close()
	c.shutdown()
	return nil
}

func (c *connection) shutdown() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		fns := c.closeFns
		c.closeFns = nil
		c.mu.Unlock()

		close(c.events)
		for _, fn := range fns {
			fn()
		}
	})
}
