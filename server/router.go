package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	agentgate "github.com/agentgate/agentgate"
	"github.com/agentgate/agentgate/gate"
)

// DefaultPath is the single route the router serves.
const DefaultPath = "/mcp"

const maxMessageBytes = 4 << 20

// methodInitialize is the one protocol method that starts a session; the
// router peeks at it and at the targeted tool name, nothing else.
const methodInitialize = "initialize"

// Router is the HTTP front door: one path, CORS, payment gate, session
// multiplexing. Everything protocol-shaped is forwarded to the engine
// verbatim.
type Router struct {
	engine   Engine
	registry *Registry
	gate     *gate.Gate
	path     string
	cors     bool
}

// RouterOption configures a Router.
type RouterOption func(*routerConfig)

type routerConfig struct {
	path        string
	cors        bool
	gate        *gate.Gate
	idleTimeout time.Duration
}

// WithPath overrides the served route, DefaultPath by default.
func WithPath(path string) RouterOption {
	return func(c *routerConfig) { c.path = path }
}

// WithCORS enables permissive cross-origin handling, including the payment
// and session headers.
func WithCORS() RouterOption {
	return func(c *routerConfig) { c.cors = true }
}

// WithGate installs a payment gate in front of write-style requests.
func WithGate(g *gate.Gate) RouterOption {
	return func(c *routerConfig) { c.gate = g }
}

// WithIdleTimeout enables the registry's idle-session sweep.
func WithIdleTimeout(d time.Duration) RouterOption {
	return func(c *routerConfig) { c.idleTimeout = d }
}

// NewRouter creates a router in front of engine.
func NewRouter(engine Engine, opts ...RouterOption) *Router {
	cfg := routerConfig{path: DefaultPath}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.gate == nil {
		cfg.gate = gate.New(nil)
	}
	return &Router{
		engine:   engine,
		registry: NewRegistry(cfg.idleTimeout),
		gate:     cfg.gate,
		path:     cfg.path,
		cors:     cfg.cors,
	}
}

// Registry exposes the session table, mainly for shutdown.
func (rt *Router) Registry() *Registry { return rt.registry }

// Close tears down every live session.
func (rt *Router) Close() { rt.registry.Close() }

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if rt.cors {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers",
			"Content-Type, "+agentgate.HeaderPayment+", "+agentgate.HeaderPaymentRequired+", "+agentgate.HeaderSession)
		h.Set("Access-Control-Expose-Headers",
			agentgate.HeaderPaymentRequired+", "+agentgate.HeaderSession)
	}

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.URL.Path != rt.path {
		writeJSONError(w, http.StatusNotFound, "not_found",
			fmt.Sprintf("nothing at %s; the protocol endpoint is %s", r.URL.Path, rt.path))
		return
	}

	switch r.Method {
	case http.MethodPost:
		rt.handlePost(w, r)
	case http.MethodGet:
		rt.handleGet(w, r)
	case http.MethodDelete:
		rt.handleDelete(w, r)
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed",
			"use GET, POST or DELETE")
	}
}

// messagePeek is the only protocol-shaped knowledge this layer has: which
// method a message carries and which tool it targets.
type messagePeek struct {
	Method string `json:"method"`
	Params struct {
		Name string `json:"name"`
	} `json:"params"`
}

func (rt *Router) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad_request", "cannot read request body")
		return
	}

	var peek messagePeek
	if err := json.Unmarshal(body, &peek); err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad_request", "request body is not a protocol message")
		return
	}

	ctx := r.Context()
	outcome := rt.gate.Evaluate(r.URL.Path, peek.Params.Name, r.Header.Get(agentgate.HeaderPayment))
	if outcome.Decision != gate.Allow {
		w.Header().Set(agentgate.HeaderPaymentRequired, outcome.Header)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(outcome.Status)
		w.Write(outcome.Body)
		return
	}
	if outcome.Details != nil {
		ctx = gate.ContextWithDetails(ctx, *outcome.Details)
	}

	var conn Connection
	switch sid := r.Header.Get(agentgate.HeaderSession); {
	case sid != "":
		session, ok := rt.registry.Get(sid)
		if !ok {
			writeJSONError(w, http.StatusBadRequest, agentgate.ErrCodeSessionNotFound,
				fmt.Sprintf("no live session %s", sid))
			return
		}
		conn = session.Conn

	case peek.Method == methodInitialize:
		conn, err = rt.engine.Connect(ctx)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, agentgate.ErrCodeConnection,
				"engine connection failed")
			return
		}
		session := rt.registry.Add(conn)
		w.Header().Set(agentgate.HeaderSession, session.ID)

	default:
		writeJSONError(w, http.StatusBadRequest, "bad_request",
			agentgate.HeaderSession+" header required after initialization")
		return
	}

	reply, err := conn.Handle(ctx, body)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, agentgate.ErrCodeConnection, err.Error())
		return
	}
	if reply == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(reply)
}

// handleGet serves the server-to-client event stream. With a known session id
// it attaches to that session's connection; without one it opens a stateless
// connection scoped to this request.
func (rt *Router) handleGet(w http.ResponseWriter, r *http.Request) {
	var conn Connection
	if sid := r.Header.Get(agentgate.HeaderSession); sid != "" {
		session, ok := rt.registry.Get(sid)
		if !ok {
			writeJSONError(w, http.StatusBadRequest, agentgate.ErrCodeSessionNotFound,
				fmt.Sprintf("no live session %s", sid))
			return
		}
		conn = session.Conn
	} else {
		stateless, err := rt.engine.Connect(r.Context())
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, agentgate.ErrCodeConnection,
				"engine connection failed")
			return
		}
		defer stateless.Close()
		conn = stateless
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, agentgate.ErrCodeConnection,
			"streaming unsupported by this server")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-conn.Events():
			if !open {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", event)
			flusher.Flush()
		}
	}
}

func (rt *Router) handleDelete(w http.ResponseWriter, r *http.Request) {
	sid := r.Header.Get(agentgate.HeaderSession)
	if sid == "" {
		writeJSONError(w, http.StatusBadRequest, "bad_request",
			agentgate.HeaderSession+" header required")
		return
	}

	session, ok := rt.registry.Get(sid)
	if !ok {
		writeJSONError(w, http.StatusBadRequest, agentgate.ErrCodeSessionNotFound,
			fmt.Sprintf("no live session %s", sid))
		return
	}

	// Closing the connection triggers its close signal, which removes the
	// registry entry.
	session.Conn.Close()
	w.WriteHeader(http.StatusNoContent)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}
