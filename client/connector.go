package client

import (
	"context"
	"net/http"
	"strings"

	agentgate "github.com/agentgate/agentgate"
	"github.com/agentgate/agentgate/identity"
)

// Capability is one operation a remote engine advertises.
type Capability struct {
	Name        string
	Description string
}

// InvokeResult is the outcome of one engine invocation.
type InvokeResult struct {
	// Content holds the textual result blocks, in order.
	Content []string

	// IsError marks results the engine flagged as tool-level failures.
	IsError bool
}

// EngineSession is an open conversation with a remote protocol engine.
type EngineSession interface {
	ListCapabilities(ctx context.Context) ([]Capability, error)
	Invoke(ctx context.Context, name string, args map[string]interface{}) (*InvokeResult, error)
	Ping(ctx context.Context) error
	Close() error
}

// EngineDialer opens engine sessions over a prepared HTTP client. See
// mcpengine for the production implementation.
type EngineDialer interface {
	Dial(ctx context.Context, endpoint string, httpClient *http.Client) (EngineSession, error)
}

// ConnectedSession is the result of one successful Connect: the open engine
// session plus what was learned about the counterpart on the way in.
type ConnectedSession struct {
	Session  EngineSession
	Endpoint string

	// Identity is the resolver's verification result; nil when the target
	// was a direct URL and no verification ran.
	Identity *identity.Result
}

// Close closes the underlying engine session.
func (s *ConnectedSession) Close() error {
	return s.Session.Close()
}

// Connector turns identity references (or direct URLs) into live engine
// sessions with payment handling installed.
type Connector struct {
	resolver *identity.Resolver
	dialer   EngineDialer
	base     http.RoundTripper
}

// ConnectorOption configures a Connector.
type ConnectorOption func(*Connector)

// WithBaseTransport replaces the HTTP transport under the payment layer.
func WithBaseTransport(rt http.RoundTripper) ConnectorOption {
	return func(c *Connector) { c.base = rt }
}

// NewConnector creates a connector. resolver may be nil for a connector that
// only dials direct URLs.
func NewConnector(resolver *identity.Resolver, dialer EngineDialer, opts ...ConnectorOption) *Connector {
	c := &Connector{resolver: resolver, dialer: dialer}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect resolves target and opens an engine session to it. target is either
// an identity reference, which is verified before any connection is made, or
// a direct http(s) URL, which skips verification entirely. cfg governs
// payment; nil never pays.
func (c *Connector) Connect(ctx context.Context, target string, cfg *Config) (*ConnectedSession, error) {
	endpoint := target
	var result *identity.Result

	if !isURL(target) {
		if c.resolver == nil {
			return nil, agentgate.NewError(agentgate.ErrCodeConnection,
				"no resolver configured for identity references")
		}
		resolved := c.resolver.Resolve(ctx, target)
		if !resolved.Valid {
			return nil, resolved.Err
		}
		result = &resolved

		svc := resolved.Registration.Service(identity.ServiceMCP)
		if svc == nil || svc.Endpoint == "" {
			return nil, agentgate.Errorf(agentgate.ErrCodeNoEngineEndpoint,
				"identity %s declares no engine service", resolved.Reference)
		}
		endpoint = svc.Endpoint
	}

	httpClient := &http.Client{Transport: newPaymentTransport(c.base, cfg)}
	session, err := c.dialer.Dial(ctx, endpoint, httpClient)
	if err != nil {
		return nil, agentgate.Errorf(agentgate.ErrCodeConnection,
			"engine dial to %s failed: %v", endpoint, err)
	}

	return &ConnectedSession{
		Session:  session,
		Endpoint: endpoint,
		Identity: result,
	}, nil
}

func isURL(target string) bool {
	return strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://")
}
