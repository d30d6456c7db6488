package mcpengine

import (
	"context"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/agentgate/agentgate/client"
)

// Dialer opens SDK client sessions over streamable HTTP, implementing
// client.EngineDialer. The HTTP client handed to Dial carries the payment
// transport, so 402 challenges on the session wire are paid transparently.
type Dialer struct {
	impl *mcpsdk.Implementation
}

// NewDialer creates a dialer identifying itself as name/version during the
// protocol handshake.
func NewDialer(name, version string) *Dialer {
	return &Dialer{impl: &mcpsdk.Implementation{Name: name, Version: version}}
}

// Dial implements client.EngineDialer.
func (d *Dialer) Dial(ctx context.Context, endpoint string, httpClient *http.Client) (client.EngineSession, error) {
	mcpClient := mcpsdk.NewClient(d.impl, nil)
	transport := &mcpsdk.StreamableClientTransport{
		Endpoint:   endpoint,
		HTTPClient: httpClient,
	}

	session, err := mcpClient.Connect(ctx, transport, nil)
	if err != nil {
		return nil, err
	}
	return &engineSession{session: session}, nil
}

// engineSession adapts an SDK client session to client.EngineSession.
type engineSession struct {
	session *mcpsdk.ClientSession
}

func (s *engineSession) ListCapabilities(ctx context.Context) ([]client.Capability, error) {
	result, err := s.session.ListTools(ctx, nil)
	if err != nil {
		return nil, err
	}
	capabilities := make([]client.Capability, 0, len(result.Tools))
	for _, tool := range result.Tools {
		capabilities = append(capabilities, client.Capability{
			Name:        tool.Name,
			Description: tool.Description,
		})
	}
	return capabilities, nil
}

func (s *engineSession) Invoke(ctx context.Context, name string, args map[string]interface{}) (*client.InvokeResult, error) {
	result, err := s.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return nil, err
	}

	invoke := &client.InvokeResult{IsError: result.IsError}
	for _, item := range result.Content {
		if text, ok := item.(*mcpsdk.TextContent); ok {
			invoke.Content = append(invoke.Content, text.Text)
		}
	}
	return invoke, nil
}

func (s *engineSession) Ping(ctx context.Context) error {
	return s.session.Ping(ctx, &mcpsdk.PingParams{})
}

func (s *engineSession) Close() error {
	return s.session.Close()
}
