package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentgate "github.com/agentgate/agentgate"
	"github.com/agentgate/agentgate/gate"
	"github.com/agentgate/agentgate/payments"
)

const initializeBody = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18"}}`

func postMessage(t *testing.T, rt *Router, body, sessionID, proof string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	if sessionID != "" {
		req.Header.Set(agentgate.HeaderSession, sessionID)
	}
	if proof != "" {
		req.Header.Set(agentgate.HeaderPayment, proof)
	}
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)
	return rec
}

func initSession(t *testing.T, rt *Router) string {
	t.Helper()
	rec := postMessage(t, rt, initializeBody, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	sid := rec.Header().Get(agentgate.HeaderSession)
	require.NotEmpty(t, sid)
	return sid
}

func TestRouterInitializeMintsSession(t *testing.T) {
	engine := &fakeEngine{}
	rt := NewRouter(engine)
	defer rt.Close()

	sid := initSession(t, rt)
	assert.Equal(t, 1, rt.Registry().Len())

	// The initialize message itself reached the engine.
	conn := engine.last(t)
	require.Len(t, conn.handled, 1)
	assert.JSONEq(t, initializeBody, string(conn.handled[0]))

	// A follow-up with the minted id reuses the same connection.
	rec := postMessage(t, rt, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`, sid, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, conn.handled, 2)
	assert.Equal(t, 1, rt.Registry().Len())
}

func TestRouterFollowUpWithoutSessionRejected(t *testing.T) {
	rt := NewRouter(&fakeEngine{})
	defer rt.Close()

	rec := postMessage(t, rt, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`, "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, rt.Registry().Len())
}

func TestRouterUnknownSessionRejected(t *testing.T) {
	rt := NewRouter(&fakeEngine{})
	defer rt.Close()

	rec := postMessage(t, rt, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`, "nope", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, agentgate.ErrCodeSessionNotFound, body["error"])
}

func TestRouterClosedSessionIsNotFound(t *testing.T) {
	engine := &fakeEngine{}
	rt := NewRouter(engine)
	defer rt.Close()

	sid := initSession(t, rt)
	engine.last(t).Close()

	// A closed session's id behaves like one that never existed.
	rec := postMessage(t, rt, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`, sid, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, agentgate.ErrCodeSessionNotFound, body["error"])
}

func TestRouterDeleteTearsSessionDown(t *testing.T) {
	engine := &fakeEngine{}
	rt := NewRouter(engine)
	defer rt.Close()

	sid := initSession(t, rt)

	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	req.Header.Set(agentgate.HeaderSession, sid)
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, rt.Registry().Len())
	assert.True(t, engine.last(t).isClosed())

	// Deleting again finds nothing.
	rec = httptest.NewRecorder()
	rt.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouterNotificationGets202(t *testing.T) {
	engine := &fakeEngine{}
	rt := NewRouter(engine)
	defer rt.Close()

	sid := initSession(t, rt)
	engine.last(t).handle = func(context.Context, []byte) ([]byte, error) {
		return nil, nil
	}

	rec := postMessage(t, rt, `{"jsonrpc":"2.0","method":"notifications/initialized"}`, sid, "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
}

func TestRouterWrongPath(t *testing.T) {
	rt := NewRouter(&fakeEngine{})
	defer rt.Close()

	req := httptest.NewRequest(http.MethodPost, "/other", strings.NewReader(initializeBody))
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouterCustomPath(t *testing.T) {
	rt := NewRouter(&fakeEngine{}, WithPath("/rpc"))
	defer rt.Close()

	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(initializeBody))
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterCORSPreflight(t *testing.T) {
	rt := NewRouter(&fakeEngine{}, WithCORS())
	defer rt.Close()

	req := httptest.NewRequest(http.MethodOptions, "/mcp", nil)
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, DELETE, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), agentgate.HeaderPayment)
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), agentgate.HeaderSession)
}

func TestRouterMethodNotAllowed(t *testing.T) {
	rt := NewRouter(&fakeEngine{})
	defer rt.Close()

	req := httptest.NewRequest(http.MethodPut, "/mcp", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func gatedRouter(t *testing.T, engine Engine) *Router {
	t.Helper()
	return NewRouter(engine, WithGate(gate.New(&gate.Config{
		PayTo:   "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
		Price:   "10000",
		Asset:   "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Network: "eip155:84532",
	})))
}

func toolCallBody(name string) string {
	return `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"` + name + `"}}`
}

func TestRouterGateChallengesUnpaidCall(t *testing.T) {
	rt := gatedRouter(t, &fakeEngine{})
	defer rt.Close()

	rec := postMessage(t, rt, toolCallBody("get-price"), "", "")
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	header := rec.Header().Get(agentgate.HeaderPaymentRequired)
	require.NotEmpty(t, header)
	raw, err := base64.StdEncoding.DecodeString(header)
	require.NoError(t, err)

	var required agentgate.PaymentRequired
	require.NoError(t, json.Unmarshal(raw, &required))
	require.Len(t, required.Accepts, 1)
	assert.Equal(t, "/mcp", required.Accepts[0].Resource)
	assert.Equal(t, "10000", required.Accepts[0].MaxAmountRequired)
}

func TestRouterGateFreeToolBypasses(t *testing.T) {
	engine := &fakeEngine{}
	rt := gatedRouter(t, engine)
	defer rt.Close()

	sid := initSessionGated(t, rt)
	rec := postMessage(t, rt, toolCallBody("ping"), sid, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func initSessionGated(t *testing.T, rt *Router) string {
	t.Helper()
	rec := postMessage(t, rt, initializeBody, "", validProofHeader(t))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Header().Get(agentgate.HeaderSession)
}

func validProofHeader(t *testing.T) string {
	t.Helper()
	codec := &payments.Codec{}
	payload := &payments.DirectPayload{
		Signature: "0xsig",
		Authorization: payments.Authorization{
			From:  "0xSender",
			To:    "0xRecipient",
			Value: "10000",
			Nonce: "0x01",
		},
	}
	return codec.EncodeProof(payments.ProofEnvelope{Payload: payload.ToMap()})
}

func TestRouterGatePaidCallReachesEngine(t *testing.T) {
	engine := &fakeEngine{}
	rt := gatedRouter(t, engine)
	defer rt.Close()

	sid := initSessionGated(t, rt)

	var details agentgate.PaymentDetails
	var attached bool
	engine.last(t).handle = func(ctx context.Context, _ []byte) ([]byte, error) {
		details, attached = gate.DetailsFromContext(ctx)
		return []byte(`{"jsonrpc":"2.0","id":3,"result":{}}`), nil
	}

	rec := postMessage(t, rt, toolCallBody("get-price"), sid, validProofHeader(t))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.True(t, attached)
	assert.Equal(t, "0xSender", details.From)
	assert.Equal(t, "10000", details.Amount)
}

func TestRouterGateRejectsMalformedProof(t *testing.T) {
	rt := gatedRouter(t, &fakeEngine{})
	defer rt.Close()

	badProof := (&payments.Codec{}).EncodeProof(payments.ProofEnvelope{
		Payload: map[string]interface{}{"transfer": "yes"},
	})
	rec := postMessage(t, rt, toolCallBody("get-price"), "", badProof)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, agentgate.ErrCodeUnrecognizedPayload, body["error"])
}

func TestRouterStatelessGetStreamsEvents(t *testing.T) {
	engine := &fakeEngine{}
	rt := NewRouter(engine)
	defer rt.Close()

	srv := httptest.NewServer(rt)
	defer srv.Close()

	// Feed two events as soon as the stateless connection appears, then
	// close it so the stream ends.
	go func() {
		for {
			engine.mu.Lock()
			n := len(engine.conns)
			var conn *fakeConn
			if n > 0 {
				conn = engine.conns[n-1]
			}
			engine.mu.Unlock()
			if conn != nil {
				conn.events <- []byte(`{"method":"notifications/progress"}`)
				conn.events <- []byte(`{"method":"notifications/message"}`)
				conn.Close()
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	resp, err := http.Get(srv.URL + "/mcp")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	buf := make([]byte, 4096)
	var stream strings.Builder
	for {
		n, err := resp.Body.Read(buf)
		stream.Write(buf[:n])
		if err != nil {
			break
		}
	}
	assert.Contains(t, stream.String(), "data: {\"method\":\"notifications/progress\"}\n\n")
	assert.Contains(t, stream.String(), "data: {\"method\":\"notifications/message\"}\n\n")
}

func TestRouterGetWithUnknownSessionRejected(t *testing.T) {
	rt := NewRouter(&fakeEngine{})
	defer rt.Close()

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set(agentgate.HeaderSession, "gone")
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, agentgate.ErrCodeSessionNotFound, body["error"])
}
