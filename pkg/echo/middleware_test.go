package echo

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentgate "github.com/agentgate/agentgate"
	"github.com/agentgate/agentgate/gate"
	"github.com/agentgate/agentgate/payments"
)

func testServer() *echo.Echo {
	g := gate.New(&gate.Config{
		PayTo:     "0xRecipient",
		Price:     "10000",
		Asset:     "0xAsset",
		Network:   "eip155:84532",
		FreeTools: []string{"health"},
	})

	e := echo.New()
	e.Use(PaymentMiddleware(g))
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/quote", func(c echo.Context) error {
		details, ok := gate.DetailsFromContext(c.Request().Context())
		if !ok {
			return c.String(http.StatusInternalServerError, "no details")
		}
		return c.JSON(http.StatusOK, map[string]string{"paidBy": details.From})
	})
	return e
}

func validProof() string {
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

func TestMiddlewareFreeRoute(t *testing.T) {
	rec := httptest.NewRecorder()
	testServer().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewareChallengesUnpaidRoute(t *testing.T) {
	rec := httptest.NewRecorder()
	testServer().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/quote", nil))

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(agentgate.HeaderPaymentRequired))
}

func TestMiddlewarePassesPaidRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/quote", nil)
	req.Header.Set(agentgate.HeaderPayment, validProof())

	rec := httptest.NewRecorder()
	testServer().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "0xSender")
}
