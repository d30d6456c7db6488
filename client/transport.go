// Package client connects to payment-gated engine servers: it verifies the
// counterpart's identity, picks its declared engine endpoint and wraps the
// HTTP transport with a single-retry payment loop driven by 402 challenges.
package client

import (
	"bytes"
	"encoding/json"
	"io"
	"math/big"
	"net/http"

	agentgate "github.com/agentgate/agentgate"
	"github.com/agentgate/agentgate/payments"
)

// Config is the payment posture of one connection. A nil Config, or one
// without a Signer, never pays: 402 responses pass through untouched.
type Config struct {
	// Signer produces payment proofs. Required for paying.
	Signer payments.ProofSigner

	// MaxAmount is the per-request spend ceiling in the asset's smallest
	// unit. A challenge demanding more is surfaced, not paid. Empty means
	// no ceiling.
	MaxAmount string

	// Network restricts which challenge requirements are acceptable. Empty
	// accepts any. Wildcard forms like "eip155:*" match by namespace.
	Network agentgate.Network
}

// paymentTransport retries a request exactly once with a signed proof when
// the server answers 402. A second 402 after paying comes back untouched:
// paying twice for one request is never attempted.
type paymentTransport struct {
	base  http.RoundTripper
	cfg   *Config
	codec *payments.Codec
}

func newPaymentTransport(base http.RoundTripper, cfg *Config) *paymentTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &paymentTransport{base: base, cfg: cfg, codec: &payments.Codec{}}
}

// NewHTTPClient builds an HTTP client whose transport answers 402 challenges
// per cfg. Useful on its own for payment-gated plain HTTP APIs.
func NewHTTPClient(cfg *Config) *http.Client {
	return &http.Client{Transport: newPaymentTransport(nil, cfg)}
}

func (t *paymentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Buffer the body so the request can be replayed with a proof attached.
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
		req.Body = io.NopCloser(bytes.NewReader(body))
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusPaymentRequired {
		return resp, err
	}
	if t.cfg == nil || t.cfg.Signer == nil {
		return resp, nil
	}

	requirement := t.acceptableRequirement(resp.Header.Get(agentgate.HeaderPaymentRequired))
	if requirement == nil {
		return resp, nil
	}

	payload, err := t.cfg.Signer.SignAuthorization(req.Context(), payments.AuthorizationRequest{
		To:                requirement.PayTo,
		Amount:            requirement.MaxAmountRequired,
		Asset:             requirement.Asset,
		Network:           requirement.Network,
		MaxTimeoutSeconds: requirement.MaxTimeoutSeconds,
	})
	if err != nil {
		return resp, nil
	}
	raw, err := payloadMap(payload)
	if err != nil {
		return resp, nil
	}

	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	retry := req.Clone(req.Context())
	if body != nil {
		retry.Body = io.NopCloser(bytes.NewReader(body))
	}
	retry.Header.Set(agentgate.HeaderPayment, t.codec.EncodeProof(payments.ProofEnvelope{
		Payload: raw,
		Network: requirement.Network,
	}))

	return t.base.RoundTrip(retry)
}

// acceptableRequirement decodes the challenge and returns the first offered
// requirement within the configured network and spend ceiling, or nil when
// nothing offered is acceptable.
func (t *paymentTransport) acceptableRequirement(header string) *agentgate.PaymentRequirements {
	required, err := t.codec.DecodeRequirements(header)
	if err != nil {
		return nil
	}
	for i := range required.Accepts {
		req := &required.Accepts[i]
		if t.cfg.Network != "" && !t.cfg.Network.Match(req.Network) {
			continue
		}
		if !withinCeiling(req.MaxAmountRequired, t.cfg.MaxAmount) {
			continue
		}
		return req
	}
	return nil
}

func withinCeiling(amount, ceiling string) bool {
	if ceiling == "" {
		return true
	}
	required, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return false
	}
	limit, ok := new(big.Int).SetString(ceiling, 10)
	if !ok {
		return false
	}
	return required.Cmp(limit) <= 0
}

// payloadMap renders any proof payload as the generic map carried in a proof
// envelope, through its wire representation.
func payloadMap(payload payments.ProofPayload) (map[string]interface{}, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
