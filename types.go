// Package agentgate implements the payment-gated session layer for
// agent-to-agent tool endpoints: on-chain identity resolution on the client
// side, and an HTTP front door on the server side that challenges requests
// with 402 payment requirements before handing them to a protocol engine.
package agentgate

import (
	"fmt"
	"strings"
)

// Version is the payment challenge protocol version carried in the
// X-PAYMENT-REQUIRED header envelope.
const Version = 2

// Header names exchanged between gate and connector.
const (
	// HeaderPaymentRequired carries base64 JSON {"version":2,"accepts":[...]}
	// on a 402 response.
	HeaderPaymentRequired = "X-PAYMENT-REQUIRED"

	// HeaderPayment carries the client's base64 JSON payment proof envelope.
	HeaderPayment = "X-PAYMENT"

	// HeaderSession carries the session identifier minted by the router on
	// the first successful exchange.
	HeaderSession = "Mcp-Session-Id"
)

// Network is a blockchain network identifier in CAIP-2 format,
// e.g. "eip155:8453" for Base mainnet.
type Network string

// Parse splits the network into namespace and reference components.
func (n Network) Parse() (namespace, reference string, err error) {
	parts := strings.Split(string(n), ":")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid network format: %s", n)
	}
	return parts[0], parts[1], nil
}

// Match checks whether this network matches a pattern. Patterns may end in
// ":*" to match a whole namespace, e.g. "eip155:8453" matches "eip155:*".
func (n Network) Match(pattern Network) bool {
	if n == pattern {
		return true
	}
	if strings.HasSuffix(string(pattern), ":*") {
		return strings.HasPrefix(string(n), strings.TrimSuffix(string(pattern), "*"))
	}
	if strings.HasSuffix(string(n), ":*") {
		return strings.HasPrefix(string(pattern), strings.TrimSuffix(string(n), "*"))
	}
	return false
}

// PaymentRequirements describes one acceptable payment for a guarded
// resource. It is server-authoritative: one instance is generated per 402
// response, parameterized by the requested resource path.
type PaymentRequirements struct {
	Scheme            string  `json:"scheme"`
	Network           Network `json:"network"`
	MaxAmountRequired string  `json:"maxAmountRequired"`
	Resource          string  `json:"resource"`
	Description       string  `json:"description,omitempty"`
	PayTo             string  `json:"payTo"`
	Asset             string  `json:"asset"`
	MaxTimeoutSeconds int     `json:"maxTimeoutSeconds"`
}

// PaymentRequired is the envelope encoded into the X-PAYMENT-REQUIRED header
// of a 402 response.
type PaymentRequired struct {
	Version int                   `json:"version"`
	Error   string                `json:"error,omitempty"`
	Accepts []PaymentRequirements `json:"accepts"`
}

// PaymentDetails is the transfer semantics the gate extracts from a
// structurally valid proof. The signature itself is never checked here; that
// is the settlement facilitator's job.
type PaymentDetails struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
	Asset  string `json:"asset,omitempty"`
}
