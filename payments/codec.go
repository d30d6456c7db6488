// Package payments implements the wire encoding of payment challenges and
// proofs: the base64-JSON header codec and the structural classification of
// proof payloads. Nothing in this package checks a signature; structural
// validity only proves a payload is complete enough to extract transfer
// semantics.
package payments

import (
	"encoding/base64"
	"encoding/json"

	agentgate "github.com/agentgate/agentgate"
)

// ProofEnvelope is the decoded X-PAYMENT header: an opaque proof payload plus
// the network it is meant to settle on.
type ProofEnvelope struct {
	Payload map[string]interface{} `json:"payload"`
	Network agentgate.Network      `json:"network,omitempty"`
}

// Codec encodes and decodes the payment headers. The zero value is usable;
// DefaultNetwork fills in the envelope network when the client omits it.
type Codec struct {
	DefaultNetwork agentgate.Network
}

// EncodeRequirements wraps the requirements in the versioned challenge
// envelope and base64-encodes it for the X-PAYMENT-REQUIRED header.
func (c *Codec) EncodeRequirements(reqs ...agentgate.PaymentRequirements) string {
	required := agentgate.PaymentRequired{
		Version: agentgate.Version,
		Accepts: reqs,
	}
	data, _ := json.Marshal(required)
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeRequirements decodes an X-PAYMENT-REQUIRED header value.
func (c *Codec) DecodeRequirements(header string) (*agentgate.PaymentRequired, error) {
	data, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, agentgate.Errorf(agentgate.ErrCodePaymentRequired, "invalid challenge header encoding: %v", err)
	}
	var required agentgate.PaymentRequired
	if err := json.Unmarshal(data, &required); err != nil {
		return nil, agentgate.Errorf(agentgate.ErrCodePaymentRequired, "invalid challenge header JSON: %v", err)
	}
	return &required, nil
}

// EncodeProof base64-encodes a proof envelope for the X-PAYMENT header.
func (c *Codec) EncodeProof(env ProofEnvelope) string {
	if env.Network == "" {
		env.Network = c.DefaultNetwork
	}
	data, _ := json.Marshal(env)
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeProofHeader decodes an X-PAYMENT header value. It returns nil on
// missing or malformed input rather than an error, so callers can treat
// "no usable proof" as a single case. The envelope network defaults to the
// codec's configured default when the client omits it.
func (c *Codec) DecodeProofHeader(raw string) *ProofEnvelope {
	if raw == "" {
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil
	}
	var env ProofEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil
	}
	if env.Payload == nil {
		return nil
	}
	if env.Network == "" {
		env.Network = c.DefaultNetwork
	}
	return &env
}
