package payments

import (
	agentgate "github.com/agentgate/agentgate"
)

// ProofPayload is one of the known proof payload shapes. Exactly two shapes
// are recognized: a direct transfer authorization and a permit-style
// authorization. Anything else is unrecognized and rejected at decode time.
type ProofPayload interface {
	// Details extracts the transfer semantics of the payload, validating
	// that every field needed to do so is present and non-empty.
	Details() (agentgate.PaymentDetails, error)

	proofPayload()
}

// Authorization is the direct EIP-3009-style transfer authorization.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter,omitempty"`
	ValidBefore string `json:"validBefore,omitempty"`
	Nonce       string `json:"nonce"`
}

// DirectPayload is a proof carrying a direct transfer authorization and its
// signature envelope.
type DirectPayload struct {
	Signature     string        `json:"signature,omitempty"`
	Authorization Authorization `json:"authorization"`
	Asset         string        `json:"asset,omitempty"`
}

func (*DirectPayload) proofPayload() {}

// Details implements ProofPayload.
func (p *DirectPayload) Details() (agentgate.PaymentDetails, error) {
	a := p.Authorization
	if a.From == "" || a.To == "" || a.Value == "" || a.Nonce == "" {
		return agentgate.PaymentDetails{}, agentgate.NewError(
			agentgate.ErrCodePaymentProofInvalid,
			"authorization requires non-empty from, to, value and nonce")
	}
	return agentgate.PaymentDetails{
		From:   a.From,
		To:     a.To,
		Amount: a.Value,
		Asset:  p.Asset,
	}, nil
}

// TokenPermissions is the permitted token and amount of a permit-style proof.
type TokenPermissions struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

// PermitWitness carries the destination the permit-style transfer is bound to.
type PermitWitness struct {
	To         string `json:"to"`
	ValidAfter string `json:"validAfter,omitempty"`
	Extra      string `json:"extra,omitempty"`
}

// PermitAuthorization is the signed portion of a permit-style proof.
type PermitAuthorization struct {
	From      string           `json:"from"`
	Permitted TokenPermissions `json:"permitted"`
	Spender   string           `json:"spender,omitempty"`
	Nonce     string           `json:"nonce,omitempty"`
	Deadline  string           `json:"deadline,omitempty"`
	Witness   PermitWitness    `json:"witness"`
}

// PermitPayload is a proof carrying a permit-style authorization.
type PermitPayload struct {
	Signature           string              `json:"signature,omitempty"`
	PermitAuthorization PermitAuthorization `json:"permitAuthorization"`
}

func (*PermitPayload) proofPayload() {}

// Details implements ProofPayload.
func (p *PermitPayload) Details() (agentgate.PaymentDetails, error) {
	a := p.PermitAuthorization
	if a.Permitted.Amount == "" || a.Permitted.Token == "" {
		return agentgate.PaymentDetails{}, agentgate.NewError(
			agentgate.ErrCodePaymentProofInvalid,
			"permit authorization requires permitted amount and token")
	}
	if a.Witness.To == "" {
		return agentgate.PaymentDetails{}, agentgate.NewError(
			agentgate.ErrCodePaymentProofInvalid,
			"permit authorization requires a witness destination")
	}
	return agentgate.PaymentDetails{
		From:   a.From,
		To:     a.Witness.To,
		Amount: a.Permitted.Amount,
		Asset:  a.Permitted.Token,
	}, nil
}

// DecodePayload classifies a raw proof payload into one of the two known
// shapes. Shapes are dispatched by structure, not by probing individual
// fields: a payload with an "authorization" object is direct, one with a
// "permitAuthorization" object is permit-style, anything else fails with
// unrecognized_payload_format.
func DecodePayload(raw map[string]interface{}) (ProofPayload, error) {
	switch {
	case isObject(raw["authorization"]):
		p := &DirectPayload{}
		if sig, ok := raw["signature"].(string); ok {
			p.Signature = sig
		}
		if asset, ok := raw["asset"].(string); ok {
			p.Asset = asset
		}
		auth := raw["authorization"].(map[string]interface{})
		p.Authorization = Authorization{
			From:        stringField(auth, "from"),
			To:          stringField(auth, "to"),
			Value:       stringField(auth, "value"),
			ValidAfter:  stringField(auth, "validAfter"),
			ValidBefore: stringField(auth, "validBefore"),
			Nonce:       stringField(auth, "nonce"),
		}
		return p, nil

	case isObject(raw["permitAuthorization"]):
		p := &PermitPayload{}
		if sig, ok := raw["signature"].(string); ok {
			p.Signature = sig
		}
		auth := raw["permitAuthorization"].(map[string]interface{})
		p.PermitAuthorization = PermitAuthorization{
			From:     stringField(auth, "from"),
			Spender:  stringField(auth, "spender"),
			Nonce:    stringField(auth, "nonce"),
			Deadline: stringField(auth, "deadline"),
		}
		if permitted, ok := auth["permitted"].(map[string]interface{}); ok {
			p.PermitAuthorization.Permitted = TokenPermissions{
				Token:  stringField(permitted, "token"),
				Amount: stringField(permitted, "amount"),
			}
		}
		if witness, ok := auth["witness"].(map[string]interface{}); ok {
			p.PermitAuthorization.Witness = PermitWitness{
				To:         stringField(witness, "to"),
				ValidAfter: stringField(witness, "validAfter"),
				Extra:      stringField(witness, "extra"),
			}
		}
		return p, nil

	default:
		return nil, agentgate.NewError(agentgate.ErrCodeUnrecognizedPayload,
			"payload matches no known proof shape")
	}
}

// ValidateStructure classifies the payload and extracts its transfer
// semantics in one step.
func ValidateStructure(raw map[string]interface{}) (agentgate.PaymentDetails, error) {
	payload, err := DecodePayload(raw)
	if err != nil {
		return agentgate.PaymentDetails{}, err
	}
	return payload.Details()
}

// ToMap renders a direct payload as the generic map carried in a proof
// envelope.
func (p *DirectPayload) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"authorization": map[string]interface{}{
			"from":        p.Authorization.From,
			"to":          p.Authorization.To,
			"value":       p.Authorization.Value,
			"validAfter":  p.Authorization.ValidAfter,
			"validBefore": p.Authorization.ValidBefore,
			"nonce":       p.Authorization.Nonce,
		},
	}
	if p.Signature != "" {
		m["signature"] = p.Signature
	}
	if p.Asset != "" {
		m["asset"] = p.Asset
	}
	return m
}

func isObject(v interface{}) bool {
	_, ok := v.(map[string]interface{})
	return ok
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}
