// Package gate decides, per inbound request, whether a payment proof is
// required, structurally valid, or absent. It never talks to the network: the
// decision is a pure function of the gate's configuration and the request's
// proof header.
package gate

import (
	"encoding/json"
	"net/http"
	"strings"

	agentgate "github.com/agentgate/agentgate"
	"github.com/agentgate/agentgate/payments"
)

// DefaultFreeTools is the free-list applied when none is configured.
var DefaultFreeTools = []string{"ping"}

// Config is the payment configuration of a guarded server. A nil Config
// makes the gate a no-op for every request.
type Config struct {
	// PayTo is the recipient address for challenged payments.
	PayTo string

	// Price is the required amount in the asset's smallest unit.
	Price string

	// Asset is the token contract the payment must be denominated in.
	Asset string

	// Network is the CAIP-2 network payments must settle on.
	Network agentgate.Network

	// Scheme defaults to "exact".
	Scheme string

	// MaxTimeoutSeconds bounds how long a proof remains acceptable relative
	// to the challenge; it is threaded through to the requirements unchanged
	// and enforced by the settlement facilitator. Defaults to 60.
	MaxTimeoutSeconds int

	// Description is attached to emitted requirements.
	Description string

	// FreeTools bypass the gate entirely. Defaults to DefaultFreeTools.
	FreeTools []string
}

// Decision is the outcome class of a gate evaluation.
type Decision int

const (
	// Allow lets the request proceed to the engine.
	Allow Decision = iota
	// Challenge rejects the request with a 402 carrying requirements.
	Challenge
	// Reject rejects the request with a 402 because the presented proof
	// failed structural validation.
	Reject
)

// Outcome is the full result of evaluating one request.
type Outcome struct {
	Decision Decision

	// Status, Header and Body are set for Challenge and Reject outcomes:
	// the HTTP status (402), the X-PAYMENT-REQUIRED header value and the
	// JSON error body to relay.
	Status int
	Header string
	Body   []byte

	// Details carries the extracted transfer semantics for Allow outcomes
	// on guarded requests; nil for free or ungated requests.
	Details *agentgate.PaymentDetails
}

// Gate evaluates requests against a payment configuration.
type Gate struct {
	cfg   *Config
	codec *payments.Codec
	free  map[string]struct{}
}

// New creates a gate. A nil config produces a gate that allows everything.
// The config is copied; the caller's struct is never modified.
func New(cfg *Config) *Gate {
	g := &Gate{free: make(map[string]struct{})}
	if cfg == nil {
		return g
	}
	own := *cfg
	if own.Scheme == "" {
		own.Scheme = "exact"
	}
	if own.MaxTimeoutSeconds == 0 {
		own.MaxTimeoutSeconds = 60
	}
	tools := own.FreeTools
	if tools == nil {
		tools = DefaultFreeTools
	}
	for _, name := range tools {
		g.free[strings.ToLower(name)] = struct{}{}
	}
	g.cfg = &own
	g.codec = &payments.Codec{DefaultNetwork: own.Network}
	return g
}

// Enabled reports whether the gate carries a payment configuration.
func (g *Gate) Enabled() bool {
	return g.cfg != nil
}

// Requirements builds the server-authoritative requirements for one resource
// path.
func (g *Gate) Requirements(resource string) agentgate.PaymentRequirements {
	return agentgate.PaymentRequirements{
		Scheme:            g.cfg.Scheme,
		Network:           g.cfg.Network,
		MaxAmountRequired: g.cfg.Price,
		Resource:          resource,
		Description:       g.cfg.Description,
		PayTo:             g.cfg.PayTo,
		Asset:             g.cfg.Asset,
		MaxTimeoutSeconds: g.cfg.MaxTimeoutSeconds,
	}
}

// Evaluate decides the fate of one request. resource is the requested HTTP
// path (echoed into emitted requirements), tool is the resource/tool name the
// request targets (matched against the free-list), and proofHeader is the raw
// X-PAYMENT header value, empty when absent.
func (g *Gate) Evaluate(resource, tool, proofHeader string) Outcome {
	if g.cfg == nil {
		return Outcome{Decision: Allow}
	}
	if _, ok := g.free[strings.ToLower(tool)]; ok {
		return Outcome{Decision: Allow}
	}

	env := g.codec.DecodeProofHeader(proofHeader)
	if env == nil {
		return g.challenge(resource, Challenge,
			agentgate.ErrCodePaymentRequired,
			"payment of "+g.cfg.Price+" on "+string(g.cfg.Network)+" is required")
	}

	details, err := payments.ValidateStructure(env.Payload)
	if err != nil {
		code := agentgate.CodeOf(err)
		if code == "" {
			code = agentgate.ErrCodePaymentProofInvalid
		}
		return g.challenge(resource, Reject, code, err.Error())
	}

	return Outcome{Decision: Allow, Details: &details}
}

func (g *Gate) challenge(resource string, decision Decision, code, message string) Outcome {
	body, _ := json.Marshal(map[string]string{
		"error":   code,
		"message": message,
	})
	return Outcome{
		Decision: decision,
		Status:   http.StatusPaymentRequired,
		Header:   g.codec.EncodeRequirements(g.Requirements(resource)),
		Body:     body,
	}
}
