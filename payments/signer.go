package payments

import (
	"context"

	agentgate "github.com/agentgate/agentgate"
)

// AuthorizationRequest is what a connector asks a signer to authorize when
// answering a 402 challenge. Amount is in the asset's smallest unit.
type AuthorizationRequest struct {
	To                string
	Amount            string
	Asset             string
	Network           agentgate.Network
	MaxTimeoutSeconds int
}

// ProofSigner constructs a signed payment proof for an authorization request.
// Implementations own key material and the cryptographic construction; the
// gate on the other side only ever inspects the result structurally.
type ProofSigner interface {
	// Address returns the payer address the proofs will be signed for.
	Address() string

	// SignAuthorization builds and signs a proof payload for the request.
	SignAuthorization(ctx context.Context, req AuthorizationRequest) (ProofPayload, error)
}
