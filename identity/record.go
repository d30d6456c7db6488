package identity

import (
	"strconv"
	"strings"
)

// Well-known service kinds matched case-insensitively against declared
// service names.
const (
	// ServiceMCP is the RPC-engine (tool invocation) service kind.
	ServiceMCP = "mcp"
	// ServiceA2A is the agent-to-agent messaging service kind.
	ServiceA2A = "a2a"
)

// Service is one network-accessible endpoint an identity declares.
type Service struct {
	Name     string   `json:"name"`
	Endpoint string   `json:"endpoint"`
	Version  string   `json:"version,omitempty"`
	Skills   []string `json:"skills,omitempty"`
	Domains  []string `json:"domains,omitempty"`
}

// CrossReference is a record's self-pointer back to the ledger entry that
// hosts it.
type CrossReference struct {
	LocalID     uint64 `json:"localId"`
	RegistryRef string `json:"registryRef"`
}

// Record is the off-chain registration document a ledger-recorded URI points
// to. It is immutable once fetched within a verification call.
type Record struct {
	Type            string           `json:"type,omitempty"`
	Name            string           `json:"name"`
	Description     string           `json:"description,omitempty"`
	Services        []Service        `json:"services,omitempty"`
	SupportsPayment bool             `json:"supportsPayment,omitempty"`
	Active          bool             `json:"active,omitempty"`
	CrossReferences []CrossReference `json:"crossReferences,omitempty"`
}

// Service returns the declared service whose name matches kind
// case-insensitively, or nil.
func (r *Record) Service(kind string) *Service {
	for i := range r.Services {
		if strings.EqualFold(r.Services[i].Name, kind) {
			return &r.Services[i]
		}
	}
	return nil
}

// ClaimedBy reports whether the record carries a cross-reference back to the
// exact (chainId, registry, localId) that produced it. Without such a
// back-reference a fetched record is never trusted: a forged or relocated
// document must not be accepted as authoritative for an identity it does not
// claim.
func (r *Record) ClaimedBy(ref Reference) bool {
	for _, cr := range r.CrossReferences {
		if cr.LocalID != ref.LocalID {
			continue
		}
		target, err := ParseReference(cr.RegistryRef + "#" + strconv.FormatUint(cr.LocalID, 10))
		if err != nil {
			continue
		}
		if ref.SameRegistry(target.ChainID, target.Registry) {
			return true
		}
	}
	return false
}
