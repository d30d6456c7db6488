// Package identity resolves chain-qualified identity references against an
// on-chain registry, fetches and validates the registration record the
// registry points at, and exposes the services an identity declares.
//
// Resolution never panics and never returns a bare error for verification
// failures: every outcome is a Result value whose Err field names the failed
// step, so callers can branch without exception handling and payment is never
// risked against an unverifiable counterpart.
package identity

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	agentgate "github.com/agentgate/agentgate"
)

// Reference is a chain-qualified, registry-qualified identifier for an
// on-ledger identity record. The canonical string form is
// "namespace:chainId:registryAddress#localId"; "/" is accepted as a local-id
// separator alias on input.
type Reference struct {
	Namespace string
	ChainID   uint64
	Registry  string
	LocalID   uint64
}

var referencePattern = regexp.MustCompile(`^([a-z0-9-]+):(\d+):(0x[0-9a-fA-F]{40})[#/](\d+)$`)

// ParseReference parses a reference string in either separator variant.
func ParseReference(ref string) (Reference, error) {
	m := referencePattern.FindStringSubmatch(strings.TrimSpace(ref))
	if m == nil {
		return Reference{}, agentgate.Errorf(agentgate.ErrCodeMalformedReference,
			"reference %q does not match namespace:chainId:registryAddress#localId", ref)
	}
	chainID, err := strconv.ParseUint(m[2], 10, 64)
	if err != nil {
		return Reference{}, agentgate.Errorf(agentgate.ErrCodeMalformedReference,
			"chain id %q out of range", m[2])
	}
	localID, err := strconv.ParseUint(m[4], 10, 64)
	if err != nil {
		return Reference{}, agentgate.Errorf(agentgate.ErrCodeMalformedReference,
			"local id %q out of range", m[4])
	}
	return Reference{
		Namespace: m[1],
		ChainID:   chainID,
		Registry:  m[3],
		LocalID:   localID,
	}, nil
}

// String renders the canonical "#"-separated form.
func (r Reference) String() string {
	return fmt.Sprintf("%s:%d:%s#%d", r.Namespace, r.ChainID, r.Registry, r.LocalID)
}

// RegistryRef renders the registry-qualified prefix without the local id,
// the form used by cross-reference entries.
func (r Reference) RegistryRef() string {
	return fmt.Sprintf("%s:%d:%s", r.Namespace, r.ChainID, r.Registry)
}

// SameRegistry reports whether other points at the same chain and registry
// contract, comparing addresses case-insensitively.
func (r Reference) SameRegistry(chainID uint64, registry string) bool {
	return r.ChainID == chainID && strings.EqualFold(r.Registry, registry)
}
