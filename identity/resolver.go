package identity

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	agentgate "github.com/agentgate/agentgate"
)

// Registry read functions. The registry behaves as an enumerable ERC-721
// collection whose token URI stores the registration record location.
const (
	fnOwnerOf             = "ownerOf"
	fnGetWallet           = "getWallet"
	fnTokenURI            = "tokenURI"
	fnBalanceOf           = "balanceOf"
	fnTokenOfOwnerByIndex = "tokenOfOwnerByIndex"
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// RegistryCaller is the narrow ledger-access collaborator. Implementations
// wrap a concrete chain client; see registries/evm for the ethclient-backed
// one.
type RegistryCaller interface {
	// ReadField calls a read-only contract function and returns its single
	// decoded value.
	ReadField(ctx context.Context, contract, fn string, args ...interface{}) (interface{}, error)

	// WaitForReceipt blocks until the transaction is mined or ctx expires.
	WaitForReceipt(ctx context.Context, txHash string) error
}

// DialFunc opens a RegistryCaller against one RPC endpoint.
type DialFunc func(ctx context.Context, rpcURL string) (RegistryCaller, error)

// ChainConfig describes one supported network.
type ChainConfig struct {
	// Endpoint is the JSON-RPC URL used for registry reads.
	Endpoint string

	// Registry is the default registry contract on this chain, used by
	// owner scans. Resolution always uses the registry named in the
	// reference itself.
	Registry string
}

// Config configures a Resolver.
type Config struct {
	// Chains maps chain id to its configuration. A reference naming a chain
	// absent from this map fails with unsupported_chain unless the caller
	// overrides the endpoint per call.
	Chains map[uint64]ChainConfig

	// Dial opens a caller for an endpoint. Required.
	Dial DialFunc

	// HTTPClient fetches registration records; defaults to
	// http.DefaultClient.
	HTTPClient *http.Client

	// IPFSGateway resolves ipfs:// record URIs; defaults to
	// DefaultIPFSGateway.
	IPFSGateway string

	// FetchTimeout bounds one record fetch; defaults to
	// DefaultFetchTimeout.
	FetchTimeout time.Duration
}

// Result is the outcome of one verification call. It is constructed once and
// never mutated: an invalid result always carries the error naming the failed
// step, alongside whatever was already learned (owner, wallet).
type Result struct {
	Valid         bool
	Reference     Reference
	Owner         string
	PaymentWallet string
	Registration  *Record
	Err           *agentgate.Error
}

// ErrorMessage returns the human-readable failure, or "" for valid results.
func (r Result) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Resolver validates identity references against their registries.
type Resolver struct {
	cfg   Config
	fetch *fetcher
}

// NewResolver creates a resolver. cfg.Dial must be set.
func NewResolver(cfg Config) *Resolver {
	if cfg.Dial == nil {
		panic("identity: Config.Dial is required")
	}
	return &Resolver{
		cfg:   cfg,
		fetch: newFetcher(cfg.HTTPClient, cfg.IPFSGateway, cfg.FetchTimeout),
	}
}

// ResolveOption adjusts one resolution call.
type ResolveOption func(*resolveOptions)

type resolveOptions struct {
	endpoint string
}

// WithEndpoint overrides the configured RPC endpoint for this call, allowing
// resolution on chains the resolver is not otherwise configured for.
func WithEndpoint(rpcURL string) ResolveOption {
	return func(o *resolveOptions) { o.endpoint = rpcURL }
}

// Resolve parses ref, reads its registry entry, fetches its registration
// record and enforces the back-reference invariant. It never returns an
// error: failures come back as Result{Valid: false} with Err naming the step.
func (r *Resolver) Resolve(ctx context.Context, ref string, opts ...ResolveOption) Result {
	var o resolveOptions
	for _, opt := range opts {
		opt(&o)
	}

	parsed, err := ParseReference(ref)
	if err != nil {
		return invalid(Reference{}, err)
	}
	result := Result{Reference: parsed}

	endpoint := o.endpoint
	if endpoint == "" {
		chain, ok := r.cfg.Chains[parsed.ChainID]
		if !ok {
			return invalid(parsed, agentgate.Errorf(agentgate.ErrCodeUnsupportedChain,
				"no RPC endpoint configured for chain %d", parsed.ChainID))
		}
		endpoint = chain.Endpoint
	}

	caller, err := r.cfg.Dial(ctx, endpoint)
	if err != nil {
		return invalid(parsed, agentgate.Errorf(agentgate.ErrCodeConnection,
			"cannot reach chain %d: %v", parsed.ChainID, err))
	}

	owner, err := caller.ReadField(ctx, parsed.Registry, fnOwnerOf, parsed.LocalID)
	if err != nil {
		if isNonexistentTokenError(err) {
			return invalid(parsed, agentgate.Errorf(agentgate.ErrCodeIdentityNotFound,
				"identity %s is not registered: %v", parsed, err))
		}
		return invalid(parsed, agentgate.Errorf(agentgate.ErrCodeConnection,
			"owner lookup failed: %v", err))
	}
	result.Owner = asAddress(owner)

	// The payment wallet is optional: a zero address, or a registry that
	// does not expose one, normalizes to empty.
	if wallet, err := caller.ReadField(ctx, parsed.Registry, fnGetWallet, parsed.LocalID); err == nil {
		if addr := asAddress(wallet); !strings.EqualFold(addr, zeroAddress) {
			result.PaymentWallet = addr
		}
	}

	uriValue, err := caller.ReadField(ctx, parsed.Registry, fnTokenURI, parsed.LocalID)
	if err != nil {
		result.Err = agentgate.Errorf(agentgate.ErrCodeRegistrationUnreachable,
			"registration URI lookup failed: %v", err)
		return result
	}

	record, err := r.fetch.Fetch(ctx, asString(uriValue))
	if err != nil {
		result.Err = toError(err)
		return result
	}
	result.Registration = record

	if !record.ClaimedBy(parsed) {
		result.Err = agentgate.Errorf(agentgate.ErrCodeBackreferenceMissing,
			"registration record does not reference back to %s", parsed)
		return result
	}

	result.Valid = true
	return result
}

// Endpoint resolves ref and returns the endpoint of the declared service
// matching kind case-insensitively. It returns "" when resolution fails or
// no matching service is declared; it never returns an error.
func (r *Resolver) Endpoint(ctx context.Context, ref, kind string, opts ...ResolveOption) string {
	result := r.Resolve(ctx, ref, opts...)
	if !result.Valid || result.Registration == nil {
		return ""
	}
	if svc := result.Registration.Service(kind); svc != nil {
		return svc.Endpoint
	}
	return ""
}

func invalid(ref Reference, err error) Result {
	return Result{Reference: ref, Err: toError(err)}
}

func toError(err error) *agentgate.Error {
	if e, ok := err.(*agentgate.Error); ok {
		return e
	}
	return agentgate.NewError(agentgate.ErrCodeConnection, err.Error())
}

// isNonexistentTokenError classifies owner-read failures that mean the
// identity was never registered (the lookup reverts) as opposed to transport
// trouble.
func isNonexistentTokenError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "revert") ||
		strings.Contains(msg, "nonexistent") ||
		strings.Contains(msg, "invalid token")
}

func asAddress(v interface{}) string {
	switch a := v.(type) {
	case string:
		return a
	case fmt.Stringer:
		return a.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func asUint64(v interface{}) (uint64, error) {
	switch n := v.(type) {
	case uint64:
		return n, nil
	case int64:
		return uint64(n), nil
	case int:
		return uint64(n), nil
	case interface{ Uint64() uint64 }:
		return n.Uint64(), nil
	case string:
		return strconv.ParseUint(n, 10, 64)
	default:
		return 0, fmt.Errorf("cannot interpret %T as uint64", v)
	}
}
