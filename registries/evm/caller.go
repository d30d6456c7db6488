// Package evm reads identity registries over JSON-RPC with go-ethereum. The
// registry is an enumerable ERC-721-style contract; this package implements
// the narrow identity.RegistryCaller surface against it.
package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/agentgate/agentgate/identity"
)

// registryABI covers exactly the read surface the resolver uses.
const registryABI = `[
	{"name":"ownerOf","type":"function","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
	{"name":"getWallet","type":"function","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
	{"name":"tokenURI","type":"function","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"string"}]},
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"tokenOfOwnerByIndex","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"index","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// DefaultCallTimeout bounds one contract read.
const DefaultCallTimeout = 15 * time.Second

const receiptPollInterval = 2 * time.Second

// Caller implements identity.RegistryCaller over an ethclient.
type Caller struct {
	client      *ethclient.Client
	abi         abi.ABI
	callTimeout time.Duration
}

var _ identity.RegistryCaller = (*Caller)(nil)

// Dial opens a caller against one RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*Caller, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	return NewCaller(client), nil
}

// NewCaller wraps an existing ethclient.
func NewCaller(client *ethclient.Client) *Caller {
	parsed, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		// The ABI is a compile-time constant.
		panic(fmt.Sprintf("registries/evm: bad embedded ABI: %v", err))
	}
	return &Caller{client: client, abi: parsed, callTimeout: DefaultCallTimeout}
}

// DialFunc returns the resolver-facing dial hook.
func DialFunc() identity.DialFunc {
	return func(ctx context.Context, rpcURL string) (identity.RegistryCaller, error) {
		return Dial(ctx, rpcURL)
	}
}

// ReadField implements identity.RegistryCaller: it calls a read-only registry
// function and returns its single decoded value.
func (c *Caller) ReadField(ctx context.Context, contract, fn string, args ...interface{}) (interface{}, error) {
	method, ok := c.abi.Methods[fn]
	if !ok {
		return nil, fmt.Errorf("registry has no function %s", fn)
	}

	coerced, err := coerceArgs(method, args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	data, err := c.abi.Pack(fn, coerced...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", fn, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	addr := common.HexToAddress(contract)
	result, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", fn, err)
	}

	outputs, err := c.abi.Unpack(fn, result)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", fn, err)
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("%s returned nothing", fn)
	}
	return outputs[0], nil
}

// WaitForReceipt implements identity.RegistryCaller: it polls until the
// transaction is mined or ctx expires.
func (c *Caller) WaitForReceipt(ctx context.Context, txHash string) error {
	hash := common.HexToHash(txHash)
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.client.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return fmt.Errorf("receipt lookup for %s: %w", txHash, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close releases the underlying RPC connection.
func (c *Caller) Close() {
	c.client.Close()
}

// coerceArgs converts the resolver's plain argument values into the ABI
// binding types the packer expects.
func coerceArgs(method abi.Method, args []interface{}) ([]interface{}, error) {
	if len(args) != len(method.Inputs) {
		return nil, fmt.Errorf("want %d args, got %d", len(method.Inputs), len(args))
	}

	coerced := make([]interface{}, len(args))
	for i, input := range method.Inputs {
		switch input.Type.T {
		case abi.AddressTy:
			s, ok := args[i].(string)
			if !ok {
				return nil, fmt.Errorf("arg %d: address must be a hex string", i)
			}
			coerced[i] = common.HexToAddress(s)

		case abi.UintTy:
			switch n := args[i].(type) {
			case *big.Int:
				coerced[i] = n
			case uint64:
				coerced[i] = new(big.Int).SetUint64(n)
			case int:
				coerced[i] = big.NewInt(int64(n))
			default:
				return nil, fmt.Errorf("arg %d: cannot use %T as uint256", i, args[i])
			}

		default:
			coerced[i] = args[i]
		}
	}
	return coerced, nil
}
