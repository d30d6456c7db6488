// Package evm signs payment authorizations with an ECDSA key: EIP-712 typed
// data over an EIP-3009 TransferWithAuthorization message, the construction
// settlement facilitators verify on-chain.
package evm

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/agentgate/agentgate/payments"
)

const defaultValidityWindow = 300

// Signer implements payments.ProofSigner over a hex-encoded private key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address

	domainName    string
	domainVersion string
}

// SignerOption configures a Signer.
type SignerOption func(*Signer)

// WithDomain overrides the EIP-712 domain of the signed authorization. The
// default, "USDC" version "2", matches the canonical USDC deployment.
func WithDomain(name, version string) SignerOption {
	return func(s *Signer) {
		s.domainName = name
		s.domainVersion = version
	}
}

// NewSigner creates a signer from a hex private key, with or without the 0x
// prefix.
func NewSigner(privateKeyHex string, opts ...SignerOption) (*Signer, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	s := &Signer{
		privateKey:    privateKey,
		address:       crypto.PubkeyToAddress(privateKey.PublicKey),
		domainName:    "USDC",
		domainVersion: "2",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Address implements payments.ProofSigner.
func (s *Signer) Address() string {
	return s.address.Hex()
}

// SignAuthorization implements payments.ProofSigner. The validity window
// opens one minute in the past to absorb clock skew and closes after the
// challenge's timeout.
func (s *Signer) SignAuthorization(_ context.Context, req payments.AuthorizationRequest) (payments.ProofPayload, error) {
	_, chainRef, err := req.Network.Parse()
	if err != nil {
		return nil, err
	}
	chainID, ok := new(big.Int).SetString(chainRef, 10)
	if !ok {
		return nil, fmt.Errorf("network %s has no numeric chain id", req.Network)
	}
	if _, ok := new(big.Int).SetString(req.Amount, 10); !ok {
		return nil, fmt.Errorf("amount %q is not a base-10 integer", req.Amount)
	}

	window := req.MaxTimeoutSeconds
	if window <= 0 {
		window = defaultValidityWindow
	}
	now := time.Now().Unix()
	validAfter := strconv.FormatInt(now-60, 10)
	validBefore := strconv.FormatInt(now+int64(window), 10)

	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("nonce generation failed: %w", err)
	}
	nonceHex := hexutil.Encode(nonce[:])

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": {
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              s.domainName,
			Version:           s.domainVersion,
			ChainId:           (*math.HexOrDecimal256)(chainID),
			VerifyingContract: req.Asset,
		},
		Message: apitypes.TypedDataMessage{
			"from":        s.address.Hex(),
			"to":          req.To,
			"value":       req.Amount,
			"validAfter":  validAfter,
			"validBefore": validBefore,
			"nonce":       nonceHex,
		},
	}

	signature, err := s.signTypedData(typedData)
	if err != nil {
		return nil, err
	}

	return &payments.DirectPayload{
		Signature: hexutil.Encode(signature),
		Asset:     req.Asset,
		Authorization: payments.Authorization{
			From:        s.address.Hex(),
			To:          req.To,
			Value:       req.Amount,
			ValidAfter:  validAfter,
			ValidBefore: validBefore,
			Nonce:       nonceHex,
		},
	}, nil
}

// signTypedData produces the 65-byte (r, s, v) signature over the EIP-712
// digest 0x19 0x01 <domainSeparator> <structHash>, with v adjusted to 27/28.
func (s *Signer) signTypedData(typedData apitypes.TypedData) ([]byte, error) {
	structHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}
	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	raw := []byte{0x19, 0x01}
	raw = append(raw, domainSeparator...)
	raw = append(raw, structHash...)
	digest := crypto.Keccak256(raw)

	signature, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	signature[64] += 27
	return signature, nil
}
