// Package chain produces EIP-712 claim authorizations for the FitRewards
// settlement contract and reads the per-recipient nonce it maintains.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"golang.org/x/crypto/sha3"

	"example.com/fitrewards/internal/domain"
)

// ClaimPrimaryType is the struct name the contract hashes.
const ClaimPrimaryType = "Claim"

// claimTypes must match the contract's CLAIM_TYPEHASH field order exactly.
var claimTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	ClaimPrimaryType: {
		{Name: "to", Type: "address"},
		{Name: "amountWei", Type: "uint256"},
		{Name: "claimIdHash", Type: "bytes32"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
	},
}

// Domain is the EIP-712 domain of the verifying contract.
type Domain struct {
	Name              string
	Version           string
	ChainID           int64
	VerifyingContract common.Address
}

// Claim is the signed message.
type Claim struct {
	To          common.Address
	AmountWei   *big.Int
	ClaimIDHash common.Hash
	Nonce       *big.Int
	Deadline    *big.Int
}

// NonceReader returns the contract's current nonce for a recipient.
type NonceReader interface {
	Nonce(ctx context.Context, owner common.Address) (*big.Int, error)
}

// Signer authorizes on-chain settlement with a custodial key.
type Signer struct {
	key      *ecdsa.PrivateKey
	address  common.Address
	domain   Domain
	nonces   NonceReader
	ttl      time.Duration
	decimals int32
	now      func() time.Time
}

// NewSigner parses hexKey (with or without 0x) and builds a Signer.
func NewSigner(hexKey string, d Domain, nonces NonceReader, ttl time.Duration, decimals int) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse signer key: %w", err)
	}
	if d.ChainID <= 0 {
		return nil, fmt.Errorf("chain id must be positive")
	}
	if d.VerifyingContract == (common.Address{}) {
		return nil, fmt.Errorf("verifying contract required")
	}
	return &Signer{
		key:      key,
		address:  crypto.PubkeyToAddress(key.PublicKey),
		domain:   d,
		nonces:   nonces,
		ttl:      ttl,
		decimals: int32(decimals),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Address is the signer's public address, which the contract must trust.
func (s *Signer) Address() common.Address { return s.address }

// ClaimIDHash is keccak256 of the claim id's UTF-8 bytes.
func ClaimIDHash(claimID string) common.Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(claimID))
	var out common.Hash
	h.Sum(out[:0])
	return out
}

// Authorize implements domain.Authorizer.
func (s *Signer) Authorize(ctx context.Context, wallet string, claim domain.RewardClaim) (domain.Authorization, error) {
	if !common.IsHexAddress(wallet) {
		return domain.Authorization{}, domain.ErrInvalidWallet
	}
	to := common.HexToAddress(wallet)

	amountWei := claim.Amount.Shift(s.decimals).BigInt()
	if amountWei.Sign() <= 0 {
		return domain.Authorization{}, fmt.Errorf("claim %s has no positive amount", claim.ID)
	}

	nonce, err := s.nonces.Nonce(ctx, to)
	if err != nil {
		return domain.Authorization{}, fmt.Errorf("read nonce: %w", err)
	}

	deadline := s.now().Add(s.ttl).Unix()
	msg := Claim{
		To:          to,
		AmountWei:   amountWei,
		ClaimIDHash: ClaimIDHash(claim.ID),
		Nonce:       nonce,
		Deadline:    big.NewInt(deadline),
	}
	sig, err := s.Sign(msg)
	if err != nil {
		return domain.Authorization{}, err
	}

	return domain.Authorization{
		ClaimID:     claim.ID,
		Wallet:      to.Hex(),
		Amount:      claim.Amount,
		AmountWei:   amountWei.String(),
		ClaimIDHash: msg.ClaimIDHash.Hex(),
		Nonce:       nonce.String(),
		Deadline:    deadline,
		Signature:   hexutil.Encode(sig),
	}, nil
}

// TypedData builds the EIP-712 payload for msg.
func (s *Signer) TypedData(msg Claim) apitypes.TypedData {
	return apitypes.TypedData{
		Types:       claimTypes,
		PrimaryType: ClaimPrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              s.domain.Name,
			Version:           s.domain.Version,
			ChainId:           (*math.HexOrDecimal256)(big.NewInt(s.domain.ChainID)),
			VerifyingContract: s.domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"to":          msg.To.Hex(),
			"amountWei":   msg.AmountWei.String(),
			"claimIdHash": msg.ClaimIDHash.Hex(),
			"nonce":       msg.Nonce.String(),
			"deadline":    msg.Deadline.String(),
		},
	}
}

// Digest returns the EIP-712 hash the contract recovers the signer from.
func (s *Signer) Digest(msg Claim) ([]byte, error) {
	digest, _, err := apitypes.TypedDataAndHash(s.TypedData(msg))
	if err != nil {
		return nil, fmt.Errorf("hash typed data: %w", err)
	}
	return digest, nil
}

// Sign returns the 65-byte r||s||v signature with v in {27, 28}.
func (s *Signer) Sign(msg Claim) ([]byte, error) {
	digest, err := s.Digest(msg)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, fmt.Errorf("sign claim: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

var _ domain.Authorizer = (*Signer)(nil)
