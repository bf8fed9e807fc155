package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

const noncesABI = `[{"inputs":[{"internalType":"address","name":"","type":"address"}],"name":"nonces","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

// ContractCaller is the read-only slice of an RPC client the nonce reader needs.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ContractNonceReader calls nonces(address) on the claim contract.
type ContractNonceReader struct {
	caller   ContractCaller
	contract common.Address
	abi      abi.ABI
}

// NewContractNonceReader constructs a reader against contract.
func NewContractNonceReader(caller ContractCaller, contract common.Address) (*ContractNonceReader, error) {
	parsed, err := abi.JSON(strings.NewReader(noncesABI))
	if err != nil {
		return nil, err
	}
	return &ContractNonceReader{caller: caller, contract: contract, abi: parsed}, nil
}

// DialNonceReader connects to rpcURL and returns a reader plus the client to close.
func DialNonceReader(ctx context.Context, rpcURL string, contract common.Address) (*ContractNonceReader, *ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial chain rpc: %w", err)
	}
	reader, err := NewContractNonceReader(client, contract)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return reader, client, nil
}

// Nonce implements NonceReader at the latest block.
func (r *ContractNonceReader) Nonce(ctx context.Context, owner common.Address) (*big.Int, error) {
	data, err := r.abi.Pack("nonces", owner)
	if err != nil {
		return nil, err
	}
	to := r.contract
	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call nonces: %w", err)
	}
	values, err := r.abi.Unpack("nonces", out)
	if err != nil {
		return nil, fmt.Errorf("decode nonces: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("decode nonces: expected 1 value, got %d", len(values))
	}
	nonce, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("decode nonces: unexpected type %T", values[0])
	}
	return nonce, nil
}
