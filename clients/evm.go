// Package clients holds the concrete EVM adapter behind the read-only
// chain capability consumed by settlement tracking.
package clients

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/lava-payment/lavapay-go/registry"
	"github.com/lava-payment/lavapay-go/types"
)

var txHashPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)

// IsTxHash reports whether s looks like an EVM transaction hash.
func IsTxHash(s string) bool {
	return txHashPattern.MatchString(s)
}

// EVMReader reads receipts and block heights over JSON-RPC. Connections
// are dialed lazily per chain, using the first RPC endpoint the network
// registry lists, and reused afterwards.
type EVMReader struct {
	registry *registry.Registry

	mu    sync.Mutex
	conns map[int64]*ethclient.Client
}

func NewEVMReader(reg *registry.Registry) *EVMReader {
	return &EVMReader{
		registry: reg,
		conns:    make(map[int64]*ethclient.Client),
	}
}

func (e *EVMReader) client(chainID int64) (*ethclient.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if c, ok := e.conns[chainID]; ok {
		return c, nil
	}
	entry, err := e.registry.Resolve(chainID)
	if err != nil {
		return nil, err
	}
	if len(entry.RPCEndpoints) == 0 {
		return nil, &types.PayError{
			Code:    types.ErrConfigError,
			Message: fmt.Sprintf("network %d has no RPC endpoint configured", chainID),
		}
	}
	c, err := ethclient.Dial(entry.RPCEndpoints[0])
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s RPC: %w", entry.Name, err)
	}
	e.conns[chainID] = c
	return c, nil
}

// Receipt returns the mined receipt for txID, or (nil, nil) while the
// transaction is still unmined.
func (e *EVMReader) Receipt(ctx context.Context, chainID int64, txID string) (*types.Receipt, error) {
	if !IsTxHash(txID) {
		return nil, fmt.Errorf("malformed transaction hash %q", txID)
	}
	c, err := e.client(chainID)
	if err != nil {
		return nil, err
	}
	receipt, err := c.TransactionReceipt(ctx, common.HexToHash(txID))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &types.Receipt{
		TxID:        txID,
		Status:      receipt.Status,
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
	}, nil
}

// LatestBlock returns the current chain head number.
func (e *EVMReader) LatestBlock(ctx context.Context, chainID int64) (uint64, error) {
	c, err := e.client(chainID)
	if err != nil {
		return 0, err
	}
	return c.BlockNumber(ctx)
}

// Close releases every dialed connection.
func (e *EVMReader) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, c := range e.conns {
		c.Close()
		delete(e.conns, id)
	}
}

const erc20TransferABI = `[{"name":"transfer","type":"function","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}]`

var transferABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc20TransferABI))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// ERC20TransferCalldata packs transfer(address,uint256) calldata for a
// token transfer. The transaction carrying it must target the token
// contract, not the recipient.
func ERC20TransferCalldata(recipient string, amountBaseUnits *big.Int) ([]byte, error) {
	if !common.IsHexAddress(recipient) {
		return nil, fmt.Errorf("invalid recipient address %q", recipient)
	}
	if amountBaseUnits == nil || amountBaseUnits.Sign() <= 0 {
		return nil, fmt.Errorf("transfer amount must be positive")
	}
	return transferABI.Pack("transfer", common.HexToAddress(recipient), amountBaseUnits)
}
