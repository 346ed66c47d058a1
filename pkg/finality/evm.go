package finality

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"solbridge/pkg/types"
)

// DefaultConfirmations is the block depth required when none is configured
const DefaultConfirmations = 2

// ReceiptReader is the subset of ethclient.Client the EVM checker needs
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// EVMChecker checks receipts on per-chain RPC endpoints
type EVMChecker struct {
	clients       map[types.ChainID]ReceiptReader
	closers       []func()
	confirmations uint64
}

// NewEVMChecker creates a checker over existing clients
func NewEVMChecker(clients map[types.ChainID]ReceiptReader, confirmations uint64) *EVMChecker {
	if confirmations == 0 {
		confirmations = DefaultConfirmations
	}
	return &EVMChecker{clients: clients, confirmations: confirmations}
}

// DialEVM connects to every configured RPC URL, keyed by chain id
func DialEVM(ctx context.Context, rpcURLs map[string]string, confirmations uint64) (*EVMChecker, error) {
	clients := make(map[types.ChainID]ReceiptReader, len(rpcURLs))
	checker := NewEVMChecker(clients, confirmations)

	for chainID, url := range rpcURLs {
		client, err := ethclient.DialContext(ctx, url)
		if err != nil {
			checker.Close()
			return nil, fmt.Errorf("failed to connect to chain %s RPC: %w", chainID, err)
		}
		clients[types.ChainID(chainID)] = client
		checker.closers = append(checker.closers, client.Close)
	}

	return checker, nil
}

// Covers implements ChainScoped
func (e *EVMChecker) Covers(chainID types.ChainID) bool {
	_, ok := e.clients[chainID]
	return ok
}

// IsFinal implements Checker. A transaction that is not yet mined is
// reported as not final without error.
func (e *EVMChecker) IsFinal(ctx context.Context, chainID types.ChainID, txRef string) (bool, error) {
	client, ok := e.clients[chainID]
	if !ok {
		return false, fmt.Errorf("%w: evm chain %s", ErrUnsupportedChain, chainID)
	}

	if !isTxHash(txRef) {
		return false, fmt.Errorf("%w: %q", ErrInvalidReference, txRef)
	}
	hash := common.HexToHash(txRef)

	receipt, err := client.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get transaction receipt: %w", err)
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return false, fmt.Errorf("%w: %s", ErrTransactionFailed, hash.Hex())
	}
	if receipt.BlockNumber == nil {
		return false, nil
	}

	head, err := client.BlockNumber(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get block number: %w", err)
	}

	mined := receipt.BlockNumber.Uint64()
	if head < mined {
		return false, nil
	}
	return head-mined+1 >= e.confirmations, nil
}

// Close releases the dialed clients
func (e *EVMChecker) Close() {
	for _, c := range e.closers {
		c()
	}
}

func isTxHash(s string) bool {
	if len(s) != 66 || !strings.HasPrefix(s, "0x") {
		return false
	}
	for _, r := range s[2:] {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}
