package dispatch

import (
	"context"
	"strings"

	"github.com/lava-payment/lavapay-go/types"
)

// WalletBridge is the external wallet-network capability consumed when
// the wallet is not on the invoice's target chain.
type WalletBridge interface {
	SwitchNetwork(ctx context.Context, chainID int64) error
	AddNetwork(ctx context.Context, entry types.NetworkEntry) error
}

// CodedError is implemented by provider errors that carry an EIP-1193
// error code.
type CodedError interface {
	error
	ErrorCode() int
}

// chainNotAddedCode is the EIP-3085/EIP-1193 code wallets return when
// asked to switch to a chain they do not know.
const chainNotAddedCode = 4902

// IsChainNotAddedErr detects the wallet's "unrecognized chain" failure,
// by code when the provider exposes one and by message otherwise.
func IsChainNotAddedErr(err error) bool {
	if err == nil {
		return false
	}
	if coded, ok := err.(CodedError); ok && coded.ErrorCode() == chainNotAddedCode {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unrecognized chain") ||
		strings.Contains(msg, "unknown chain") ||
		strings.Contains(msg, "chain is not added") ||
		strings.Contains(msg, "4902")
}

// EnsureWalletNetwork asks the wallet to switch to the given network.
// If the chain is unknown to the wallet it attempts add-then-switch
// exactly once. Failures are surfaced verbatim; the caller owns the
// user-facing messaging.
func EnsureWalletNetwork(ctx context.Context, bridge WalletBridge, entry types.NetworkEntry) error {
	err := bridge.SwitchNetwork(ctx, entry.ChainID)
	if err == nil {
		return nil
	}
	if !IsChainNotAddedErr(err) {
		return err
	}
	if addErr := bridge.AddNetwork(ctx, entry); addErr != nil {
		return addErr
	}
	return bridge.SwitchNetwork(ctx, entry.ChainID)
}
