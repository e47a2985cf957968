// Package dispatch turns a validated invoice into exactly one on-chain
// transfer submission, enforcing network preconditions before any funds
// move.
package dispatch

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lava-payment/lavapay-go/logger"
	"github.com/lava-payment/lavapay-go/metrics"
	"github.com/lava-payment/lavapay-go/registry"
	"github.com/lava-payment/lavapay-go/types"
)

// TransferSubmitter is the wallet-mediated write capability. It may
// reject (user declined, insufficient balance, RPC error); retries
// belong to the wallet transport, not to the dispatcher.
type TransferSubmitter interface {
	SubmitTransfer(ctx context.Context, req types.TransferRequest) (txID string, err error)
}

// SponsorshipConfig describes the paymaster/relayer integration for
// fee-sponsored transfers.
type SponsorshipConfig struct {
	Enabled    bool
	RelayerURL string
}

// Available reports whether sponsored transfers can actually be routed.
func (s SponsorshipConfig) Available() bool {
	return s.Enabled && s.RelayerURL != ""
}

// Dispatcher builds transfer requests from validated invoices and
// submits them through the injected submitter.
type Dispatcher struct {
	registry    *registry.Registry
	submitter   TransferSubmitter
	sponsorship SponsorshipConfig
	log         logger.Logger
	rec         metrics.Recorder
}

func NewDispatcher(
	reg *registry.Registry,
	submitter TransferSubmitter,
	sponsorship SponsorshipConfig,
	log logger.Logger,
	rec metrics.Recorder,
) *Dispatcher {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Dispatcher{
		registry:    reg,
		submitter:   submitter,
		sponsorship: sponsorship,
		log:         log,
		rec:         rec,
	}
}

// Dispatch submits one transfer for the invoice. Preconditions are
// checked in order: the invoice's target network must be supported, the
// wallet must already be on that network (no automatic switching here;
// see EnsureWalletNetwork), and a sponsored request degrades to
// standard when sponsorship is unavailable. The transfer targets the
// network's token contract, never the recipient address or any invoice
// metadata, and the invoice memo is not transmitted.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	inv *types.Invoice,
	walletChainID int64,
	feeMode types.FeeMode,
) (*types.SubmissionHandle, error) {
	started := time.Now()

	entry, err := d.registry.Resolve(inv.ChainID)
	if err != nil {
		return nil, err
	}
	network := entry.Name

	if walletChainID != entry.ChainID {
		return nil, &types.PayError{
			Code: types.ErrNetworkMismatch,
			Message: fmt.Sprintf(
				"wallet is on chain %d but the invoice targets %s (chain %d)",
				walletChainID, entry.DisplayName, entry.ChainID,
			),
			Data: map[string]int64{
				"walletChainId":  walletChainID,
				"invoiceChainId": entry.ChainID,
			},
		}
	}

	if feeMode == "" {
		feeMode = types.FeeModeStandard
	}
	downgraded := false
	if feeMode == types.FeeModeSponsored && !d.sponsorship.Available() {
		feeMode = types.FeeModeStandard
		downgraded = true
		d.log.Warn("sponsorship unavailable, falling back to standard transfer", map[string]any{
			"invoiceId": inv.ID,
			"network":   network,
		})
		d.rec.IncCounter("sponsorship_downgrade", map[string]string{"network": network})
	}

	if d.submitter == nil {
		return nil, &types.PayError{
			Code:    types.ErrConfigError,
			Message: "no transfer submitter configured",
		}
	}

	req, err := buildTransferRequest(inv, entry, feeMode)
	if err != nil {
		return nil, err
	}

	txID, err := d.submitter.SubmitTransfer(ctx, *req)
	if err != nil {
		d.rec.IncCounter("submission_rejected", map[string]string{"network": network})
		// The wallet/provider message is often the only detail
		// available; pass it through verbatim.
		return nil, &types.PayError{
			Code:    types.ErrSubmissionRejected,
			Message: err.Error(),
		}
	}

	d.log.Info("transfer submitted", map[string]any{
		"txId":      txID,
		"invoiceId": inv.ID,
		"network":   network,
		"feeMode":   string(feeMode),
	})
	d.rec.IncCounter("transfer_submitted", map[string]string{"network": network})
	d.rec.ObserveLatency("dispatch", time.Since(started), map[string]string{"network": network})

	return &types.SubmissionHandle{
		TxID:                  txID,
		ChainID:               entry.ChainID,
		FeeMode:               feeMode,
		SponsorshipDowngraded: downgraded,
	}, nil
}

// buildTransferRequest derives the submission payload deterministically
// from a validated invoice and its resolved network entry.
func buildTransferRequest(
	inv *types.Invoice,
	entry types.NetworkEntry,
	feeMode types.FeeMode,
) (*types.TransferRequest, error) {
	amount, err := decimal.NewFromString(inv.Amount)
	if err != nil || !amount.IsPositive() {
		return nil, &types.PayError{
			Code:    types.ErrInvalidAmount,
			Message: fmt.Sprintf("invoice amount %q is not a positive decimal", inv.Amount),
		}
	}

	base := amount.Shift(types.TokenDecimals)
	if !base.IsInteger() {
		return nil, &types.PayError{
			Code:    types.ErrInvalidAmount,
			Message: fmt.Sprintf("amount %s exceeds the token's %d decimal places", inv.Amount, types.TokenDecimals),
		}
	}

	return &types.TransferRequest{
		RecipientAddress:     inv.Recipient,
		Amount:               amount,
		AmountBaseUnits:      new(big.Int).Set(base.BigInt()),
		TokenContractAddress: entry.TokenContractAddress,
		ChainID:              entry.ChainID,
		FeeMode:              feeMode,
	}, nil
}
