// Package lavapay implements the payment-link protocol of a P2P
// stablecoin client on the Plasma chain: encoding and decoding invoice
// tokens, dispatching token transfers through a connected wallet, and
// reconciling submitted transfers against chain state.
package lavapay

import (
	"context"
	"time"

	"github.com/lava-payment/lavapay-go/clients"
	"github.com/lava-payment/lavapay-go/config"
	"github.com/lava-payment/lavapay-go/dispatch"
	"github.com/lava-payment/lavapay-go/invoice"
	"github.com/lava-payment/lavapay-go/logger"
	"github.com/lava-payment/lavapay-go/metrics"
	"github.com/lava-payment/lavapay-go/registry"
	"github.com/lava-payment/lavapay-go/settlement"
	"github.com/lava-payment/lavapay-go/store"
	"github.com/lava-payment/lavapay-go/types"
)

// Service is the top-level entry point wiring the codec, dispatcher,
// settlement tracking and local stores together.
type Service struct {
	cfg      *config.Config
	registry *registry.Registry
	codec    *invoice.Codec
	reader   settlement.ChainReader
	evm      *clients.EVMReader

	submitter dispatch.TransferSubmitter
	wallet    dispatch.WalletBridge

	history  store.HistoryStore
	contacts store.ContactStore

	logger  logger.Logger
	metrics metrics.Recorder
}

// New creates a Service from the given configuration. A nil cfg loads
// settings from the environment.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		loaded, err := config.LoadConfig()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	entries := registry.Default().Entries()
	for i, entry := range entries {
		switch {
		case entry.ChainID == registry.PlasmaMainnetChainID && cfg.MainnetRPCURL != "":
			entries[i].RPCEndpoints = []string{cfg.MainnetRPCURL}
		case entry.ChainID == registry.PlasmaTestnetChainID && cfg.TestnetRPCURL != "":
			entries[i].RPCEndpoints = []string{cfg.TestnetRPCURL}
		}
	}
	reg, err := registry.New(cfg.PrimaryChainID, entries...)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:      cfg,
		registry: reg,
		logger:   logger.NoopLogger{},
		metrics:  metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.codec = invoice.NewCodec(reg, cfg.BaseURL, cfg.InvoiceTTL)

	if s.reader == nil {
		s.evm = clients.NewEVMReader(reg)
		s.reader = s.evm
	}
	if s.history == nil {
		h, err := store.NewHistoryStore(cfg.Datadir, nil)
		if err != nil {
			return nil, err
		}
		s.history = h
	}
	if s.contacts == nil {
		c, err := store.NewContactStore(cfg.Datadir, nil)
		if err != nil {
			return nil, err
		}
		s.contacts = c
	}
	return s, nil
}

// EncodeInvoice builds a payment request and its shareable artifacts.
func (s *Service) EncodeInvoice(params invoice.EncodeParams) (*invoice.EncodedInvoice, error) {
	return s.codec.Encode(params)
}

// DecodeInvoice parses and validates a bare invoice token.
func (s *Service) DecodeInvoice(token string) (*types.Invoice, error) {
	return s.codec.Decode(token)
}

// DecodeFromTransportURL extracts the token from a share URL, or treats
// the input as a bare token, then decodes it.
func (s *Service) DecodeFromTransportURL(raw string) (*types.Invoice, error) {
	return s.codec.Decode(invoice.FromTransportURL(raw))
}

// InvoiceQR renders the share URL of an encoded invoice as a PNG.
func (s *Service) InvoiceQR(enc *invoice.EncodedInvoice, size int) ([]byte, error) {
	return invoice.QRCode(enc.ShareURL, size)
}

// DispatchPayment submits the transfer an invoice asks for through the
// configured submitter and records it in the payment history.
func (s *Service) DispatchPayment(
	ctx context.Context, inv *types.Invoice, walletChainID int64, feeMode types.FeeMode,
) (*types.SubmissionHandle, error) {
	d := dispatch.NewDispatcher(
		s.registry, s.submitter, s.sponsorship(), s.logger, s.metrics,
	)
	handle, err := d.Dispatch(ctx, inv, walletChainID, feeMode)
	if err != nil {
		return nil, err
	}
	record := store.PaymentRecord{
		TxID:      handle.TxID,
		ChainID:   handle.ChainID,
		InvoiceID: inv.ID,
		Recipient: inv.Recipient,
		Amount:    inv.Amount,
		Memo:      inv.Memo,
		FeeMode:   handle.FeeMode,
		Status:    types.StatusPending,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := s.history.Add(ctx, record); err != nil {
		// The transfer is already on the wire; a history miss must not
		// surface as a payment failure.
		s.logger.Warn("failed to record payment", map[string]any{
			"txId":  handle.TxID,
			"error": err.Error(),
		})
	}
	return handle, nil
}

// TrackSettlement starts watching a submitted transfer. The returned
// tracker keeps the payment history in sync as the status changes.
func (s *Service) TrackSettlement(ctx context.Context, txID string, chainID int64) (*settlement.Tracker, <-chan types.SettlementRecord) {
	tracker := settlement.NewTracker(
		s.reader, txID, chainID,
		settlement.WithIntervals(s.cfg.PollInterval, s.cfg.WarningHorizon, s.cfg.GiveupHorizon),
		settlement.WithLogger(s.logger),
		settlement.WithRecorder(s.metrics),
	)
	updates := tracker.Attach(ctx)

	mirrored := make(chan types.SettlementRecord, 16)
	go func() {
		defer close(mirrored)
		for rec := range updates {
			if rec.Status.Terminal() {
				if err := s.history.UpdateStatus(ctx, txID, rec.Status); err != nil {
					s.logger.Warn("failed to update payment status", map[string]any{
						"txId":  txID,
						"error": err.Error(),
					})
				}
			}
			select {
			case mirrored <- rec:
			default:
			}
			if rec.Status.Terminal() {
				return
			}
		}
	}()
	return tracker, mirrored
}

// EnsureWalletNetwork switches the connected wallet to chainID, adding
// the network first when the wallet does not know it.
func (s *Service) EnsureWalletNetwork(ctx context.Context, chainID int64) error {
	if s.wallet == nil {
		return &types.PayError{
			Code:    types.ErrConfigError,
			Message: "no wallet bridge configured",
		}
	}
	entry, err := s.registry.Resolve(chainID)
	if err != nil {
		return err
	}
	return dispatch.EnsureWalletNetwork(ctx, s.wallet, entry)
}

// ExplorerTxURL returns the block explorer link for a transaction.
func (s *Service) ExplorerTxURL(chainID int64, txID string) (string, error) {
	return s.registry.ExplorerTxURL(chainID, txID)
}

func (s *Service) History() store.HistoryStore  { return s.history }
func (s *Service) Contacts() store.ContactStore { return s.contacts }
func (s *Service) Registry() *registry.Registry { return s.registry }

func (s *Service) sponsorship() dispatch.SponsorshipConfig {
	return dispatch.SponsorshipConfig{
		Enabled:    s.cfg.SponsorshipEnabled,
		RelayerURL: s.cfg.RelayerURL,
	}
}

// Close releases chain connections and local stores.
func (s *Service) Close() {
	if s.evm != nil {
		s.evm.Close()
	}
	if s.history != nil {
		s.history.Close()
	}
	if s.contacts != nil {
		s.contacts.Close()
	}
}
