package lavapay

import (
	"github.com/lava-payment/lavapay-go/dispatch"
	"github.com/lava-payment/lavapay-go/logger"
	"github.com/lava-payment/lavapay-go/metrics"
	"github.com/lava-payment/lavapay-go/settlement"
	"github.com/lava-payment/lavapay-go/store"
)

type Option func(*Service)

func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.metrics = r
		}
	}
}

// WithChainReader replaces the default JSON-RPC reader, typically with
// a fake in tests.
func WithChainReader(r settlement.ChainReader) Option {
	return func(s *Service) {
		s.reader = r
	}
}

// WithSubmitter sets the wallet-side transfer submitter. Payments
// cannot be dispatched without one.
func WithSubmitter(sub dispatch.TransferSubmitter) Option {
	return func(s *Service) {
		s.submitter = sub
	}
}

// WithWalletBridge sets the wallet network-switching capability.
func WithWalletBridge(w dispatch.WalletBridge) Option {
	return func(s *Service) {
		s.wallet = w
	}
}

func WithHistoryStore(h store.HistoryStore) Option {
	return func(s *Service) {
		s.history = h
	}
}

func WithContactStore(c store.ContactStore) Option {
	return func(s *Service) {
		s.contacts = c
	}
}
