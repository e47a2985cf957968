// Package store persists local payment history and the contact book.
// Records are write-once observations of what the client did; chain
// state remains the source of truth for settlement.
package store

import (
	"context"

	"github.com/lava-payment/lavapay-go/types"
)

// PaymentRecord is one locally observed payment, inbound or outbound.
type PaymentRecord struct {
	TxID      string
	ChainID   int64
	InvoiceID string
	Recipient string
	Amount    string
	Memo      string
	FeeMode   types.FeeMode
	Status    types.SettlementStatus
	CreatedAt int64
}

// Contact is a named recipient address.
type Contact struct {
	Address string
	Name    string
	AddedAt int64
}

// HistoryStore keeps the payment history, keyed by transaction hash.
type HistoryStore interface {
	Add(ctx context.Context, record PaymentRecord) error
	UpdateStatus(ctx context.Context, txID string, status types.SettlementStatus) error
	Get(ctx context.Context, txID string) (*PaymentRecord, error)
	List(ctx context.Context) ([]PaymentRecord, error)
	Close()
}

// ContactStore keeps the contact book, keyed by lowercase address.
type ContactStore interface {
	Upsert(ctx context.Context, contact Contact) error
	Get(ctx context.Context, address string) (*Contact, error)
	List(ctx context.Context) ([]Contact, error)
	Delete(ctx context.Context, address string) error
	Close()
}
