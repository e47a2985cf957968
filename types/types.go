package types

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// ProtocolVersion is the single supported invoice protocol version.
// Tokens carrying any other version are rejected without interpretation.
const ProtocolVersion = 1

// Reference token carried by every invoice.
const (
	TokenSymbol   = "USDT0"
	TokenDecimals = 6
)

// TxStatusSuccess is the receipt status of a successfully executed
// transaction.
const TxStatusSuccess uint64 = 1

// FeeMode selects who pays the network fee for a transfer.
type FeeMode string

const (
	// FeeModeStandard is a direct ERC20 transfer, sender pays gas.
	FeeModeStandard FeeMode = "standard"
	// FeeModeSponsored routes the transfer through a paymaster/relayer
	// that covers the fee.
	FeeModeSponsored FeeMode = "sponsored"
)

// Invoice is a validated, self-contained payment request. It is immutable
// once decoded; raw parsed JSON never crosses the codec boundary.
type Invoice struct {
	Version   int    `json:"version"`
	ChainID   int64  `json:"chainId"`
	Token     string `json:"token"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	ID        string `json:"id"`
	ExpiresAt int64  `json:"expiresAt"` // unix ms
	// Memo is advisory and local-only. It is never part of the
	// on-chain transfer.
	Memo string `json:"memo,omitempty"`
}

// AmountDecimal returns the invoice amount as a decimal. The codec
// guarantees it parses; a zero decimal is returned otherwise.
func (i *Invoice) AmountDecimal() decimal.Decimal {
	d, err := decimal.NewFromString(i.Amount)
	if err != nil {
		return decimal.Decimal{}
	}
	return d
}

// Expiry returns the invoice expiry as a time.Time.
func (i *Invoice) Expiry() time.Time {
	return time.UnixMilli(i.ExpiresAt)
}

// TransferRequest is the submission payload derived from a validated
// invoice and the resolved network entry. It deliberately carries no
// invoice id or memo: the on-chain transfer targets the token contract
// with recipient and amount only.
type TransferRequest struct {
	RecipientAddress     string          `json:"recipientAddress"`
	Amount               decimal.Decimal `json:"amount"`
	AmountBaseUnits      *big.Int        `json:"amountBaseUnits"`
	TokenContractAddress string          `json:"tokenContractAddress"`
	ChainID              int64           `json:"chainId"`
	FeeMode              FeeMode         `json:"feeMode"`
}

// SubmissionHandle is returned by a successful dispatch.
type SubmissionHandle struct {
	TxID    string  `json:"txId"`
	ChainID int64   `json:"chainId"`
	FeeMode FeeMode `json:"feeMode"`
	// SponsorshipDowngraded is set when a sponsored transfer was
	// requested but sponsorship is unavailable and the dispatcher fell
	// back to a standard transfer. The UI must inform the user that
	// fees were not waived.
	SponsorshipDowngraded bool `json:"sponsorshipDowngraded,omitempty"`
}

// SettlementStatus is the tracker's view of a submitted transaction.
type SettlementStatus string

const (
	StatusPending   SettlementStatus = "pending"
	StatusConfirmed SettlementStatus = "confirmed"
	StatusFailed    SettlementStatus = "failed"
	// StatusGiveUp means the tracker stopped watching without a
	// resolution. The transaction may still confirm later; a fresh
	// tracker can resume watching.
	StatusGiveUp SettlementStatus = "give_up"
)

// Terminal reports whether the status stops polling.
func (s SettlementStatus) Terminal() bool {
	return s != StatusPending
}

// SettlementRecord is the mutable state owned by a single tracker
// instance watching one transaction.
type SettlementRecord struct {
	TxID         string `json:"txId"`
	ChainID      int64  `json:"chainId"`
	WatchedSince int64  `json:"watchedSince"` // unix ms
	LastPolledAt int64  `json:"lastPolledAt"` // unix ms

	Status        SettlementStatus `json:"status"`
	Confirmations uint64           `json:"confirmations"`
	BlockNumber   uint64           `json:"blockNumber,omitempty"`
	GasUsed       uint64           `json:"gasUsed,omitempty"`

	// VerifyingTimeout is an advisory annotation set once the warning
	// horizon passes without a receipt. The tracker keeps polling; the
	// UI should suggest checking the block explorer directly.
	VerifyingTimeout bool `json:"verifyingTimeout,omitempty"`
}

// Receipt is the normalized read-only result of a receipt query.
type Receipt struct {
	TxID        string `json:"transactionHash"`
	Status      uint64 `json:"status"`
	BlockNumber uint64 `json:"blockNumber"`
	GasUsed     uint64 `json:"gasUsed"`
}

// Succeeded reports whether the mined transaction executed successfully.
func (r *Receipt) Succeeded() bool {
	return r.Status == TxStatusSuccess
}

// NativeCurrency describes a chain's gas currency, needed when asking a
// wallet to add an unknown network.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// NetworkEntry is an immutable, process-wide description of a supported
// settlement network.
type NetworkEntry struct {
	ChainID              int64          `json:"chainId"`
	Name                 string         `json:"name"`
	DisplayName          string         `json:"displayName"`
	NativeCurrency       NativeCurrency `json:"nativeCurrency"`
	RPCEndpoints         []string       `json:"rpcEndpoints"`
	TokenContractAddress string         `json:"tokenContractAddress"`
	ExplorerBaseURL      string         `json:"explorerBaseUrl"`
}
