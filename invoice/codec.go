// Package invoice implements the versioned, offline invoice wire format:
// encoding payment requests into transportable tokens and validating
// untrusted tokens (QR scans, pasted text, deep links) back into
// structured invoices before any funds move.
package invoice

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lava-payment/lavapay-go/registry"
	"github.com/lava-payment/lavapay-go/types"
)

// PayPath is the deep-link route carrying an invoice query parameter.
const PayPath = "/pay"

// DefaultTTL is the invoice lifetime applied when EncodeParams leaves
// TTL unset.
const DefaultTTL = 15 * time.Minute

var recipientPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// wireInvoice is the bit-exact transport form: compact JSON, then
// standard base64. Field names and types must not change across
// clients.
type wireInvoice struct {
	V       int    `json:"v"`
	ChainID *int64 `json:"chainId,omitempty"`
	Token   string `json:"token,omitempty"`
	To      string `json:"to"`
	Amount  string `json:"amount"`
	ID      string `json:"id"`
	Exp     int64  `json:"exp"` // unix ms
	Memo    string `json:"memo,omitempty"`
}

// versionProbe reads only the version field so that unsupported
// versions are rejected before any other field is interpreted.
type versionProbe struct {
	V *int `json:"v"`
}

// EncodeParams are the payee-side inputs to Encode.
type EncodeParams struct {
	Recipient string `validate:"required,eth_addr"`
	Amount    string `validate:"required"`
	// ChainID zero means the codec's primary network.
	ChainID int64
	Memo    string
	// TTL zero means DefaultTTL.
	TTL time.Duration
}

// EncodedInvoice is the result of Encode: the structured invoice, its
// opaque transport token and the shareable deep link.
type EncodedInvoice struct {
	Invoice  types.Invoice `json:"invoice"`
	Token    string        `json:"token"`
	ShareURL string        `json:"shareUrl"`
}

// Codec encodes and decodes invoice tokens against a network registry.
// Decoding is pure and total: every failure path returns a tagged
// *types.PayError, never a panic.
type Codec struct {
	baseURL  string
	registry *registry.Registry
	ttl      time.Duration
	now      func() time.Time
	validate *validator.Validate
}

// NewCodec builds a codec. baseURL is the origin used for share links,
// without a trailing slash. An invoice that omits its chainId defaults
// to the registry's primary network; the default is part of the codec's
// contract, not an implicit assumption.
func NewCodec(reg *registry.Registry, baseURL string, ttl time.Duration) *Codec {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Codec{
		baseURL:  strings.TrimRight(baseURL, "/"),
		registry: reg,
		ttl:      ttl,
		now:      time.Now,
		validate: validator.New(),
	}
}

// Encode constructs an invoice from local payee inputs and serializes
// it to a transport token plus a shareable URL.
func (c *Codec) Encode(params EncodeParams) (*EncodedInvoice, error) {
	if err := c.validate.Struct(&params); err != nil {
		return nil, encodeValidationError(err)
	}

	amount, err := decimal.NewFromString(params.Amount)
	if err != nil {
		return nil, &types.PayError{
			Code:    types.ErrInvalidAmount,
			Message: fmt.Sprintf("invalid amount %q", params.Amount),
		}
	}
	if !amount.IsPositive() {
		return nil, &types.PayError{
			Code:    types.ErrInvalidAmount,
			Message: "amount must be positive",
		}
	}

	chainID := params.ChainID
	if chainID == 0 {
		chainID = c.registry.PrimaryChainID()
	}
	if _, err := c.registry.Resolve(chainID); err != nil {
		return nil, err
	}

	ttl := params.TTL
	if ttl <= 0 {
		ttl = c.ttl
	}

	inv := types.Invoice{
		Version:   types.ProtocolVersion,
		ChainID:   chainID,
		Token:     types.TokenSymbol,
		Recipient: params.Recipient,
		Amount:    params.Amount,
		ID:        uuid.NewString(),
		ExpiresAt: c.now().Add(ttl).UnixMilli(),
		Memo:      params.Memo,
	}

	wire := wireInvoice{
		V:       inv.Version,
		ChainID: &inv.ChainID,
		Token:   inv.Token,
		To:      inv.Recipient,
		Amount:  inv.Amount,
		ID:      inv.ID,
		Exp:     inv.ExpiresAt,
		Memo:    inv.Memo,
	}
	raw, err := json.Marshal(wire)
	if err != nil {
		return nil, &types.PayError{
			Code:    types.ErrMalformedToken,
			Message: fmt.Sprintf("failed to serialize invoice: %v", err),
		}
	}

	token := base64.StdEncoding.EncodeToString(raw)
	return &EncodedInvoice{
		Invoice:  inv,
		Token:    token,
		ShareURL: fmt.Sprintf("%s%s?invoice=%s", c.baseURL, PayPath, url.QueryEscape(token)),
	}, nil
}

// Decode validates an untrusted transport token and returns the
// structured invoice. Checks run in a fixed order so that callers get
// the most specific error: malformed_token, unsupported_version,
// missing_fields, expired, invalid_recipient, unsupported_network,
// invalid_amount.
func (c *Codec) Decode(token string) (*types.Invoice, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return nil, &types.PayError{
			Code:    types.ErrMalformedToken,
			Message: "invoice token is not valid base64",
		}
	}

	var probe versionProbe
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, &types.PayError{
			Code:    types.ErrMalformedToken,
			Message: "invoice token is not valid JSON",
		}
	}
	if probe.V == nil || *probe.V != types.ProtocolVersion {
		return nil, &types.PayError{
			Code:    types.ErrUnsupportedVersion,
			Message: "unsupported invoice version",
		}
	}

	var wire wireInvoice
	if err := json.Unmarshal(raw, &wire); err != nil {
		// Reached with a valid envelope but wrongly typed fields,
		// e.g. a non-integer chainId.
		return nil, &types.PayError{
			Code:    types.ErrMalformedToken,
			Message: "invoice fields have invalid types",
		}
	}

	var missing []string
	if wire.To == "" {
		missing = append(missing, "to")
	}
	if wire.Amount == "" {
		missing = append(missing, "amount")
	}
	if wire.ID == "" {
		missing = append(missing, "id")
	}
	if wire.Exp == 0 {
		missing = append(missing, "exp")
	}
	if len(missing) > 0 {
		return nil, &types.PayError{
			Code:    types.ErrMissingFields,
			Message: fmt.Sprintf("invoice is missing required fields: %s", strings.Join(missing, ", ")),
			Data:    missing,
		}
	}

	if wire.Exp <= c.now().UnixMilli() {
		return nil, &types.PayError{
			Code:    types.ErrExpired,
			Message: "invoice has expired",
		}
	}

	if !recipientPattern.MatchString(wire.To) {
		return nil, &types.PayError{
			Code:    types.ErrInvalidRecipient,
			Message: "recipient is not a valid address",
		}
	}

	chainID := c.registry.PrimaryChainID()
	if wire.ChainID != nil {
		chainID = *wire.ChainID
	}
	if _, err := c.registry.Resolve(chainID); err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(wire.Amount)
	if err != nil || !amount.IsPositive() {
		return nil, &types.PayError{
			Code:    types.ErrInvalidAmount,
			Message: "invoice amount must be a positive decimal",
		}
	}

	return &types.Invoice{
		Version:   wire.V,
		ChainID:   chainID,
		Token:     wire.Token,
		Recipient: wire.To,
		Amount:    wire.Amount,
		ID:        wire.ID,
		ExpiresAt: wire.Exp,
		Memo:      wire.Memo,
	}, nil
}

// FromTransportURL extracts the invoice token from a scanned or pasted
// payload. A payload that is a pay-route deep link yields its decoded
// invoice parameter; anything else is treated as a bare token.
func FromTransportURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		if u, err := url.Parse(trimmed); err == nil && u.Path == PayPath {
			if inv := u.Query().Get("invoice"); inv != "" {
				return inv
			}
		}
	}
	return trimmed
}

func encodeValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errs, ok := err.(validator.ValidationErrors); ok {
		fieldErrs = errs
	}
	for _, fe := range fieldErrs {
		if fe.Field() == "Recipient" && fe.Tag() == "eth_addr" {
			return &types.PayError{
				Code:    types.ErrInvalidRecipient,
				Message: "recipient is not a valid address",
			}
		}
	}
	return &types.PayError{
		Code:    types.ErrMissingFields,
		Message: fmt.Sprintf("invalid invoice parameters: %v", err),
	}
}
