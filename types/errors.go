package types

// Error codes. The codec and dispatcher return these as tagged results
// rather than raw provider errors; user-facing messages are derived from
// the code, not from underlying exception text.
const (
	// Codec
	ErrMalformedToken     = "malformed_token"
	ErrUnsupportedVersion = "unsupported_version"
	ErrMissingFields      = "missing_fields"
	ErrExpired            = "expired"
	ErrInvalidRecipient   = "invalid_recipient"
	ErrInvalidAmount      = "invalid_amount"

	// Dispatcher
	ErrUnsupportedNetwork = "unsupported_network"
	ErrNetworkMismatch    = "network_mismatch"
	ErrSubmissionRejected = "submission_rejected"

	// Tracker
	ErrGiveUp = "give_up"

	// Ambient
	ErrConfigError = "config_error"
	ErrStoreError  = "store_error"
)

// PayError is the tagged error returned by every expected failure path.
type PayError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *PayError) Error() string {
	return e.Message
}

// ErrorCode extracts the tag from an error, or "" for untagged errors.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if pe, ok := err.(*PayError); ok {
		return pe.Code
	}
	return ""
}

// IsCode reports whether err is a PayError carrying the given code.
func IsCode(err error, code string) bool {
	return ErrorCode(err) == code
}
