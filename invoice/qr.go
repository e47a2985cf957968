package invoice

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/lava-payment/lavapay-go/types"
)

// DefaultQRSize is the pixel size used when QRCode is called with a
// non-positive size.
const DefaultQRSize = 256

// QRCode renders a share payload (token or share URL) as a PNG. The
// scanner side accepts either form, see FromTransportURL.
func QRCode(payload string, size int) ([]byte, error) {
	if payload == "" {
		return nil, &types.PayError{
			Code:    types.ErrMalformedToken,
			Message: "cannot render an empty payload",
		}
	}
	if size <= 0 {
		size = DefaultQRSize
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, size)
	if err != nil {
		return nil, &types.PayError{
			Code:    types.ErrMalformedToken,
			Message: fmt.Sprintf("failed to render QR code: %v", err),
		}
	}
	return png, nil
}
