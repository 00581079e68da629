// Package qr renders signing links as QR codes.
package qr

import (
	"context"
	"fmt"

	"github.com/skip2/go-qrcode"
)

// Encoder renders url as a square image of size pixels.
type Encoder interface {
	Encode(ctx context.Context, url string, size int) ([]byte, error)
}

// PNG encodes QR codes locally as PNG images with medium error recovery.
type PNG struct{}

// Encode returns a PNG QR code for url.
func (PNG) Encode(ctx context.Context, url string, size int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	png, err := qrcode.Encode(url, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encoding qr code: %w", err)
	}
	return png, nil
}
