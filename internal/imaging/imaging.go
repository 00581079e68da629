// Package imaging normalizes uploaded photos and drawn signatures before they
// are archived.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"strings"

	"golang.org/x/image/draw"
)

// Size limits for stored images.
const (
	MaxPhotoDimension     = 1600
	MaxSignatureDimension = 800
	JPEGQuality           = 85
)

// MaxSignatureBytes caps the decoded size of a signature payload.
const MaxSignatureBytes = 2 << 20

var allowedMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// ErrNotDataURI is returned for signature payloads that are not a base64
// image data URI.
var ErrNotDataURI = errors.New("signature must be a base64 image data URI")

// Result is a processed image.
type Result struct {
	Data []byte
	MIME string
}

// Process validates a photo by sniffing its bytes, downscales it and
// re-encodes it as JPEG.
func Process(r io.Reader) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading image data: %w", err)
	}

	img, err := decode(data)
	if err != nil {
		return nil, err
	}
	img = downscale(img, MaxPhotoDimension)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}
	return &Result{Data: buf.Bytes(), MIME: "image/jpeg"}, nil
}

// ProcessSignature decodes a "data:image/...;base64," payload as drawn by a
// signature pad and returns it as a downscaled PNG. PNG keeps the transparent
// background.
func ProcessSignature(dataURI string) (*Result, error) {
	data, err := DecodeDataURI(dataURI)
	if err != nil {
		return nil, err
	}
	if len(data) > MaxSignatureBytes {
		return nil, fmt.Errorf("signature image too large: %d bytes", len(data))
	}

	img, err := decode(data)
	if err != nil {
		return nil, err
	}
	img = downscale(img, MaxSignatureDimension)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return &Result{Data: buf.Bytes(), MIME: "image/png"}, nil
}

// DecodeDataURI returns the bytes of a base64 image data URI.
func DecodeDataURI(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "data:image/") {
		return nil, ErrNotDataURI
	}
	header, payload, ok := strings.Cut(s, ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return nil, ErrNotDataURI
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Some signature pads drop the padding.
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, fmt.Errorf("decoding signature: %w", err)
		}
	}
	return data, nil
}

// DataURI encodes data as a base64 data URI.
func DataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func decode(data []byte) (image.Image, error) {
	// Sniff actual MIME type from bytes (not trusting client headers).
	detected := http.DetectContentType(data)
	if !allowedMIME[detected] {
		return nil, fmt.Errorf("unsupported image format: %s (only JPEG and PNG accepted)", detected)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// downscale resizes img so neither side exceeds maxDim, keeping the aspect
// ratio. Smaller images are returned unchanged.
func downscale(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}

	nw, nh := maxDim, maxDim
	if w > h {
		nh = max(1, h*maxDim/w)
	} else {
		nw = max(1, w*maxDim/h)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
