package utils

import (
	"github.com/skip2/go-qrcode"
)

// DefaultQRSize is the edge length in pixels of generated QR images.
const DefaultQRSize = 256

// GenerateQRCode encodes content as a PNG QR code of the given size.
func GenerateQRCode(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultQRSize
	}
	return qrcode.Encode(content, qrcode.Medium, size)
}
