// Package qr renders deposit addresses as PNG QR codes.
package qr

import qrcode "github.com/skip2/go-qrcode"

// PNG encodes text as a 300px QR image.
func PNG(text string) ([]byte, error) {
	return qrcode.Encode(text, qrcode.Medium, 300)
}
