package totpx

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"

	"github.com/pquerna/otp"
)

// DefaultQRSize is the edge length in pixels of rendered QR codes.
const DefaultQRSize = 200

// QRCodePNG renders the provisioning URI as a PNG QR code.
func QRCodePNG(uri string, size int) ([]byte, error) {
	key, err := otp.NewKeyFromURL(uri)
	if err != nil {
		return nil, fmt.Errorf("totpx: parse uri: %w", err)
	}

	img, err := key.Image(size, size)
	if err != nil {
		return nil, fmt.Errorf("totpx: render qr: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("totpx: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// QRCodeDataURI is QRCodePNG encoded as a data URI suitable for an <img> tag.
func QRCodeDataURI(uri string, size int) (string, error) {
	raw, err := QRCodePNG(uri, size)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw), nil
}
