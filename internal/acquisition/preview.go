package acquisition

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder

	"github.com/disintegration/imaging"
	"github.com/gen2brain/heic"
)

// ErrDisplay means the bytes cannot be decoded as a viewable image.
var ErrDisplay = errors.New("display error")

// previewMaxSide bounds the thumbnail's longest side in pixels.
const previewMaxSide = 800

// Preview is a browser-displayable rendition of an Image.
type Preview struct {
	Format  string `json:"format"` // decoder name, e.g. "jpeg"
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	DataURI string `json:"data_uri"` // PNG thumbnail
}

// Decode checks that img is a viewable image and returns it decoded, along
// with the name of the format.
func Decode(img *Image) (image.Image, string, error) {
	if img == nil || len(img.Data) == 0 {
		return nil, "", fmt.Errorf("%w: empty image", ErrDisplay)
	}

	// Go's standard image package doesn't know HEIC (common on iPhones)
	if isHEICFormat(img.Data) {
		decoded, err := heic.Decode(bytes.NewReader(img.Data))
		if err != nil {
			return nil, "", fmt.Errorf("%w: decoding HEIC/HEIF image: %v", ErrDisplay, err)
		}
		return decoded, "heic", nil
	}

	decoded, format, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDisplay, err)
	}
	return decoded, format, nil
}

// NewPreview decodes img and renders a PNG thumbnail of it.
func NewPreview(img *Image) (*Preview, error) {
	decoded, format, err := Decode(img)
	if err != nil {
		return nil, err
	}

	bounds := decoded.Bounds()
	thumb := imaging.Fit(decoded, previewMaxSide, previewMaxSide, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encoding preview: %w", err)
	}

	return &Preview{
		Format:  format,
		Width:   bounds.Dx(),
		Height:  bounds.Dy(),
		DataURI: "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

// isHEICFormat checks for an ftyp box with a HEIC-related brand at offset 4.
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heif", "mif1", "msf1":
		return true
	}
	return false
}
