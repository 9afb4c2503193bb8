package overlay

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/webp"
)

var (
	ErrUnsupportedLogoFormat = errors.New("overlay: unsupported logo format")
	ErrCompositionFailed     = errors.New("overlay: composition failed")
)

type decoder struct {
	name   string
	decode func(io.Reader) (image.Image, error)
}

// Tried in order; the first that succeeds wins.
var logoDecoders = []decoder{
	{"png", png.Decode},
	{"jpeg", jpeg.Decode},
	{"webp", webp.Decode},
}

// DecodeLogo decodes a logo as PNG, then JPEG, then WebP.
func DecodeLogo(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty image", ErrUnsupportedLogoFormat)
	}
	for _, d := range logoDecoders {
		img, err := d.decode(bytes.NewReader(data))
		if err == nil {
			b := img.Bounds()
			if b.Dx() == 0 || b.Dy() == 0 {
				return nil, d.name, fmt.Errorf("%w: zero-sized %s", ErrUnsupportedLogoFormat, d.name)
			}
			return img, d.name, nil
		}
	}
	return nil, "", ErrUnsupportedLogoFormat
}
