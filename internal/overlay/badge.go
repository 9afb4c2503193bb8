package overlay

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

var (
	badgeFill   = color.NRGBA{R: 236, G: 242, B: 250, A: 235}
	badgeBorder = color.NRGBA{R: 30, G: 64, B: 120, A: 255}
	badgeInk    = color.NRGBA{R: 30, G: 64, B: 120, A: 255}
)

var goRegular = sync.OnceValues(func() (*opentype.Font, error) {
	return opentype.Parse(goregular.TTF)
})

// DefaultBadgeTemplate is a plain bordered card used when no template image
// is configured.
func DefaultBadgeTemplate() image.Image {
	const w, h, border = 900, 240, 8
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(badgeBorder), image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(border, border, w-border, h-border), image.NewUniform(badgeFill), image.Point{}, draw.Src)
	return img
}

// RenderBadge writes name centered on tmpl and returns the result as PNG.
func RenderBadge(tmpl image.Image, name string) ([]byte, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty badge name", ErrCompositionFailed)
	}
	if tmpl == nil {
		tmpl = DefaultBadgeTemplate()
	}
	b := tmpl.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), tmpl, b.Min, draw.Src)

	face, err := fitFace(name, float64(b.Dx())*0.85, float64(b.Dy())*0.6)
	if err != nil {
		return nil, err
	}
	defer face.Close()

	m := face.Metrics()
	width := font.MeasureString(face, name).Ceil()
	x := (b.Dx() - width) / 2
	y := (b.Dy() + m.Ascent.Ceil() - m.Descent.Ceil()) / 2

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(badgeInk),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(name)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("%w: badge encode: %v", ErrCompositionFailed, err)
	}
	return buf.Bytes(), nil
}

// fitFace returns the largest face, stepping down from maxHeight, whose
// rendering of text fits within maxWidth.
func fitFace(text string, maxWidth, maxHeight float64) (font.Face, error) {
	f, err := goRegular()
	if err != nil {
		return nil, fmt.Errorf("%w: load font: %v", ErrCompositionFailed, err)
	}
	size := maxHeight
	for {
		face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
		if err != nil {
			return nil, fmt.Errorf("%w: font face: %v", ErrCompositionFailed, err)
		}
		if float64(font.MeasureString(face, text).Ceil()) <= maxWidth || size <= 8 {
			return face, nil
		}
		face.Close()
		size *= 0.9
	}
}
