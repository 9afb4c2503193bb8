// Package overlay builds the raster layer stamped over every page of a
// protected document: a tiled, rotated, faded copy of the owner's logo, an
// optional QR code in the bottom-right corner and an optional hologram in the
// top-right corner. It also renders counterparty badges and resolves
// jurisdiction disclaimers.
//
// Geometry is expressed in PDF points with the origin at the bottom-left of
// the page. The raster is rendered at DPIScale pixels per point.
package overlay

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Params controls overlay geometry. Start from DefaultParams; non-positive
// sizes and opacities fall back to the defaults, while a zero TileGap,
// TileOrigin or TileAngle is honored.
type Params struct {
	LogoWidthFraction float64
	TileGap           float64
	TileOpacity       float64
	TileOrigin        float64
	TileAngle         float64 // degrees, counter-clockwise

	QRSize    float64
	QRInset   float64
	QROpacity float64

	HologramSize    float64
	HologramInset   float64
	HologramOpacity float64

	DPIScale float64
	// MaxPixels caps the longest raster side; DPIScale is lowered to fit.
	MaxPixels int
}

func DefaultParams() Params {
	return Params{
		LogoWidthFraction: 0.35,
		TileGap:           100,
		TileOpacity:       0.15,
		TileOrigin:        0,
		TileAngle:         45,
		QRSize:            50,
		QRInset:           10,
		QROpacity:         0.4,
		HologramSize:      45,
		HologramInset:     10,
		HologramOpacity:   0.7,
		DPIScale:          2,
		MaxPixels:         4000,
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.LogoWidthFraction <= 0 {
		p.LogoWidthFraction = d.LogoWidthFraction
	}
	if p.TileGap < 0 {
		p.TileGap = d.TileGap
	}
	if p.TileOpacity <= 0 {
		p.TileOpacity = d.TileOpacity
	}
	if p.QRSize <= 0 {
		p.QRSize = d.QRSize
	}
	if p.QRInset <= 0 {
		p.QRInset = d.QRInset
	}
	if p.QROpacity <= 0 {
		p.QROpacity = d.QROpacity
	}
	if p.HologramSize <= 0 {
		p.HologramSize = d.HologramSize
	}
	if p.HologramInset <= 0 {
		p.HologramInset = d.HologramInset
	}
	if p.HologramOpacity <= 0 {
		p.HologramOpacity = d.HologramOpacity
	}
	if p.DPIScale <= 0 {
		p.DPIScale = d.DPIScale
	}
	if p.MaxPixels <= 0 {
		p.MaxPixels = d.MaxPixels
	}
	return p
}

// Layer is the content of one overlay.
type Layer struct {
	Logo image.Image
	// QR is the encoded QR content; empty means no QR code.
	QR       string
	Hologram image.Image
}

// Overlay is a page-sized PNG ready to be stamped.
type Overlay struct {
	PNG    []byte
	Width  float64
	Height float64
	Tiles  int
}

type Composer struct {
	params Params
}

func NewComposer(p Params) *Composer {
	return &Composer{params: p.withDefaults()}
}

// TileSize returns the logo tile size in points for a page of width w.
func (c *Composer) TileSize(w float64, logo image.Image) (float64, float64) {
	b := logo.Bounds()
	tw := w * c.params.LogoWidthFraction
	return tw, tw * float64(b.Dy()) / float64(b.Dx())
}

// Build renders the overlay for a w×h page.
func (c *Composer) Build(w, h float64, layer Layer) (*Overlay, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: invalid page size %.1fx%.1f", ErrCompositionFailed, w, h)
	}
	if layer.Logo == nil {
		return nil, fmt.Errorf("%w: missing logo", ErrCompositionFailed)
	}
	p := c.params

	scale := p.DPIScale
	if longest := math.Max(w, h) * scale; longest > float64(p.MaxPixels) {
		scale = float64(p.MaxPixels) / math.Max(w, h)
	}
	canvas := image.NewNRGBA(image.Rect(0, 0, int(math.Ceil(w*scale)), int(math.Ceil(h*scale))))

	tw, th := c.TileSize(w, layer.Logo)
	tile := image.NewNRGBA(image.Rect(0, 0, max(1, int(math.Round(tw*scale))), max(1, int(math.Round(th*scale)))))
	draw.CatmullRom.Scale(tile, tile.Bounds(), layer.Logo, layer.Logo.Bounds(), draw.Src, nil)
	fade(tile, p.TileOpacity)

	placements := TilePlacements(w, h, tw, th, p.TileGap, p.TileOrigin)
	rad := p.TileAngle * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	scx, scy := float64(tile.Bounds().Dx())/2, float64(tile.Bounds().Dy())/2
	for _, r := range placements {
		cx, cy := r.Center()
		pcx, pcy := cx*scale, (h-cy)*scale
		// Raster y grows downwards, so a counter-clockwise turn on the page
		// is (cos, sin; -sin, cos) here.
		m := f64.Aff3{
			cos, sin, pcx - (cos*scx + sin*scy),
			-sin, cos, pcy - (-sin*scx + cos*scy),
		}
		draw.BiLinear.Transform(canvas, m, tile, tile.Bounds(), draw.Over, nil)
	}

	if layer.QR != "" {
		code, err := EncodeQR(layer.QR, int(math.Round(p.QRSize*scale)))
		if err != nil {
			return nil, err
		}
		x0 := int(math.Round((w - p.QRSize - p.QRInset) * scale))
		y0 := int(math.Round((h - p.QRInset - p.QRSize) * scale))
		cb := code.Bounds()
		dr := image.Rect(x0, y0, x0+cb.Dx(), y0+cb.Dy())
		draw.DrawMask(canvas, dr, code, cb.Min, image.NewUniform(color.Alpha{A: alpha(p.QROpacity)}), image.Point{}, draw.Over)
	}

	if layer.Hologram != nil {
		side := max(1, int(math.Round(p.HologramSize*scale)))
		holo := image.NewNRGBA(image.Rect(0, 0, side, side))
		draw.CatmullRom.Scale(holo, holo.Bounds(), layer.Hologram, layer.Hologram.Bounds(), draw.Src, nil)
		fade(holo, p.HologramOpacity)
		x0 := int(math.Round((w - p.HologramSize - p.HologramInset) * scale))
		y0 := int(math.Round(p.HologramInset * scale))
		draw.Draw(canvas, image.Rect(x0, y0, x0+side, y0+side), holo, image.Point{}, draw.Over)
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("%w: encode overlay: %v", ErrCompositionFailed, err)
	}
	return &Overlay{PNG: buf.Bytes(), Width: w, Height: h, Tiles: len(placements)}, nil
}

func alpha(opacity float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, opacity)) * 255))
}

// fade multiplies every pixel's alpha by opacity.
func fade(img *image.NRGBA, opacity float64) {
	if opacity >= 1 {
		return
	}
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = uint8(math.Round(float64(img.Pix[i]) * opacity))
	}
}
