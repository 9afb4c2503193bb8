// Package pdf provides the PDF operations the watermarking service relies on.
//
// Functions:
//   - Probe: Reports whether a document opens without decryption.
//   - Inspect: Returns the page count and per-page dimensions.
//   - StampImage: Stamps a PNG/JPEG image onto the selected pages.
//   - StampText: Stamps a text block onto the selected pages.
//
// All functions work on in-memory byte slices; nothing touches the disk.
package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

var (
	ErrUnreadable = errors.New("pdf: document could not be read")
	ErrEncrypted  = errors.New("pdf: document is encrypted")
)

// Dim is a page size in points.
type Dim struct {
	Width  float64
	Height float64
}

// Info describes a loaded document.
type Info struct {
	PageCount int
	Dims      []Dim
}

// First returns the dimensions of page 1.
func (i Info) First() Dim {
	if len(i.Dims) == 0 {
		return Dim{}
	}
	return i.Dims[0]
}

// Keep pdfcpu from creating its config directory under $HOME; only the core
// fonts are needed.
func init() {
	model.ConfigPath = "disable"
}

func newConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// recovered turns a pdfcpu panic on malformed input into ErrUnreadable.
func recovered(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %v", ErrUnreadable, r)
	}
}

func readContext(data []byte) (ctx *model.Context, err error) {
	defer recovered(&err)
	ctx, err = pdfapi.ReadContext(bytes.NewReader(data), newConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return ctx, nil
}

// Probe fails with ErrUnreadable or ErrEncrypted when the bytes cannot be
// used as-is.
func Probe(data []byte) error {
	ctx, err := readContext(data)
	if err != nil {
		return err
	}
	if ctx.Encrypt != nil {
		return ErrEncrypted
	}
	return nil
}

func Inspect(data []byte) (info Info, err error) {
	ctx, err := readContext(data)
	if err != nil {
		return Info{}, err
	}
	defer recovered(&err)
	// ReadContext leaves PageCount unset.
	if err := ctx.EnsurePageCount(); err != nil {
		return Info{}, fmt.Errorf("%w: page count: %v", ErrUnreadable, err)
	}
	dims, err := ctx.PageDims()
	if err != nil {
		return Info{}, fmt.Errorf("%w: page dimensions: %v", ErrUnreadable, err)
	}
	info = Info{PageCount: ctx.PageCount, Dims: make([]Dim, 0, len(dims))}
	for _, d := range dims {
		info.Dims = append(info.Dims, Dim{Width: d.Width, Height: d.Height})
	}
	return info, nil
}

// StampImage puts img on top of every selected page. A nil selection means
// all pages. desc uses pdfcpu watermark syntax, e.g. "pos:c, scale:1 rel".
func StampImage(data, img []byte, pages []string, desc string) ([]byte, error) {
	wm, err := pdfapi.ImageWatermarkForReader(bytes.NewReader(img), desc, true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("failed to parse image stamp: %w", err)
	}
	return apply(data, pages, wm)
}

// StampText puts a text block on top of every selected page.
func StampText(data []byte, text string, pages []string, desc string) ([]byte, error) {
	wm, err := pdfapi.TextWatermark(text, desc, true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("failed to parse text stamp: %w", err)
	}
	return apply(data, pages, wm)
}

func apply(data []byte, pages []string, wm *model.Watermark) (_ []byte, err error) {
	defer recovered(&err)
	var out bytes.Buffer
	if err := pdfapi.AddWatermarks(bytes.NewReader(data), &out, pages, wm, newConfig()); err != nil {
		return nil, fmt.Errorf("failed to apply stamp: %w", err)
	}
	return out.Bytes(), nil
}

// PageSelection converts 1-based page numbers into a pdfcpu selection.
func PageSelection(pages ...int) []string {
	sel := make([]string, 0, len(pages))
	for _, p := range pages {
		sel = append(sel, strconv.Itoa(p))
	}
	return sel
}
