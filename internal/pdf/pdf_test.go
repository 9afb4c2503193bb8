package pdf

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"go-aquamark/internal/pdf/pdftest"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 40, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.NRGBA{R: 200, A: 128})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestInspect(t *testing.T) {
	info, err := Inspect(pdftest.Mixed(pdftest.Letter, [2]float64{595, 842}))
	require.NoError(t, err)
	assert.Equal(t, 2, info.PageCount)
	require.Len(t, info.Dims, 2)
	assert.Equal(t, Dim{Width: 612, Height: 792}, info.First())
	assert.Equal(t, Dim{Width: 595, Height: 842}, info.Dims[1])
}

func encrypted(t *testing.T, userPW, ownerPW string) []byte {
	t.Helper()
	var out bytes.Buffer
	conf := model.NewAESConfiguration(userPW, ownerPW, 256)
	require.NoError(t, pdfapi.Encrypt(bytes.NewReader(pdftest.Document(2, pdftest.Letter)), &out, conf))
	return out.Bytes()
}

func TestInspectCountsPages(t *testing.T) {
	info, err := Inspect(pdftest.Document(3, pdftest.Letter))
	require.NoError(t, err)
	assert.Equal(t, 3, info.PageCount)
	assert.Len(t, info.Dims, 3)
}

func TestInspectRejectsGarbage(t *testing.T) {
	_, err := Inspect([]byte("%PDF-1.4 truncated"))
	assert.ErrorIs(t, err, ErrUnreadable)
}

func TestProbe(t *testing.T) {
	t.Run("plain document", func(t *testing.T) {
		assert.NoError(t, Probe(pdftest.Document(1, pdftest.Letter)))
	})
	t.Run("not a pdf", func(t *testing.T) {
		assert.ErrorIs(t, Probe([]byte("definitely not a pdf")), ErrUnreadable)
	})
	t.Run("owner password only", func(t *testing.T) {
		assert.ErrorIs(t, Probe(encrypted(t, "", "owner")), ErrEncrypted)
	})
	t.Run("user password", func(t *testing.T) {
		assert.ErrorIs(t, Probe(encrypted(t, "user", "owner")), ErrUnreadable)
	})
}

func TestStampImageKeepsPages(t *testing.T) {
	doc := pdftest.Document(3, pdftest.Letter)
	out, err := StampImage(doc, testPNG(t), nil, "pos:c, scale:1 rel, rot:0, op:1")
	require.NoError(t, err)

	info, err := Inspect(out)
	require.NoError(t, err)
	assert.Equal(t, 3, info.PageCount)
	assert.Greater(t, len(out), len(doc))
}

func TestStampTextFirstPage(t *testing.T) {
	doc := pdftest.Document(2, pdftest.Letter)
	out, err := StampText(doc, "Disclosure", PageSelection(1), "fontname:Helvetica, points:7, fillcolor:#FF0000, position:bc, scalefactor:1 abs, rotation:0, opacity:1")
	require.NoError(t, err)

	info, err := Inspect(out)
	require.NoError(t, err)
	assert.Equal(t, 2, info.PageCount)
}

func TestPageSelection(t *testing.T) {
	assert.Equal(t, []string{"1", "4"}, PageSelection(1, 4))
	assert.Empty(t, PageSelection())
}
