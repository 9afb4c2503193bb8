// Package pdftest builds small, valid PDF documents for tests.
package pdftest

import (
	"bytes"
	"fmt"
)

// Letter is a US Letter page in points.
var Letter = [2]float64{612, 792}

// Document returns a PDF with n pages of the given size.
func Document(n int, size [2]float64) []byte {
	sizes := make([][2]float64, n)
	for i := range sizes {
		sizes[i] = size
	}
	return Mixed(sizes...)
}

// Mixed returns a PDF with one page per entry in sizes.
func Mixed(sizes ...[2]float64) []byte {
	var buf bytes.Buffer
	offsets := []int{}
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")

	// Objects 1 and 2 are the catalog and page tree; each page takes two
	// objects (page dictionary, content stream) starting at 3.
	kids := bytes.Buffer{}
	for i := range sizes {
		fmt.Fprintf(&kids, "%d 0 R ", 3+2*i)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [ %s] /Count %d >>", kids.String(), len(sizes)))
	for i, s := range sizes {
		content := fmt.Sprintf("0 0 m %.0f %.0f l S", s[0], s[1])
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %.0f %.0f] /Resources << >> /Contents %d 0 R >>",
			s[0], s[1], 4+2*i))
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}
