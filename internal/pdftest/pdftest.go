// Package pdftest builds small, fully valid PDF and image fixtures in memory
// so document, compose, render and tool tests need no files on disk.
package pdftest

import (
	"bytes"
	"fmt"
	"strconv"
)

// Page describes one fixture page. CropBox, when set, is [llx lly urx ury].
type Page struct {
	Width, Height float64
	CropBox       *[4]float64
	Rotate        int
}

// Common page sizes in points.
var (
	Letter = Page{Width: 612, Height: 792}
	A4     = Page{Width: 595.28, Height: 841.89}
)

// Size is a shorthand for a page with only a media box.
func Size(w, h float64) Page { return Page{Width: w, Height: h} }

// PDF returns a single-revision PDF with one page per spec. Every page
// carries a filled rectangle so rasterized output is not blank.
func PDF(pages ...Page) []byte {
	var b pdfBuilder
	b.header()

	n := len(pages)
	// 1: catalog, 2: page tree, then page/content pairs.
	kids := make([]string, n)
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 3+2*i)
	}
	b.object(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.object(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", join(kids), n))

	for i, p := range pages {
		pageNr, contentNr := 3+2*i, 4+2*i
		var d bytes.Buffer
		fmt.Fprintf(&d, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %s %s]", num(p.Width), num(p.Height))
		if p.CropBox != nil {
			c := p.CropBox
			fmt.Fprintf(&d, " /CropBox [%s %s %s %s]", num(c[0]), num(c[1]), num(c[2]), num(c[3]))
		}
		if p.Rotate != 0 {
			fmt.Fprintf(&d, " /Rotate %d", p.Rotate)
		}
		fmt.Fprintf(&d, " /Resources << >> /Contents %d 0 R >>", contentNr)
		b.object(pageNr, d.String())

		// Gray level varies per page so pages are distinguishable when rendered.
		gray := float64(i%5) / 5
		content := fmt.Sprintf("q %s g 10 10 %s %s re f Q", num(gray), num(p.Width/2), num(p.Height/2))
		b.object(contentNr, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	b.trailer(1)
	return b.buf.Bytes()
}

// PDFPages returns an n-page Letter document.
func PDFPages(n int) []byte {
	pages := make([]Page, n)
	for i := range pages {
		pages[i] = Letter
	}
	return PDF(pages...)
}

type pdfBuilder struct {
	buf     bytes.Buffer
	offsets []int
}

func (b *pdfBuilder) header() {
	b.buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")
}

func (b *pdfBuilder) object(nr int, body string) {
	for len(b.offsets) < nr {
		b.offsets = append(b.offsets, 0)
	}
	b.offsets[nr-1] = b.buf.Len()
	fmt.Fprintf(&b.buf, "%d 0 obj\n%s\nendobj\n", nr, body)
}

func (b *pdfBuilder) trailer(root int) {
	xref := b.buf.Len()
	size := len(b.offsets) + 1
	fmt.Fprintf(&b.buf, "xref\n0 %d\n", size)
	b.buf.WriteString("0000000000 65535 f \n")
	for _, off := range b.offsets {
		fmt.Fprintf(&b.buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b.buf, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", size, root, xref)
}

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func join(s []string) string {
	var b bytes.Buffer
	for i, v := range s {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(v)
	}
	return b.String()
}
