package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
)

// PDFOptions selects the font used for PDF export. Without a UTF-8 TrueType
// font the built-in Helvetica is used and Vietnamese diacritics are dropped.
type PDFOptions struct {
	FontPath     string
	BoldFontPath string
}

const (
	pdfMargin   = 20.0
	pdfBodySize = 11.0
	pdfLineH    = 6.0
)

type pdfWriter struct {
	pdf       *fpdf.Fpdf
	family    string
	monospace string
	tr        func(string) string
}

// PDF renders Markdown as an A4 document.
func PDF(title, source, md string, opts PDFOptions) ([]byte, error) {
	p := fpdf.New("P", "mm", "A4", "")
	p.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	p.SetAutoPageBreak(true, pdfMargin)
	p.SetTitle(title, true)
	p.SetCreator("MathGenius AI", false)

	w := &pdfWriter{pdf: p, family: "Helvetica", monospace: "Courier"}
	if opts.FontPath != "" {
		bold := opts.BoldFontPath
		if bold == "" {
			bold = opts.FontPath
		}
		p.AddUTF8Font("body", "", opts.FontPath)
		p.AddUTF8Font("body", "I", opts.FontPath)
		p.AddUTF8Font("body", "B", bold)
		p.AddUTF8Font("body", "BI", bold)
		if p.Err() {
			return nil, fmt.Errorf("load font: %w", p.Error())
		}
		w.family, w.monospace = "body", "body"
		w.tr = func(s string) string { return s }
	} else {
		cp := p.UnicodeTranslatorFromDescriptor("")
		w.tr = func(s string) string { return cp(Fold(s)) }
	}

	p.SetFooterFunc(func() {
		p.SetY(-15)
		p.SetFont(w.family, "I", 8)
		p.SetTextColor(128, 128, 128)
		p.CellFormat(0, 10, w.tr(Footer), "", 0, "C", false, 0, "")
		p.SetTextColor(0, 0, 0)
	})
	p.AddPage()
	w.header(title, source)

	for _, b := range parseBlocks(Clean(md)) {
		w.block(b)
	}

	var buf bytes.Buffer
	if err := p.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (w *pdfWriter) header(title, source string) {
	p := w.pdf
	p.SetFont(w.family, "B", 15)
	p.MultiCell(0, 8, w.tr(strings.ToUpper(Banner)), "", "C", false)
	p.SetFont(w.family, "", 9)
	p.MultiCell(0, 5, w.tr(sourceLine(source, title)), "", "C", false)
	w.rule()
	p.Ln(2)
}

func (w *pdfWriter) rule() {
	p := w.pdf
	left, _, right, _ := p.GetMargins()
	width, _ := p.GetPageSize()
	y := p.GetY() + 1
	p.Line(left, y, width-right, y)
	p.Ln(3)
}

func (w *pdfWriter) block(b block) {
	p := w.pdf
	switch b.Kind {
	case blockHeading:
		size := 16.0 - float64(b.Level)
		if size < pdfBodySize {
			size = pdfBodySize
		}
		p.Ln(2)
		p.SetFont(w.family, "B", size)
		for _, line := range b.Lines {
			p.MultiCell(0, size*0.5, w.tr(plainText(line)), "", "L", false)
		}
		p.Ln(1)
	case blockParagraph:
		for _, line := range b.Lines {
			w.line(line)
		}
		p.Ln(2)
	case blockListItem:
		left, _, _, _ := p.GetMargins()
		for i, line := range b.Lines {
			p.SetX(left + float64(b.Level)*6)
			if i == 0 && b.Marker != "" {
				p.SetFont(w.family, "", pdfBodySize)
				p.Write(pdfLineH, w.tr(b.Marker+" "))
			}
			w.line(line)
		}
	case blockCode:
		p.SetFont(w.monospace, "", 9)
		p.MultiCell(0, 4.5, w.tr(b.Code), "", "L", false)
		p.Ln(2)
	case blockRule:
		w.rule()
	case blockTableRow:
		for i, cell := range b.Cells {
			if i > 0 {
				p.SetFont(w.family, "", pdfBodySize)
				p.Write(pdfLineH, " | ")
			}
			for _, r := range cell {
				r.Bold = r.Bold || b.Header
				w.run(r)
			}
		}
		p.Ln(pdfLineH)
	}
}

func (w *pdfWriter) line(runs []run) {
	for _, r := range runs {
		w.run(r)
	}
	w.pdf.Ln(pdfLineH)
}

func (w *pdfWriter) run(r run) {
	style := ""
	if r.Bold {
		style += "B"
	}
	if r.Italic {
		style += "I"
	}
	family := w.family
	if r.Code {
		family = w.monospace
	}
	w.pdf.SetFont(family, style, pdfBodySize)
	w.pdf.Write(pdfLineH, w.tr(r.Text))
}
