package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomutex/godocx"
	"github.com/gomutex/godocx/docx"
)

// DOCX renders Markdown as a Word document. Math stays as raw LaTeX text.
func DOCX(title, source, md string) ([]byte, error) {
	doc, err := godocx.NewDocument()
	if err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	if _, err := doc.AddHeading(strings.ToUpper(Banner), 0); err != nil {
		return nil, fmt.Errorf("add banner: %w", err)
	}
	doc.AddParagraph(sourceLine(source, title))

	for _, b := range parseBlocks(Clean(md)) {
		switch b.Kind {
		case blockHeading:
			level := uint(b.Level)
			if level > 9 {
				level = 9
			}
			for _, line := range b.Lines {
				if _, err := doc.AddHeading(plainText(line), level); err != nil {
					return nil, fmt.Errorf("add heading: %w", err)
				}
			}
		case blockParagraph:
			for _, line := range b.Lines {
				p := doc.AddParagraph("")
				for _, r := range line {
					addRun(p, r)
				}
			}
		case blockListItem:
			indent := strings.Repeat("    ", b.Level)
			for i, line := range b.Lines {
				prefix := indent
				if i == 0 && b.Marker != "" {
					prefix += b.Marker + " "
				}
				p := doc.AddParagraph(prefix)
				for _, r := range line {
					addRun(p, r)
				}
			}
		case blockCode:
			for _, line := range strings.Split(b.Code, "\n") {
				doc.AddParagraph(line)
			}
		case blockRule:
			doc.AddParagraph(strings.Repeat("_", 40))
		case blockTableRow:
			p := doc.AddParagraph("")
			for i, cell := range b.Cells {
				if i > 0 {
					p.AddText(" | ")
				}
				for _, r := range cell {
					r.Bold = r.Bold || b.Header
					addRun(p, r)
				}
			}
		}
	}
	doc.AddParagraph(Footer)

	dir, err := os.MkdirTemp("", "mathgenius-docx-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "export.docx")
	if err := doc.SaveTo(path); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}
	return os.ReadFile(path)
}

func addRun(p *docx.Paragraph, r run) {
	t := p.AddText(r.Text)
	if r.Bold {
		t.Bold(true)
	}
	if r.Italic {
		t.Italic(true)
	}
}
