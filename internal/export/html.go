package export

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
)

const (
	// Banner is printed at the top of every exported document.
	Banner = "Đề thi tạo bởi MathGenius AI"
	// Footer is printed at the bottom of every exported document.
	Footer = "Generated by MathGenius AI"
)

func sourceLine(source, title string) string {
	if source == "" {
		return title
	}
	return "Nguồn: " + source + " | " + title
}

// HTML renders Markdown inside a standalone printable page. With autoPrint
// the browser print dialog opens once the page has loaded.
func HTML(ctx context.Context, title, source, md string, autoPrint bool) ([]byte, error) {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(Clean(md)), &body); err != nil {
		return nil, fmt.Errorf("convert markdown: %w", err)
	}
	var out bytes.Buffer
	if err := PrintPage(title, source, templ.Raw(body.String()), autoPrint).Render(ctx, &out); err != nil {
		return nil, fmt.Errorf("render page: %w", err)
	}
	return out.Bytes(), nil
}

const printStyle = `
body { font-family: 'Times New Roman', serif; font-size: 12pt; color: #000; background: #fff; margin: 0 auto; max-width: 800px; padding: 24px; }
@page { size: A4; margin: 20mm; }
h1, h2, h3, h4 { font-family: Arial, sans-serif; }
.banner { text-align: center; border-bottom: 2px solid #000; padding-bottom: 12px; margin-bottom: 24px; }
.banner h1 { text-transform: uppercase; font-size: 18pt; margin: 0 0 6px; }
.banner p, footer { color: #555; font-size: 10pt; }
table { width: 100%; border-collapse: collapse; margin: 1em 0; }
th, td { border: 1px solid #000; padding: 6px; text-align: left; vertical-align: top; }
th { background: #f3f4f6; }
pre { border: 1px solid #ccc; padding: 8px; white-space: pre-wrap; }
footer { border-top: 1px solid #ccc; margin-top: 32px; padding-top: 8px; text-align: center; }
@media print { .no-print { display: none; } }
`

const katexHead = `<link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/katex@0.16.9/dist/katex.min.css">
<script defer src="https://cdn.jsdelivr.net/npm/katex@0.16.9/dist/katex.min.js"></script>
<script defer src="https://cdn.jsdelivr.net/npm/katex@0.16.9/dist/contrib/auto-render.min.js"
 onload="renderMathInElement(document.body,{delimiters:[{left:'$$',right:'$$',display:true},{left:'$',right:'$',display:false}],throwOnError:false})"></script>
`

// PrintPage is the standalone page around an exported document.
func PrintPage(title, source string, body templ.Component, autoPrint bool) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!DOCTYPE html><html lang="vi"><head><meta charset="UTF-8"><title>`+
			templ.EscapeString(title+" - "+source)+`</title><style>`+printStyle+`</style>`+katexHead+`</head><body>`); err != nil {
			return err
		}
		if _, err := io.WriteString(w, `<div class="banner"><h1>`+templ.EscapeString(Banner)+`</h1><p>`+
			templ.EscapeString(sourceLine(source, title))+`</p></div><main>`); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		if _, err := io.WriteString(w, `</main><footer>`+templ.EscapeString(Footer)+`</footer>`); err != nil {
			return err
		}
		if autoPrint {
			if _, err := io.WriteString(w, `<script>window.onload=function(){setTimeout(function(){window.print()},800)};</script>`); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</body></html>`)
		return err
	})
}
