package export

import (
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

type run struct {
	Text   string
	Bold   bool
	Italic bool
	Code   bool
}

type blockKind int

const (
	blockParagraph blockKind = iota
	blockHeading
	blockCode
	blockRule
	blockListItem
	blockTableRow
)

// block is a flattened Markdown block used by the DOCX and PDF writers.
type block struct {
	Kind   blockKind
	Level  int     // heading level or list depth
	Marker string  // list bullet or number
	Lines  [][]run // paragraph lines split at hard breaks
	Code   string
	Cells  [][]run
	Header bool
}

func parseBlocks(md string) []block {
	src := []byte(md)
	doc := markdown.Parser().Parse(text.NewReader(src))
	var out []block
	collectBlocks(doc, src, 0, &out)
	return out
}

func collectBlocks(n ast.Node, src []byte, depth int, out *[]block) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch node := c.(type) {
		case *ast.Heading:
			*out = append(*out, block{Kind: blockHeading, Level: node.Level, Lines: inlineLines(node, src)})
		case *ast.Paragraph, *ast.TextBlock:
			*out = append(*out, block{Kind: blockParagraph, Lines: inlineLines(node, src)})
		case *ast.FencedCodeBlock:
			*out = append(*out, block{Kind: blockCode, Code: rawLines(node, src)})
		case *ast.CodeBlock:
			*out = append(*out, block{Kind: blockCode, Code: rawLines(node, src)})
		case *ast.HTMLBlock:
			*out = append(*out, block{Kind: blockCode, Code: rawLines(node, src)})
		case *ast.ThematicBreak:
			*out = append(*out, block{Kind: blockRule})
		case *ast.List:
			collectList(node, src, depth, out)
		case *east.Table:
			collectTable(node, src, out)
		default:
			collectBlocks(c, src, depth, out)
		}
	}
}

func collectList(l *ast.List, src []byte, depth int, out *[]block) {
	index := l.Start
	for item := l.FirstChild(); item != nil; item = item.NextSibling() {
		marker := "•"
		if l.IsOrdered() {
			marker = strconv.Itoa(index) + string(l.Marker)
			index++
		}
		first := true
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			switch node := c.(type) {
			case *ast.Paragraph, *ast.TextBlock:
				b := block{Kind: blockListItem, Level: depth, Lines: inlineLines(node, src)}
				if first {
					b.Marker = marker
				}
				*out = append(*out, b)
			case *ast.List:
				collectList(node, src, depth+1, out)
			default:
				collectBlocks(node, src, depth+1, out)
			}
			first = false
		}
	}
}

func collectTable(t *east.Table, src []byte, out *[]block) {
	for row := t.FirstChild(); row != nil; row = row.NextSibling() {
		_, header := row.(*east.TableHeader)
		b := block{Kind: blockTableRow, Header: header}
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			var runs []run
			for _, line := range inlineLines(cell, src) {
				runs = append(runs, line...)
			}
			b.Cells = append(b.Cells, runs)
		}
		*out = append(*out, b)
	}
}

func rawLines(n ast.Node, src []byte) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(src))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// inlineLines flattens the inline children of n into styled runs, starting a
// new line at every hard break.
func inlineLines(n ast.Node, src []byte) [][]run {
	lines := [][]run{nil}
	var walk func(n ast.Node, style run)
	emit := func(s string, style run) {
		if s == "" {
			return
		}
		style.Text = s
		last := len(lines) - 1
		lines[last] = append(lines[last], style)
	}
	walk = func(n ast.Node, style run) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch node := c.(type) {
			case *ast.Text:
				emit(string(node.Segment.Value(src)), style)
				if node.HardLineBreak() {
					lines = append(lines, nil)
				} else if node.SoftLineBreak() {
					emit(" ", style)
				}
			case *ast.String:
				emit(string(node.Value), style)
			case *ast.CodeSpan:
				s := style
				s.Code = true
				walk(node, s)
			case *ast.Emphasis:
				s := style
				if node.Level >= 2 {
					s.Bold = true
				} else {
					s.Italic = true
				}
				walk(node, s)
			case *ast.AutoLink:
				emit(string(node.URL(src)), style)
			case *ast.RawHTML:
				segs := node.Segments
				for i := 0; i < segs.Len(); i++ {
					seg := segs.At(i)
					emit(string(seg.Value(src)), style)
				}
			default:
				walk(c, style)
			}
		}
	}
	walk(n, run{})

	out := lines[:0]
	for _, l := range lines {
		if len(l) > 0 {
			out = append(out, l)
		}
	}
	return out
}

func plainText(runs []run) string {
	var sb strings.Builder
	for _, r := range runs {
		sb.WriteString(r.Text)
	}
	return sb.String()
}
