package model

import "fmt"

// View is the part of GeneratedContent shown or exported.
type View string

const (
	ViewAnalysis View = "analysis"
	ViewExam     View = "exam"
	ViewSolution View = "solution"
)

// Valid reports whether v is a known view.
func (v View) Valid() bool {
	switch v {
	case ViewAnalysis, ViewExam, ViewSolution:
		return true
	}
	return false
}

// Format is an export target.
type Format string

const (
	FormatHTML     Format = "html"
	FormatDOCX     Format = "docx"
	FormatPDF      Format = "pdf"
	FormatMarkdown Format = "md"
)

// Formats lists every export format.
var Formats = []Format{FormatHTML, FormatDOCX, FormatPDF, FormatMarkdown}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// ContentType returns the MIME type of an exported file.
func (f Format) ContentType() string {
	switch f {
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/markdown; charset=utf-8"
	}
}

// ExportRequest is the body of an export call.
type ExportRequest struct {
	Content GeneratedContent `json:"content"`
	View    View             `json:"view"`
	Name    string           `json:"name"`
}
