// Package export renders generated exams for printing and download.
package export

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/pavelanni/mathgenius/internal/model"
)

// PartSeparator joins the exam and its solution in a combined document.
const PartSeparator = "\n\n---\n\n"

// DefaultName is used when the upload had no usable file name.
const DefaultName = "de-thi"

// ErrEmptyContent is returned when the selected view has no text.
var ErrEmptyContent = errors.New("nothing to export")

var inlineOption = regexp.MustCompile(`([^\n])\s+([A-D]\.)`)

// Clean repairs common formatting problems in model output: escaped
// newlines, multiple-choice options run together on one line, and soft
// breaks that Markdown would join.
func Clean(md string) string {
	s := strings.ReplaceAll(md, `\n`, "\n")
	s = inlineOption.ReplaceAllString(s, "$1\n$2")
	return strings.ReplaceAll(s, "\n", "  \n")
}

// Document returns the Markdown for a view. The exam and solution views both
// export the full exam followed by its solution.
func Document(c model.GeneratedContent, view model.View) (string, error) {
	if !view.Valid() {
		return "", fmt.Errorf("unknown view %q", view)
	}
	var out string
	switch {
	case view == model.ViewAnalysis:
		out = c.Analysis
	case c.Shape == model.ShapeTwoVariant:
		out = joinParts(c.Exam1, c.Exam2)
	default:
		out = joinParts(c.ExamContent, c.DetailedSolution)
	}
	if strings.TrimSpace(out) == "" {
		return "", ErrEmptyContent
	}
	return out, nil
}

func joinParts(a, b string) string {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return a + b
	}
	return a + PartSeparator + b
}

// Title is the heading printed above a view.
func Title(view model.View) string {
	switch view {
	case model.ViewAnalysis:
		return "Phân tích Ma trận"
	case model.ViewSolution:
		return "Lời giải chi tiết"
	default:
		return "Đề thi"
	}
}

// FileName builds the download name from the uploaded file name.
func FileName(displayName string, view model.View, format model.Format) string {
	base := filepath.Base(strings.TrimSpace(displayName))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	name := Slug(base)
	if name == "" {
		name = DefaultName
	}
	suffix := "de-va-loi-giai"
	if view == model.ViewAnalysis {
		suffix = "phan-tich"
	}
	return name + "_" + suffix + "." + string(format)
}

// Fold strips diacritics, mapping đ to d.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.NewReplacer("đ", "d", "Đ", "D").Replace(out)
}

// Slug returns a lower-case ASCII name made of letters, digits and dashes.
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(Fold(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
