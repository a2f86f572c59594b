// Package input validates uploaded exam files and encodes them for the model.
package input

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"

	"github.com/pavelanni/mathgenius/internal/model"
)

// MaxSize is the largest accepted upload.
const MaxSize = 10 << 20

// Accepted lists the MIME types a model can read inline.
var Accepted = []string{"application/pdf", "image/jpeg", "image/png", "image/webp"}

var (
	// ErrEmpty is returned for a zero-byte upload.
	ErrEmpty = errors.New("file is empty")
	// ErrTooLarge is returned when the upload exceeds MaxSize.
	ErrTooLarge = fmt.Errorf("file is larger than %d MB", MaxSize>>20)
)

// UnsupportedTypeError reports a file whose content is not an accepted type.
type UnsupportedTypeError struct {
	Detected string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported file type %q (accepted: PDF, JPEG, PNG, WEBP)", e.Detected)
}

// Info describes an accepted upload.
type Info struct {
	MIMEType string
	Size     int
	Pages    int // 0 for images
}

// Read loads at most MaxSize bytes from r and encodes them.
func Read(r io.Reader, name string) (model.EncodedDocument, Info, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxSize+1))
	if err != nil {
		return model.EncodedDocument{}, Info{}, fmt.Errorf("read upload: %w", err)
	}
	return Encode(data, name)
}

// Encode sniffs the content type, validates the file and returns it base64 encoded.
func Encode(data []byte, name string) (model.EncodedDocument, Info, error) {
	if len(data) == 0 {
		return model.EncodedDocument{}, Info{}, ErrEmpty
	}
	if len(data) > MaxSize {
		return model.EncodedDocument{}, Info{}, ErrTooLarge
	}

	mt := mimetype.Detect(data)
	mimeType, ok := accepted(mt)
	if !ok {
		return model.EncodedDocument{}, Info{}, &UnsupportedTypeError{Detected: mt.String()}
	}

	info := Info{MIMEType: mimeType, Size: len(data)}
	if mimeType == "application/pdf" {
		pages, err := PageCount(data)
		if err != nil {
			return model.EncodedDocument{}, Info{}, err
		}
		info.Pages = pages
	}

	doc := model.EncodedDocument{
		Data:        base64.StdEncoding.EncodeToString(data),
		MIMEType:    mimeType,
		DisplayName: filepath.Base(strings.TrimSpace(name)),
	}
	if doc.DisplayName == "." || doc.DisplayName == "/" {
		doc.DisplayName = ""
	}
	slog.Debug("upload encoded", "name", doc.DisplayName, "mime", mimeType, "size", info.Size, "pages", info.Pages)
	return doc, info, nil
}

func accepted(mt *mimetype.MIME) (string, bool) {
	for _, a := range Accepted {
		if mt.Is(a) {
			return a, true
		}
	}
	return "", false
}

// PageCount opens a PDF and returns its number of pages.
func PageCount(data []byte) (pages int, err error) {
	// The pdf reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			pages, err = 0, fmt.Errorf("invalid PDF: %v", r)
		}
	}()
	rd, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PDF: %w", err)
	}
	n := rd.NumPage()
	if n == 0 {
		return 0, errors.New("invalid PDF: no pages")
	}
	return n, nil
}
