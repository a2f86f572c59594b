package export

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pavelanni/mathgenius/internal/model"
)

// File is a rendered export ready for download.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Exporter renders a view of generated content into any supported format.
type Exporter struct {
	PDF       PDFOptions
	AutoPrint bool // HTML pages open the print dialog
}

// Export renders req in the given format.
func (e Exporter) Export(ctx context.Context, req model.ExportRequest, format model.Format) (*File, error) {
	view := req.View
	if view == "" {
		view = model.ViewExam
	}
	md, err := Document(req.Content, view)
	if err != nil {
		return nil, err
	}
	title := Title(view)

	var data []byte
	switch format {
	case model.FormatMarkdown:
		data = []byte(md)
	case model.FormatHTML:
		data, err = HTML(ctx, title, req.Name, md, e.AutoPrint)
	case model.FormatDOCX:
		data, err = DOCX(title, req.Name, md)
	case model.FormatPDF:
		data, err = PDF(title, req.Name, md, e.PDF)
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
	if err != nil {
		return nil, err
	}

	f := &File{
		Name:        FileName(req.Name, view, format),
		ContentType: format.ContentType(),
		Data:        data,
	}
	slog.Debug("exported", "file", f.Name, "view", view, "format", format, "bytes", len(data))
	return f, nil
}
