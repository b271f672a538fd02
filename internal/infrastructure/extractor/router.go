package extractor

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/kirillkom/property-docs/internal/core/domain"
	"github.com/kirillkom/property-docs/internal/core/ports"
	"github.com/kirillkom/property-docs/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/property-docs/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/property-docs/internal/infrastructure/extractor/xlsx"
)

type Format string

const (
	FormatUnknown Format = ""
	FormatText    Format = "text"
	FormatPDF     Format = "pdf"
	FormatXLSX    Format = "xlsx"
)

const xlsxMime = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Router dispatches a source to the extractor of its format.
// Formats without an extractor produce an empty extraction so the upload still goes through.
type Router struct {
	byFormat map[Format]ports.TextExtractor
}

func NewRouter() *Router {
	return NewRouterWith(map[Format]ports.TextExtractor{
		FormatText: plaintext.NewExtractor(),
		FormatPDF:  pdf.NewExtractor(),
		FormatXLSX: xlsx.NewExtractor(),
	})
}

func NewRouterWith(byFormat map[Format]ports.TextExtractor) *Router {
	return &Router{byFormat: byFormat}
}

func (r *Router) Extract(ctx context.Context, src domain.Source) (domain.Extraction, error) {
	format := DetectFormat(src)
	ext, ok := r.byFormat[format]
	if !ok {
		slog.Debug("extraction_skipped_unsupported_format",
			"filename", src.Filename,
			"mime_type", src.MimeType,
		)
		return domain.Extraction{}, nil
	}
	return ext.Extract(ctx, src)
}

// DetectFormat trusts the declared mime type first, then the extension, then magic bytes.
func DetectFormat(src domain.Source) Format {
	mime := strings.ToLower(strings.TrimSpace(src.MimeType))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch {
	case mime == "application/pdf":
		return FormatPDF
	case mime == xlsxMime:
		return FormatXLSX
	case strings.HasPrefix(mime, "text/"):
		return FormatText
	}

	switch strings.ToLower(filepath.Ext(src.Filename)) {
	case ".pdf":
		return FormatPDF
	case ".xlsx":
		return FormatXLSX
	case ".txt", ".csv", ".md":
		return FormatText
	}

	switch {
	case bytes.HasPrefix(src.Data, []byte("%PDF-")):
		return FormatPDF
	case bytes.HasPrefix(src.Data, []byte("PK\x03\x04")) && bytes.Contains(src.Data, []byte("xl/")):
		return FormatXLSX
	}
	return FormatUnknown
}
