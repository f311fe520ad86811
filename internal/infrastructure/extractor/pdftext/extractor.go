// Package pdftext extracts the text layer of uploaded PDFs.
package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/medical-doc-assistant/internal/core/domain"
	"github.com/kirillkom/medical-doc-assistant/internal/core/ports"
)

// Extractor returns an empty string for images and for PDFs without a text layer.
type Extractor struct {
	maxPages int
}

var _ ports.TextExtractor = (*Extractor)(nil)

func NewExtractor(maxPages int) *Extractor {
	if maxPages <= 0 {
		maxPages = 50
	}
	return &Extractor{maxPages: maxPages}
}

func (e *Extractor) Extract(ctx context.Context, doc domain.UploadedDocument) (string, error) {
	if doc.MediaType != domain.MediaTypePDF {
		return "", nil
	}
	return e.extractPDF(ctx, doc.Data)
}

func (e *Extractor) extractPDF(ctx context.Context, data []byte) (text string, err error) {
	// The pdf package panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", domain.WrapError(domain.ErrInvalidInput, "extract pdf text", fmt.Errorf("malformed pdf: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract pdf text", err)
	}

	var b strings.Builder
	pages := min(reader.NumPage(), e.maxPages)
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(pageText)
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String()), nil
}
