package ai

import (
	"context"
	"log/slog"
	"strings"

	"invoicechat/internal/pkg/pdfextract"
)

const mimePDF = "application/pdf"

// PDFTextFirst reads the embedded text layer of PDFs locally and only falls
// through to next for scans or non-PDF uploads.
type PDFTextFirst struct {
	next TextExtractor
}

func NewPDFTextFirst(next TextExtractor) *PDFTextFirst {
	return &PDFTextFirst{next: next}
}

func (p *PDFTextFirst) ExtractText(ctx context.Context, data []byte, mimeType string) (string, error) {
	if mimeType == mimePDF {
		text, err := pdfextract.ExtractText(data)
		switch {
		case err != nil:
			slog.WarnContext(ctx, "pdf_text_layer_failed", "error", err)
		case strings.TrimSpace(text) != "":
			return text, nil
		}
	}
	return p.next.ExtractText(ctx, data, mimeType)
}
