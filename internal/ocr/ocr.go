// Package ocr acquires text from invoice documents: XML character data,
// native PDF text, and OCR of scanned PDFs and images.
package ocr

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/nfe-extract/internal/config"
)

// Extractor extracts text content from a document file.
type Extractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// NewExtractor creates the OCR Extractor selected by cfg.Provider. The
// "none" provider returns a nil Extractor, which disables OCR.
func NewExtractor(cfg config.OCRConfig, mistral config.MistralConfig) (Extractor, error) {
	switch cfg.Provider {
	case "tesseract", "":
		return NewTesseract(cfg), nil
	case "mistral":
		if mistral.APIKey == "" {
			return nil, eris.New("ocr: mistral provider requires mistral.api_key")
		}
		return NewMistralOCR(mistral), nil
	case "none":
		return nil, nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}

// NewNativeExtractor creates the Extractor used for embedded PDF text.
func NewNativeExtractor(cfg config.OCRConfig) (Extractor, error) {
	switch cfg.PDFText {
	case "native", "":
		return NativePDF{}, nil
	case "pdftotext":
		return NewPdfToText(cfg.PdfToTextPath), nil
	default:
		return nil, eris.Errorf("ocr: unknown pdf_text %q", cfg.PDFText)
	}
}

// Timeout returns the per-document OCR timeout from cfg.
func Timeout(cfg config.OCRConfig) time.Duration {
	if cfg.TimeoutSecs <= 0 {
		return 0
	}
	return time.Duration(cfg.TimeoutSecs) * time.Second
}
