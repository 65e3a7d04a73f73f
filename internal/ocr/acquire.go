package ocr

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/nfe-extract/internal/nfe"
)

// ErrAcquisition is matched by every error AcquireText returns.
var ErrAcquisition = eris.New("ocr: text acquisition failed")

// AcquisitionError reports why no text could be obtained from a document.
type AcquisitionError struct {
	Path string
	Err  error
}

func (e *AcquisitionError) Error() string {
	return "ocr: acquire text from " + e.Path + ": " + e.Err.Error()
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrAcquisition) hold for every AcquisitionError.
func (e *AcquisitionError) Is(target error) bool {
	return target == ErrAcquisition
}

// Acquirer turns a document into text according to its extension.
type Acquirer struct {
	// Native reads the embedded text of PDFs.
	Native Extractor
	// OCR recognizes scanned PDFs and images. Nil disables OCR.
	OCR Extractor
	// MinNativeChars is the character count of the trimmed native text
	// below which a PDF is sent to OCR.
	MinNativeChars int
	// Timeout bounds each OCR call. Zero means no limit beyond ctx.
	Timeout time.Duration
}

// AcquireText returns the text of the document at path. ext is the
// lower-case extension without the dot.
func (a *Acquirer) AcquireText(ctx context.Context, path, ext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &AcquisitionError{Path: path, Err: err}
	}

	switch ext {
	case "xml":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", &AcquisitionError{Path: path, Err: err}
		}
		return XMLText(data), nil
	case "pdf":
		return a.pdfText(ctx, path)
	case "png", "jpg", "jpeg":
		return a.ocrText(ctx, path)
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", &AcquisitionError{Path: path, Err: err}
		}
		return string(data), nil
	}
}

func (a *Acquirer) pdfText(ctx context.Context, path string) (string, error) {
	var native string
	if a.Native != nil {
		text, err := a.Native.ExtractText(ctx, path)
		if err != nil {
			zap.L().Debug("ocr: native pdf text failed", zap.String("path", path), zap.Error(err))
		}
		native = text
	}

	minChars := max(a.MinNativeChars, 1)
	if utf8.RuneCountInString(strings.TrimSpace(native)) >= minChars {
		return native, nil
	}

	text, err := a.ocrText(ctx, path)
	if err == nil {
		return text, nil
	}
	if strings.TrimSpace(native) != "" {
		zap.L().Debug("ocr: falling back to short native text", zap.String("path", path), zap.Error(err))
		return native, nil
	}
	return "", err
}

func (a *Acquirer) ocrText(ctx context.Context, path string) (string, error) {
	if a.OCR == nil {
		return "", &AcquisitionError{Path: path, Err: errors.New("ocr disabled")}
	}
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}

	text, err := a.OCR.ExtractText(ctx, path)
	if err != nil {
		return "", &AcquisitionError{Path: path, Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return "", &AcquisitionError{Path: path, Err: errors.New("ocr produced no text")}
	}
	return text, nil
}

// XMLText joins the non-blank character data of an XML document with
// newlines. Documents that are not well-formed are returned as-is.
func XMLText(data []byte) string {
	decoder := nfe.NewDecoder(bytes.NewReader(data))
	var parts []string
	for {
		tok, err := decoder.Token()
		if err != nil {
			if err == io.EOF {
				return strings.Join(parts, "\n")
			}
			return string(data)
		}
		if cd, ok := tok.(xml.CharData); ok {
			if s := strings.TrimSpace(string(cd)); s != "" {
				parts = append(parts, s)
			}
		}
	}
}
