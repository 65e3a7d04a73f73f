package ocr

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/nfe-extract/internal/config"
)

// Tesseract recognizes text with the tesseract CLI. PDFs are first
// rasterized page by page with pdftoppm.
type Tesseract struct {
	tesseractPath string
	pdftoppmPath  string
	lang          string
	dpi           int
	maxPages      int
}

// NewTesseract creates a Tesseract extractor from cfg, filling in defaults
// for empty values.
func NewTesseract(cfg config.OCRConfig) *Tesseract {
	t := &Tesseract{
		tesseractPath: cfg.TesseractPath,
		pdftoppmPath:  cfg.PdfToPPMPath,
		lang:          cfg.TesseractLang,
		dpi:           cfg.DPI,
		maxPages:      cfg.MaxPages,
	}
	if t.tesseractPath == "" {
		t.tesseractPath = "tesseract"
	}
	if t.pdftoppmPath == "" {
		t.pdftoppmPath = "pdftoppm"
	}
	if t.lang == "" {
		t.lang = "por"
	}
	if t.dpi <= 0 {
		t.dpi = 300
	}
	if t.maxPages <= 0 {
		t.maxPages = 10
	}
	return t
}

// ExtractText implements Extractor. Page texts are joined with a blank line.
func (t *Tesseract) ExtractText(ctx context.Context, path string) (string, error) {
	pages := []string{path}
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		dir, err := os.MkdirTemp("", "nfe-ocr-*")
		if err != nil {
			return "", eris.Wrap(err, "ocr: create raster dir")
		}
		defer os.RemoveAll(dir) //nolint:errcheck

		pages, err = t.rasterize(ctx, path, dir)
		if err != nil {
			return "", err
		}
	}

	texts := make([]string, 0, len(pages))
	for _, page := range pages {
		out, err := runTool(ctx, t.tesseractPath, page, "stdout", "-l", t.lang)
		if err != nil {
			return "", err
		}
		texts = append(texts, strings.TrimRight(out, "\n\f "))
	}
	zap.L().Debug("ocr: tesseract done", zap.String("path", path), zap.Int("pages", len(pages)))
	return strings.Join(texts, "\n\n"), nil
}

// rasterize renders up to maxPages pages of pdfPath as PNG files in dir and
// returns them in page order.
func (t *Tesseract) rasterize(ctx context.Context, pdfPath, dir string) ([]string, error) {
	prefix := filepath.Join(dir, "page")
	_, err := runTool(ctx, t.pdftoppmPath,
		"-r", strconv.Itoa(t.dpi),
		"-l", strconv.Itoa(t.maxPages),
		"-png", pdfPath, prefix)
	if err != nil {
		return nil, err
	}

	pages, err := filepath.Glob(prefix + "*.png")
	if err != nil {
		return nil, eris.Wrap(err, "ocr: list raster pages")
	}
	if len(pages) == 0 {
		return nil, eris.Errorf("ocr: pdftoppm produced no pages for %s", pdfPath)
	}
	// pdftoppm zero-pads page numbers to a common width, so lexical order is page order.
	sort.Strings(pages)
	return pages, nil
}
