package ocr

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/nfe-extract/internal/config"
)

func TestNewExtractor(t *testing.T) {
	ext, err := NewExtractor(config.OCRConfig{Provider: "tesseract"}, config.MistralConfig{})
	require.NoError(t, err)
	assert.IsType(t, &Tesseract{}, ext)

	ext, err = NewExtractor(config.OCRConfig{Provider: "mistral"}, config.MistralConfig{APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &MistralOCR{}, ext)

	ext, err = NewExtractor(config.OCRConfig{Provider: "none"}, config.MistralConfig{})
	require.NoError(t, err)
	assert.Nil(t, ext)

	_, err = NewExtractor(config.OCRConfig{Provider: "mistral"}, config.MistralConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires mistral.api_key")

	_, err = NewExtractor(config.OCRConfig{Provider: "abbyy"}, config.MistralConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown provider "abbyy"`)
}

func TestNewNativeExtractor(t *testing.T) {
	ext, err := NewNativeExtractor(config.OCRConfig{PDFText: "native"})
	require.NoError(t, err)
	assert.IsType(t, NativePDF{}, ext)

	ext, err = NewNativeExtractor(config.OCRConfig{PDFText: "pdftotext", PdfToTextPath: "/opt/pdftotext"})
	require.NoError(t, err)
	require.IsType(t, &PdfToText{}, ext)
	assert.Equal(t, "/opt/pdftotext", ext.(*PdfToText).binPath)

	_, err = NewNativeExtractor(config.OCRConfig{PDFText: "poppler"})
	assert.Error(t, err)
}

func TestTimeout(t *testing.T) {
	assert.Equal(t, 2*time.Minute, Timeout(config.OCRConfig{TimeoutSecs: 120}))
	assert.Zero(t, Timeout(config.OCRConfig{}))
}

func TestNewTesseract_Defaults(t *testing.T) {
	ts := NewTesseract(config.OCRConfig{})
	assert.Equal(t, "tesseract", ts.tesseractPath)
	assert.Equal(t, "pdftoppm", ts.pdftoppmPath)
	assert.Equal(t, "por", ts.lang)
	assert.Equal(t, 300, ts.dpi)
	assert.Equal(t, 10, ts.maxPages)
}

// writeScript writes an executable shell script and returns its path.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestPdfToText_RunsLayoutMode(t *testing.T) {
	dir := t.TempDir()
	bin := writeScript(t, dir, "pdftotext", `printf '%s %s\n' "$1" "$3"; echo "NOTA FISCAL 000123"`)

	text, err := NewPdfToText(bin).ExtractText(context.Background(), "/tmp/x.pdf")
	require.NoError(t, err)
	assert.Equal(t, "-layout -\nNOTA FISCAL 000123\n", text)
}

func TestPdfToText_Failure(t *testing.T) {
	dir := t.TempDir()
	bin := writeScript(t, dir, "pdftotext", `echo "Syntax Error" >&2; exit 1`)

	_, err := NewPdfToText(bin).ExtractText(context.Background(), "/tmp/x.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Syntax Error")
}

func TestTesseract_RasterizesPDF(t *testing.T) {
	dir := t.TempDir()
	ppm := writeScript(t, dir, "pdftoppm", `touch "$7-2.png" "$7-1.png"`)
	tess := writeScript(t, dir, "tesseract", `echo "pagina $(basename "$1") $4"`)

	ts := NewTesseract(config.OCRConfig{PdfToPPMPath: ppm, TesseractPath: tess})
	text, err := ts.ExtractText(context.Background(), filepath.Join(dir, "scan.PDF"))
	require.NoError(t, err)
	assert.Equal(t, "pagina page-1.png por\n\npagina page-2.png por", text)
}

func TestTesseract_Image(t *testing.T) {
	dir := t.TempDir()
	tess := writeScript(t, dir, "tesseract", `echo "imagem $(basename "$1")"`)

	ts := NewTesseract(config.OCRConfig{PdfToPPMPath: "/nonexistent", TesseractPath: tess})
	text, err := ts.ExtractText(context.Background(), filepath.Join(dir, "nota.png"))
	require.NoError(t, err)
	assert.Equal(t, "imagem nota.png", text)
}

func TestTesseract_NoPages(t *testing.T) {
	dir := t.TempDir()
	ppm := writeScript(t, dir, "pdftoppm", `exit 0`)

	ts := NewTesseract(config.OCRConfig{PdfToPPMPath: ppm, TesseractPath: "/nonexistent"})
	_, err := ts.ExtractText(context.Background(), filepath.Join(dir, "empty.pdf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "produced no pages")
}

type stubExtractor struct {
	text  string
	err   error
	calls int
}

func (s *stubExtractor) ExtractText(context.Context, string) (string, error) {
	s.calls++
	return s.text, s.err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestAcquirer_PDF(t *testing.T) {
	ctx := context.Background()
	pdfPath := writeFile(t, "nota.pdf", "%PDF-1.4")

	t.Run("enough native text skips ocr", func(t *testing.T) {
		native := &stubExtractor{text: "NOTA FISCAL 000123 com texto suficiente"}
		ocr := &stubExtractor{text: "ocr"}
		a := &Acquirer{Native: native, OCR: ocr, MinNativeChars: 10}

		text, err := a.AcquireText(ctx, pdfPath, "pdf")
		require.NoError(t, err)
		assert.Equal(t, native.text, text)
		assert.Zero(t, ocr.calls)
	})

	t.Run("short native text goes to ocr", func(t *testing.T) {
		native := &stubExtractor{text: "  DANFE  "}
		ocr := &stubExtractor{text: "texto reconhecido"}
		a := &Acquirer{Native: native, OCR: ocr, MinNativeChars: 100}

		text, err := a.AcquireText(ctx, pdfPath, "pdf")
		require.NoError(t, err)
		assert.Equal(t, "texto reconhecido", text)
	})

	t.Run("native length counts characters", func(t *testing.T) {
		native := &stubExtractor{text: "EMISSÃO ÇÃ"}
		ocr := &stubExtractor{text: "texto reconhecido"}
		a := &Acquirer{Native: native, OCR: ocr, MinNativeChars: 11}

		text, err := a.AcquireText(ctx, pdfPath, "pdf")
		require.NoError(t, err)
		assert.Equal(t, "texto reconhecido", text)
		assert.Equal(t, 1, ocr.calls)
	})

	t.Run("ocr failure keeps short native text", func(t *testing.T) {
		native := &stubExtractor{text: "DANFE"}
		ocr := &stubExtractor{err: errors.New("tesseract missing")}
		a := &Acquirer{Native: native, OCR: ocr, MinNativeChars: 100}

		text, err := a.AcquireText(ctx, pdfPath, "pdf")
		require.NoError(t, err)
		assert.Equal(t, "DANFE", text)
	})

	t.Run("nothing available", func(t *testing.T) {
		native := &stubExtractor{err: errors.New("damaged")}
		ocr := &stubExtractor{text: "   "}
		a := &Acquirer{Native: native, OCR: ocr, MinNativeChars: 1}

		_, err := a.AcquireText(ctx, pdfPath, "pdf")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrAcquisition)
	})
}

func TestAcquirer_Image(t *testing.T) {
	img := writeFile(t, "nota.jpg", "not really a jpeg")

	_, err := (&Acquirer{}).AcquireText(context.Background(), img, "jpg")
	assert.ErrorIs(t, err, ErrAcquisition)

	ocr := &stubExtractor{text: "NOTA FISCAL"}
	text, err := (&Acquirer{OCR: ocr, Timeout: time.Second}).AcquireText(context.Background(), img, "jpg")
	require.NoError(t, err)
	assert.Equal(t, "NOTA FISCAL", text)
}

func TestAcquirer_TextAndXML(t *testing.T) {
	a := &Acquirer{}
	ctx := context.Background()

	txt := writeFile(t, "nota.txt", "NOTA FISCAL 000123")
	text, err := a.AcquireText(ctx, txt, "txt")
	require.NoError(t, err)
	assert.Equal(t, "NOTA FISCAL 000123", text)

	xmlPath := writeFile(t, "nota.xml", "<NFe><nNF>123</nNF>\n  <xNome>ACME</xNome></NFe>")
	text, err = a.AcquireText(ctx, xmlPath, "xml")
	require.NoError(t, err)
	assert.Equal(t, "123\nACME", text)

	_, err = a.AcquireText(ctx, filepath.Join(t.TempDir(), "missing.csv"), "csv")
	assert.ErrorIs(t, err, ErrAcquisition)
}

func TestAcquirer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&Acquirer{}).AcquireText(ctx, "/tmp/x.txt", "txt")
	assert.ErrorIs(t, err, ErrAcquisition)
}

func TestXMLText_MalformedReturnsRaw(t *testing.T) {
	raw := "<NFe><nNF>123</NFe"
	assert.Equal(t, raw, XMLText([]byte(raw)))
}
