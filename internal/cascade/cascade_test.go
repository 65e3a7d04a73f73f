package cascade

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/nfe-extract/internal/fields"
	"github.com/sells-group/nfe-extract/internal/model"
	"github.com/sells-group/nfe-extract/internal/nfe"
	"github.com/sells-group/nfe-extract/internal/ocr"
)

// fakeStrategy returns a canned Result and counts invocations.
type fakeStrategy struct {
	kind    model.Strategy
	exts    []string
	result  Result
	doPanic bool
	calls   int
}

func (f *fakeStrategy) Kind() model.Strategy { return f.kind }

func (f *fakeStrategy) Applies(ext string) bool {
	if len(f.exts) == 0 {
		return true
	}
	for _, e := range f.exts {
		if e == ext {
			return true
		}
	}
	return false
}

func (f *fakeStrategy) Extract(context.Context, string, string) Result {
	f.calls++
	if f.doPanic {
		panic("pattern engine exploded")
	}
	return f.result
}

func record(number, taxID string, total int64) model.InvoiceRecord {
	b := model.NewRecordBuilder()
	if number != "" {
		b.SetNumber(number)
	}
	if taxID != "" {
		b.SetIssuerTaxID(taxID)
	}
	if total > 0 {
		b.SetTotal(decimal.NewFromInt(total))
	}
	return b.Build()
}

func TestResolve_ShortCircuitsOnCompleteStructuredRecord(t *testing.T) {
	structured := &fakeStrategy{kind: model.StrategyStructured, exts: []string{"xml"},
		result: Success(record("1", "12345678000199", 100))}
	hybrid := &fakeStrategy{kind: model.StrategyHybrid}
	ocrStrat := &fakeStrategy{kind: model.StrategyOCR, exts: []string{"xml"}}

	out, err := NewController(structured, hybrid, ocrStrat).Resolve(context.Background(), "a.xml", "xml")
	require.NoError(t, err)

	assert.Equal(t, model.StrategyStructured, out.Strategy)
	assert.Equal(t, 1, structured.calls)
	assert.Zero(t, hybrid.calls)
	assert.Zero(t, ocrStrat.calls)
	assert.InDelta(t, 3.0/7.0, out.Completeness, 1e-9)
}

func TestResolve_FailureDoesNotAbortCascade(t *testing.T) {
	structured := &fakeStrategy{kind: model.StrategyStructured,
		result: Failure(errors.New("malformed"))}
	hybrid := &fakeStrategy{kind: model.StrategyHybrid, doPanic: true}
	ocrStrat := &fakeStrategy{kind: model.StrategyOCR,
		result: Success(record("42", "", 10))}

	out, err := NewController(structured, hybrid, ocrStrat).Resolve(context.Background(), "a.pdf", "pdf")
	require.NoError(t, err)

	assert.Equal(t, model.StrategyOCR, out.Strategy)
	assert.Equal(t, "42", out.Record.Number)
	assert.Equal(t, 1, hybrid.calls)
	assert.Equal(t, 1, ocrStrat.calls)
}

func TestResolve_NoUsableExtraction(t *testing.T) {
	hybrid := &fakeStrategy{kind: model.StrategyHybrid, result: Failure(ErrInsufficientText)}

	_, err := NewController(hybrid).Resolve(context.Background(), "a.txt", "txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoUsableExtraction)
}

func TestResolve_ReplacementRequiresStrictlyMoreFields(t *testing.T) {
	t.Run("equal count keeps incumbent", func(t *testing.T) {
		hybrid := &fakeStrategy{kind: model.StrategyHybrid, result: Success(record("1", "", 0))}
		ocrStrat := &fakeStrategy{kind: model.StrategyOCR, result: Success(record("", "", 99))}

		out, err := NewController(hybrid, ocrStrat).Resolve(context.Background(), "a.pdf", "pdf")
		require.NoError(t, err)
		assert.Equal(t, model.StrategyHybrid, out.Strategy)
		assert.Equal(t, 1, ocrStrat.calls)
	})

	t.Run("more fields replace", func(t *testing.T) {
		hybrid := &fakeStrategy{kind: model.StrategyHybrid, result: Success(record("1", "", 0))}
		ocrStrat := &fakeStrategy{kind: model.StrategyOCR, result: Success(record("1", "", 99))}

		out, err := NewController(hybrid, ocrStrat).Resolve(context.Background(), "a.pdf", "pdf")
		require.NoError(t, err)
		assert.Equal(t, model.StrategyOCR, out.Strategy)
		assert.True(t, out.Record.TotalAmount.Valid)
	})
}

func TestResolve_SkipsStrategiesThatDoNotApply(t *testing.T) {
	structured := &fakeStrategy{kind: model.StrategyStructured, exts: []string{"xml"}}
	ocrStrat := &fakeStrategy{kind: model.StrategyOCR, exts: []string{"pdf"}}

	_, err := NewController(structured, ocrStrat).Resolve(context.Background(), "a.txt", ".TXT")
	assert.ErrorIs(t, err, ErrNoUsableExtraction)
	assert.Zero(t, structured.calls)
	assert.Zero(t, ocrStrat.calls)
}

func TestResolve_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hybrid := &fakeStrategy{kind: model.StrategyHybrid}

	_, err := NewController(hybrid).Resolve(ctx, "a.txt", "txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "cascade: resolve")
	assert.Zero(t, hybrid.calls)
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "pdf", Extension("/tmp/NOTA.PDF"))
	assert.Equal(t, "xml", Extension("a.b.xml"))
	assert.Equal(t, "", Extension("noext"))
}

func TestStrategyApplies(t *testing.T) {
	assert.True(t, Structured{}.Applies("xml"))
	assert.False(t, Structured{}.Applies("pdf"))
	assert.True(t, Hybrid{}.Applies("txt"))
	for _, ext := range []string{"pdf", "png", "jpg", "jpeg"} {
		assert.True(t, OCR{}.Applies(ext), ext)
	}
	assert.False(t, OCR{}.Applies("xml"))
	assert.False(t, OCR{}.Applies("txt"))
}

func TestFailureClassification(t *testing.T) {
	assert.Equal(t, KindAcquisition, Failure(&ocr.AcquisitionError{Path: "x", Err: os.ErrNotExist}).Kind)
	assert.Equal(t, KindNoData, Failure(ErrEmptyRecord).Kind)
	assert.Equal(t, KindInternal, Failure(errors.New("boom")).Kind)
	assert.True(t, Success(model.InvoiceRecord{}).OK())
	assert.False(t, Failure(ErrInsufficientText).OK())
}

func newTextController() *Controller {
	source := &ocr.Acquirer{MinNativeChars: 1}
	opts := fields.DefaultOptions()
	return NewController(
		Structured{},
		Hybrid{Source: source, Fields: fields.NewEngine(fields.HybridRules(), nil, opts), MinTextChars: 50},
		OCR{Source: source, Fields: fields.NewEngine(fields.DANFERules(), nil, opts)},
	)
}

func TestResolve_PlainTextEndToEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nota.txt")
	text := "NOTA FISCAL 000123\nCNPJ: 12.345.678/0001-99\nTOTAL R$ 250,00"
	require.NoError(t, os.WriteFile(path, []byte(text), 0o600))

	out, err := newTextController().Resolve(context.Background(), path, Extension(path))
	require.NoError(t, err)

	assert.Equal(t, model.StrategyHybrid, out.Strategy)
	assert.Equal(t, "000123", out.Record.Number)
	assert.Equal(t, "12345678000199", out.Record.IssuerTaxID)
	assert.True(t, out.Record.TotalAmount.Decimal.Equal(decimal.NewFromInt(250)))
	assert.InDelta(t, 42.9, out.Percent(), 1e-9)

	resp := model.NewResponse(out)
	assert.Equal(t, "hybrid", resp.ExtractionMethod)
}

func TestResolve_ShortTextYieldsNoData(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"few characters", "NF 12"},
		// 46 characters but 50 bytes.
		{"accented text under the minimum", "NOTA FISCAL 000123 EMISSÃO ÇÃÃ TOTAL R$ 250,00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "curta.txt")
			require.NoError(t, os.WriteFile(path, []byte(tt.text), 0o600))

			_, err := newTextController().Resolve(context.Background(), path, "txt")
			assert.ErrorIs(t, err, ErrNoUsableExtraction)
		})
	}
}

func TestHybrid_CountsCharactersNotBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nota.txt")
	text := "NOTA FISCAL 000123 EMISSÃO ÇÃÃ TOTAL R$ 250,00"
	require.NoError(t, os.WriteFile(path, []byte(text), 0o600))

	h := Hybrid{
		Source:       &ocr.Acquirer{MinNativeChars: 1},
		Fields:       fields.NewEngine(fields.HybridRules(), nil, fields.DefaultOptions()),
		MinTextChars: 46,
	}
	res := h.Extract(context.Background(), path, "txt")
	require.True(t, res.OK())
	assert.Equal(t, "000123", res.Record.Number)

	h.MinTextChars = 47
	res = h.Extract(context.Background(), path, "txt")
	assert.ErrorIs(t, res.Err, ErrInsufficientText)
}

func TestResolve_EmptyStructuredRecordYieldsNoData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vazia.xml")
	require.NoError(t, os.WriteFile(path, []byte("<NFe><infNFe></infNFe></NFe>"), 0o600))

	res := Structured{}.Extract(context.Background(), path, "xml")
	assert.False(t, res.OK())
	assert.ErrorIs(t, res.Err, ErrEmptyRecord)
	assert.Equal(t, KindNoData, res.Kind)

	_, err := newTextController().Resolve(context.Background(), path, "xml")
	assert.ErrorIs(t, err, ErrNoUsableExtraction)
}

func TestResolve_StructuredXML(t *testing.T) {
	src, err := filepath.Abs("../nfe/testdata/nfe_proc.xml")
	require.NoError(t, err)

	out, err := newTextController().Resolve(context.Background(), src, "xml")
	require.NoError(t, err)
	assert.Equal(t, model.StrategyStructured, out.Strategy)
	assert.Equal(t, "xml_parser", model.NewResponse(out).ExtractionMethod)
}

func TestResolve_MalformedXMLFallsBackToHybrid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quebrada.xml")
	body := "<nota><texto>NOTA FISCAL 000777 CNPJ 11.222.333/0001-81 TOTAL R$ 1.500,00</texto>"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	_, perr := nfe.ParseFile(context.Background(), path)
	require.Error(t, perr)

	out, err := newTextController().Resolve(context.Background(), path, "xml")
	require.NoError(t, err)
	assert.Equal(t, model.StrategyHybrid, out.Strategy)
	assert.Equal(t, "11222333000181", out.Record.IssuerTaxID)
}
