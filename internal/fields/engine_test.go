package fields

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/nfe-extract/internal/nlp"
	"github.com/sells-group/nfe-extract/internal/scorer"
)

func fixedNow() time.Time {
	return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
}

func newTestEngine(rules RuleSet, oracle nlp.Oracle) *Engine {
	opts := DefaultOptions()
	opts.Now = fixedNow
	return NewEngine(rules, oracle, opts)
}

func TestExtract_PlainTextInvoice(t *testing.T) {
	t.Parallel()
	text := "NOTA FISCAL 000123\nCNPJ: 12.345.678/0001-99\nTOTAL R$ 250,00"

	rec := newTestEngine(HybridRules(), nil).Extract(context.Background(), text)

	assert.Equal(t, "000123", rec.Number)
	assert.Equal(t, "12345678000199", rec.IssuerTaxID)
	require.True(t, rec.TotalAmount.Valid)
	assert.True(t, rec.TotalAmount.Decimal.Equal(decimal.NewFromInt(250)))
	assert.Empty(t, rec.RecipientTaxID)
	assert.True(t, rec.IssueDate.IsZero())
	assert.False(t, scorer.IsCriticallyIncomplete(&rec))
}

func TestExtract_Totals(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		text string
		want string
	}{
		{"anchored", "TOTAL R$ 1.500,00", "1500"},
		{"anchored value total da nota", "VALOR TOTAL DA NOTA: 3.210,55", "3210.55"},
		{"keyword line lookahead", "FRETE 5.000,00\nTOTAL DOS PRODUTOS\n5,00\n1.234,56", "1234.56"},
		{"largest currency value", "ITEM A R$ 12,00\nITEM B R$ 980,00", "980"},
		{"noise floor", "TAXA R$ 2,50", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := newTestEngine(HybridRules(), nil).Extract(context.Background(), tt.text)
			if tt.want == "" {
				assert.False(t, rec.TotalAmount.Valid)
				return
			}
			require.True(t, rec.TotalAmount.Valid)
			assert.True(t, rec.TotalAmount.Decimal.Equal(decimal.RequireFromString(tt.want)),
				"got %s", rec.TotalAmount.Decimal)
		})
	}
}

func TestExtract_TaxIDsArePositional(t *testing.T) {
	t.Parallel()
	text := "EMITENTE\nACME LTDA\nCNPJ 11.111.111/0001-11\n" +
		"DESTINATARIO\nBETA SA\nCNPJ 22.222.222/0001-22\nCNPJ 11.111.111/0001-11"

	rec := newTestEngine(HybridRules(), nil).Extract(context.Background(), text)

	assert.Equal(t, "11111111000111", rec.IssuerTaxID)
	assert.Equal(t, "22222222000122", rec.RecipientTaxID)
	assert.Equal(t, "ACME LTDA", rec.IssuerName)
	assert.Equal(t, "BETA SA", rec.RecipientName)
}

func TestExtract_TaxIDs(t *testing.T) {
	t.Parallel()

	t.Run("bare digits when nothing is formatted", func(t *testing.T) {
		t.Parallel()
		issuer, recipient := assignTaxIDs("CNPJ 12345678000199 DEST 98765432000100")
		assert.Equal(t, "12345678000199", issuer)
		assert.Equal(t, "98765432000100", recipient)
	})

	t.Run("access key is not a tax id", func(t *testing.T) {
		t.Parallel()
		issuer, _ := assignTaxIDs("CHAVE 35231012345678000199550010009830411000000001")
		assert.Empty(t, issuer)
	})

	t.Run("zero placeholder is dropped", func(t *testing.T) {
		t.Parallel()
		issuer, recipient := assignTaxIDs("00.000.000/0000-00 12.345.678/0001-99")
		assert.Empty(t, issuer)
		assert.Equal(t, "12.345.678/0001-99", recipient)
	})
}

func TestExtract_Dates(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		text string
		want time.Time
	}{
		{"labeled", "DATA DE EMISSÃO: 15/10/2023", time.Date(2023, 10, 15, 0, 0, 0, 0, time.UTC)},
		{"label before timestamp", "05/01/2020\nEMISSAO 20/05/2024", time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)},
		{"timestamp", "SAIDA 03/03/2025 14:22:01", time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)},
		{"outside window skipped", "VALIDADE 01/01/1990\nREF 20/05/2024", time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)},
		{"invalid calendar date skipped", "31/02/2024 01/03/2024", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"none", "SEM DATA", time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := newTestEngine(HybridRules(), nil).Extract(context.Background(), tt.text)
			assert.True(t, tt.want.Equal(rec.IssueDate), "got %v", rec.IssueDate)
		})
	}
}

func TestExtract_Numbers(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		rules RuleSet
		text  string
		want  string
	}{
		{"labeled", HybridRules(), "NUMERO: 4521", "4521"},
		{"nf prefix", HybridRules(), "NF 778", "778"},
		{"danfe dotted", DANFERules(), "NF-e N. 983.041 SÉRIE 1", "983041"},
		{"danfe bare six digits", DANFERules(), "DANFE\nDOCUMENTO 004512\nCNPJ 12.345.678/0001-99\n15/10/2023", "004512"},
		{"no fallback for hybrid", HybridRules(), "DANFE\nDOCUMENTO 004512", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := newTestEngine(tt.rules, nil).Extract(context.Background(), tt.text)
			assert.Equal(t, tt.want, rec.Number)
		})
	}
}

func TestBareSixDigits_SkipsFormattedValues(t *testing.T) {
	t.Parallel()
	_, ok := bareSixDigits("123.456,78 10/10/202020 1-123456")
	assert.False(t, ok)

	got, ok := bareSixDigits("x 1234567 y 654321")
	require.True(t, ok)
	assert.Equal(t, "654321", got)
}

func TestExtract_NamesSkipExcludedLines(t *testing.T) {
	t.Parallel()
	text := "EMITENTE\nCNPJ 12.345.678/0001-99\nRUA DAS FLORES 100\nACME LTDA"

	rec := newTestEngine(HybridRules(), nil).Extract(context.Background(), text)

	assert.Equal(t, "ACME LTDA", rec.IssuerName)
}

func TestExtract_Items(t *testing.T) {
	t.Parallel()
	text := "1 PARAFUSO M8 10 0,50\n2 PORCA@ M8 5\nSEM ITEM\n3\n" +
		"4 ARRUELA\n5 BUCHA\n6 PREGO\n7 REBITE"

	rec := newTestEngine(HybridRules(), nil).Extract(context.Background(), text)

	require.Len(t, rec.Items, 5)
	assert.Equal(t, "PARAFUSO M8", rec.Items[0].Description)
	assert.Equal(t, "PORCA M8", rec.Items[1].Description)
	assert.Equal(t, "PREGO", rec.Items[4].Description)
	assert.True(t, rec.Items[0].Quantity.Decimal.Equal(decimal.NewFromInt(1)))
	assert.True(t, rec.Items[0].UnitAmount.Decimal.IsZero())
}

type stubOracle struct {
	ents []nlp.Entity
	err  error
	got  string
}

func (s *stubOracle) RecognizeEntities(_ context.Context, text string) ([]nlp.Entity, error) {
	s.got = text
	return s.ents, s.err
}

func TestExtract_OracleFillsOnlyEmptyFields(t *testing.T) {
	t.Parallel()
	oracle := &stubOracle{ents: []nlp.Entity{
		{Label: "NUMERO_NF", Text: "999"},
		{Label: "CNPJ_EMITENTE", Text: "11.111.111/0001-11"},
		{Label: "nome_emitente", Text: "ACME"},
		{Label: "VALOR_TOTAL", Text: "1.000,00"},
		{Label: "DATA", Text: "15/10/2023"},
		{Label: "PRODUTO", Text: "ignored"},
	}}

	rec := newTestEngine(HybridRules(), oracle).Extract(context.Background(), "NOTA FISCAL 000123")

	assert.Equal(t, "000123", rec.Number)
	assert.Equal(t, "11111111000111", rec.IssuerTaxID)
	assert.Equal(t, "ACME", rec.IssuerName)
	assert.True(t, rec.TotalAmount.Decimal.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, 2023, rec.IssueDate.Year())
}

func TestExtract_OracleFailureIsIgnored(t *testing.T) {
	t.Parallel()
	oracle := &stubOracle{err: errors.New("boom")}

	rec := newTestEngine(HybridRules(), oracle).Extract(context.Background(), "NOTA FISCAL 000123")

	assert.Equal(t, "000123", rec.Number)
}

func TestExtract_OracleInputTruncated(t *testing.T) {
	t.Parallel()
	oracle := &stubOracle{}
	opts := DefaultOptions()
	opts.OracleMaxChars = 4

	NewEngine(HybridRules(), oracle, opts).Extract(context.Background(), "ÇÃOABCDEF")

	assert.Equal(t, "ÇÃOA", oracle.got)
}

func TestExtract_EmptyText(t *testing.T) {
	t.Parallel()
	rec := newTestEngine(DANFERules(), nil).Extract(context.Background(), "")
	assert.Equal(t, 0, scorer.FilledCount(rec))
}

func TestLoadKeywords(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`fields:
  issuer: ["FORNECEDOR"]
  total: ["VALOR A PAGAR"]
`), 0o600))

	kw, err := LoadKeywords(path)
	require.NoError(t, err)

	rules := HybridRules().WithKeywords(kw)
	assert.Equal(t, []string{"FORNECEDOR"}, rules.Keywords.Issuer)
	assert.Equal(t, []string{"VALOR A PAGAR"}, rules.Keywords.Total)
	assert.Equal(t, DefaultKeywords().Recipient, rules.Keywords.Recipient)

	rec := NewEngine(rules, nil, DefaultOptions()).Extract(context.Background(), "FORNECEDOR\nGAMA COMERCIO")
	assert.Equal(t, "GAMA COMERCIO", rec.IssuerName)
}

func TestLoadKeywords_Errors(t *testing.T) {
	t.Parallel()
	_, err := LoadKeywords(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fields: [unclosed"), 0o600))
	_, err = LoadKeywords(path)
	assert.Error(t, err)
}
