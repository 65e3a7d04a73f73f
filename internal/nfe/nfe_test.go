package nfe

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFile_NFeProc(t *testing.T) {
	rec, err := ParseFile(context.Background(), filepath.Join("testdata", "nfe_proc.xml"))
	require.NoError(t, err)

	assert.Equal(t, "983041", rec.Number)
	assert.Equal(t, time.Date(2023, time.October, 15, 0, 0, 0, 0, time.UTC), rec.IssueDate)
	assert.Equal(t, "12345678000199", rec.IssuerTaxID)
	assert.Equal(t, "ACME INDUSTRIA E COMERCIO LTDA", rec.IssuerName)
	assert.Equal(t, "98765432000100", rec.RecipientTaxID)
	assert.Equal(t, "CLIENTE DISTRIBUIDORA SA", rec.RecipientName)

	require.True(t, rec.TotalAmount.Valid)
	assert.True(t, decimal.RequireFromString("78.75").Equal(rec.TotalAmount.Decimal))

	require.Len(t, rec.Items, 2)
	assert.Equal(t, "PARAFUSO SEXTAVADO M8", rec.Items[0].Description)
	assert.True(t, decimal.NewFromInt(100).Equal(rec.Items[0].Quantity.Decimal))
	assert.True(t, decimal.RequireFromString("0.5").Equal(rec.Items[0].UnitAmount.Decimal))
	assert.True(t, decimal.NewFromInt(50).Equal(rec.Items[0].LineTotal.Decimal))
	assert.Equal(t, "PORCA M8", rec.Items[1].Description)

	require.Len(t, rec.Taxes, 5)
	assert.True(t, decimal.RequireFromString("13.50").Equal(rec.Taxes["ICMS"]))
	assert.True(t, decimal.Zero.Equal(rec.Taxes["ICMS_ST"]))
	assert.True(t, decimal.RequireFromString("3.75").Equal(rec.Taxes["IPI"]))
	assert.Contains(t, rec.Taxes, "PIS")
	assert.Contains(t, rec.Taxes, "COFINS")
	assert.NotContains(t, rec.Taxes, "II")
}

func TestParse_BareNFeWithoutNamespace(t *testing.T) {
	doc := `<NFe><infNFe>
		<ide><nNF>42</nNF><dEmi>2019-01-31</dEmi></ide>
		<emit><CNPJ>12.345.678/0001-99</CNPJ><xNome>EMISSORA</xNome></emit>
		<total><ICMSTot><vNF>1500.00</vNF></ICMSTot></total>
	</infNFe></NFe>`

	rec, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "42", rec.Number)
	assert.Equal(t, time.Date(2019, time.January, 31, 0, 0, 0, 0, time.UTC), rec.IssueDate)
	assert.Equal(t, "12345678000199", rec.IssuerTaxID)
	assert.Empty(t, rec.RecipientTaxID)
	assert.Empty(t, rec.Items)
	assert.Empty(t, rec.Taxes)
	assert.True(t, decimal.NewFromInt(1500).Equal(rec.TotalAmount.Decimal))
}

func TestParse_Latin1Charset(t *testing.T) {
	doc := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>" +
		"<NFe><infNFe><emit><xNome>CONSTRU\xc7\xc3O LTDA</xNome></emit></infNFe></NFe>"

	rec, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "CONSTRUÇÃO LTDA", rec.IssuerName)
}

func TestParse_ZeroTotalIsDropped(t *testing.T) {
	doc := `<NFe><infNFe><ide><nNF>1</nNF></ide><total><ICMSTot><vNF>0.00</vNF></ICMSTot></total></infNFe></NFe>`

	rec, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	assert.False(t, rec.TotalAmount.Valid)
}

func TestParse_Malformed(t *testing.T) {
	tests := map[string]string{
		"not xml":        "NOTA FISCAL 000123",
		"truncated":      "<nfeProc><NFe><infNFe><ide><nNF>1",
		"no NFe element": "<root><other/></root>",
		"missing infNFe": "<NFe><signature/></NFe>",
		"empty":          "",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(doc))
			require.Error(t, err)
			assert.True(t, IsMalformed(err), "got %v", err)
		})
	}
}

func TestParseFile_Errors(t *testing.T) {
	_, err := ParseFile(context.Background(), filepath.Join(t.TempDir(), "missing.xml"))
	require.Error(t, err)
	assert.False(t, IsMalformed(err))

	path := filepath.Join(t.TempDir(), "nota.xml")
	require.NoError(t, os.WriteFile(path, []byte("<NFe>"), 0o644))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ParseFile(ctx, path)
	require.Error(t, err)
}
