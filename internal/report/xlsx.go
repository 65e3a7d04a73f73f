// Package report writes batch extraction results to a spreadsheet.
package report

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/nfe-extract/internal/model"
)

// Sheet names used by WriteXLSX.
const (
	InvoicesSheet = "Notas"
	ItemsSheet    = "Itens"
)

var invoiceHeader = []string{
	"arquivo", "metodo", "completude", "numero", "data_emissao",
	"cnpj_emitente", "nome_emitente", "cnpj_destinatario", "nome_destinatario",
	"valor_total", "erro",
}

var itemHeader = []string{"arquivo", "numero", "descricao", "quantidade", "valor_unitario", "valor_total"}

// WriteXLSX saves one row per run on the invoices sheet and one row per line
// item on the items sheet. Failed runs appear only on the invoices sheet.
func WriteXLSX(path string, runs []model.ExtractionRun) error {
	f := xlsx.NewFile()

	invoices, err := f.AddSheet(InvoicesSheet)
	if err != nil {
		return eris.Wrap(err, "report: add invoices sheet")
	}
	items, err := f.AddSheet(ItemsSheet)
	if err != nil {
		return eris.Wrap(err, "report: add items sheet")
	}
	addHeader(invoices, invoiceHeader)
	addHeader(items, itemHeader)

	for _, run := range runs {
		row := invoices.AddRow()
		row.AddCell().SetString(run.FileName)
		row.AddCell().SetString(run.Method)
		row.AddCell().SetFloat(run.Completeness)

		resp := run.Response
		if resp == nil {
			for range invoiceHeader[3 : len(invoiceHeader)-1] {
				row.AddCell()
			}
			row.AddCell().SetString(run.Error)
			continue
		}

		for _, v := range []*string{resp.Number, resp.IssueDate, resp.IssuerTaxID, resp.IssuerName, resp.RecipientTaxID, resp.RecipientName} {
			stringCell(row, v)
		}
		floatCell(row, resp.TotalAmount)
		row.AddCell().SetString(run.Error)

		for _, it := range resp.Items {
			ir := items.AddRow()
			ir.AddCell().SetString(run.FileName)
			stringCell(ir, resp.Number)
			ir.AddCell().SetString(it.Description)
			floatCell(ir, it.Quantity)
			floatCell(ir, it.UnitAmount)
			floatCell(ir, it.LineTotal)
		}
	}

	return eris.Wrapf(f.Save(path), "report: save %s", path)
}

func addHeader(sheet *xlsx.Sheet, header []string) {
	row := sheet.AddRow()
	for _, h := range header {
		row.AddCell().SetString(h)
	}
}

func stringCell(row *xlsx.Row, v *string) {
	cell := row.AddCell()
	if v != nil {
		cell.SetString(*v)
	}
}

func floatCell(row *xlsx.Row, v *float64) {
	cell := row.AddCell()
	if v != nil {
		cell.SetFloat(*v)
	}
}
