// Package model defines the invoice record, its builder and the wire forms
// of extraction results.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sells-group/nfe-extract/internal/normalize"
)

// Field names a single InvoiceRecord field by its wire key.
type Field string

// Record fields, keyed by their JSON names.
const (
	FieldNumber         Field = "numero"
	FieldIssueDate      Field = "data_emissao"
	FieldIssuerTaxID    Field = "cnpj_emitente"
	FieldIssuerName     Field = "nome_emitente"
	FieldRecipientTaxID Field = "cnpj_destinatario"
	FieldRecipientName  Field = "nome_destinatario"
	FieldItems          Field = "itens"
	FieldTotalAmount    Field = "valor_total"
	FieldTaxes          Field = "impostos"
)

// AllFields lists every InvoiceRecord field in declaration order.
var AllFields = []Field{
	FieldNumber,
	FieldIssueDate,
	FieldIssuerTaxID,
	FieldIssuerName,
	FieldRecipientTaxID,
	FieldRecipientName,
	FieldItems,
	FieldTotalAmount,
	FieldTaxes,
}

// DateLayout is the DD/MM/YYYY layout used on the wire.
const DateLayout = "02/01/2006"

// LineItem is one product or service line of an invoice.
type LineItem struct {
	Description string
	Quantity    decimal.NullDecimal
	UnitAmount  decimal.NullDecimal
	LineTotal   decimal.NullDecimal
}

// InvoiceRecord is the canonical result of one extraction attempt. Records
// are built through RecordBuilder and not modified afterwards.
type InvoiceRecord struct {
	Number         string
	IssueDate      time.Time
	IssuerTaxID    string
	IssuerName     string
	RecipientTaxID string
	RecipientName  string
	Items          []LineItem
	TotalAmount    decimal.NullDecimal
	Taxes          map[string]decimal.Decimal
}

// Filled reports whether the given field holds a non-empty value.
func (r InvoiceRecord) Filled(f Field) bool {
	switch f {
	case FieldNumber:
		return r.Number != ""
	case FieldIssueDate:
		return !r.IssueDate.IsZero()
	case FieldIssuerTaxID:
		return r.IssuerTaxID != ""
	case FieldIssuerName:
		return r.IssuerName != ""
	case FieldRecipientTaxID:
		return r.RecipientTaxID != ""
	case FieldRecipientName:
		return r.RecipientName != ""
	case FieldItems:
		return len(r.Items) > 0
	case FieldTotalAmount:
		return r.TotalAmount.Valid
	case FieldTaxes:
		return len(r.Taxes) > 0
	default:
		return false
	}
}

// RecordBuilder accumulates candidate values and produces an InvoiceRecord.
// Setters never fail; structurally invalid values are dropped by Build and
// reported through Rejected.
type RecordBuilder struct {
	rec      InvoiceRecord
	rejected []Field
}

// NewRecordBuilder returns an empty builder.
func NewRecordBuilder() *RecordBuilder {
	return &RecordBuilder{}
}

// Has reports whether a value has already been set for f.
func (b *RecordBuilder) Has(f Field) bool {
	return b.rec.Filled(f)
}

func (b *RecordBuilder) SetNumber(v string) *RecordBuilder {
	b.rec.Number = strings.TrimSpace(v)
	return b
}

func (b *RecordBuilder) SetIssueDate(t time.Time) *RecordBuilder {
	b.rec.IssueDate = t
	return b
}

// SetIssuerTaxID stores the 14-digit form of raw when it has exactly 14
// digits, and the trimmed raw string otherwise.
func (b *RecordBuilder) SetIssuerTaxID(raw string) *RecordBuilder {
	b.rec.IssuerTaxID = canonicalTaxID(raw)
	return b
}

func (b *RecordBuilder) SetIssuerName(v string) *RecordBuilder {
	b.rec.IssuerName = strings.TrimSpace(v)
	return b
}

// SetRecipientTaxID behaves like SetIssuerTaxID.
func (b *RecordBuilder) SetRecipientTaxID(raw string) *RecordBuilder {
	b.rec.RecipientTaxID = canonicalTaxID(raw)
	return b
}

func (b *RecordBuilder) SetRecipientName(v string) *RecordBuilder {
	b.rec.RecipientName = strings.TrimSpace(v)
	return b
}

func (b *RecordBuilder) AddItem(item LineItem) *RecordBuilder {
	b.rec.Items = append(b.rec.Items, item)
	return b
}

func (b *RecordBuilder) SetTotal(v decimal.Decimal) *RecordBuilder {
	b.rec.TotalAmount = decimal.NullDecimal{Decimal: v, Valid: true}
	return b
}

func (b *RecordBuilder) SetTax(code string, v decimal.Decimal) *RecordBuilder {
	if b.rec.Taxes == nil {
		b.rec.Taxes = make(map[string]decimal.Decimal)
	}
	b.rec.Taxes[code] = v
	return b
}

// Build returns the accumulated record. Non-positive totals, negative taxes
// and items without a description are dropped.
func (b *RecordBuilder) Build() InvoiceRecord {
	b.rejected = nil
	rec := b.rec

	if rec.TotalAmount.Valid && !rec.TotalAmount.Decimal.IsPositive() {
		rec.TotalAmount = decimal.NullDecimal{}
		b.rejected = append(b.rejected, FieldTotalAmount)
	}

	if len(rec.Items) > 0 {
		items := make([]LineItem, 0, len(rec.Items))
		for _, it := range rec.Items {
			it.Description = strings.TrimSpace(it.Description)
			if it.Description == "" {
				b.rejected = append(b.rejected, FieldItems)
				continue
			}
			items = append(items, it)
		}
		rec.Items = items
	}

	if len(rec.Taxes) > 0 {
		taxes := make(map[string]decimal.Decimal, len(rec.Taxes))
		for code, v := range rec.Taxes {
			if v.IsNegative() {
				b.rejected = append(b.rejected, FieldTaxes)
				continue
			}
			taxes[code] = v
		}
		rec.Taxes = taxes
	}

	return rec
}

// Rejected lists the fields dropped by the last Build call.
func (b *RecordBuilder) Rejected() []Field {
	return b.rejected
}

func canonicalTaxID(raw string) string {
	raw = strings.TrimSpace(raw)
	if digits := normalize.TaxID(raw); len(digits) == 14 {
		return digits
	}
	return raw
}
