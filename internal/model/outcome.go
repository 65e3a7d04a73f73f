package model

import (
	"math"
	"time"
)

// Strategy identifies the extraction approach that produced a record.
type Strategy int

const (
	// StrategyUnknown is the zero value; no strategy produced the record.
	StrategyUnknown Strategy = iota
	// StrategyStructured parses the NF-e XML schema directly.
	StrategyStructured
	// StrategyHybrid runs field rules and the entity oracle over acquired text.
	StrategyHybrid
	// StrategyOCR runs DANFE field rules over native or OCR text.
	StrategyOCR
)

func (s Strategy) String() string {
	switch s {
	case StrategyStructured:
		return "structured"
	case StrategyHybrid:
		return "hybrid"
	case StrategyOCR:
		return "ocr"
	default:
		return "unknown"
	}
}

// Method returns the caller-facing extraction_method value.
func (s Strategy) Method() string {
	switch s {
	case StrategyStructured:
		return "xml_parser"
	case StrategyHybrid:
		return "hybrid"
	case StrategyOCR:
		return "ocr"
	default:
		return "unknown"
	}
}

// ExtractionOutcome is the record selected by the cascade together with its
// provenance and completeness fraction in [0,1].
type ExtractionOutcome struct {
	Record       InvoiceRecord
	Strategy     Strategy
	Completeness float64
}

// Percent returns the completeness as a percentage rounded to one decimal.
func (o ExtractionOutcome) Percent() float64 {
	return math.Round(o.Completeness*1000) / 10
}

// NoDataMessage is returned to callers when no strategy yields a record.
const NoDataMessage = "Não foi possível extrair dados da nota fiscal"

// ItemResponse is the wire form of a LineItem.
type ItemResponse struct {
	Description string   `json:"descricao"`
	Quantity    *float64 `json:"quantidade"`
	UnitAmount  *float64 `json:"valor_unitario"`
	LineTotal   *float64 `json:"valor_total"`
}

// Response is the JSON document returned for a successful extraction.
type Response struct {
	Number                 *string            `json:"numero"`
	IssueDate              *string            `json:"data_emissao"`
	IssuerTaxID            *string            `json:"cnpj_emitente"`
	IssuerName             *string            `json:"nome_emitente"`
	RecipientTaxID         *string            `json:"cnpj_destinatario"`
	RecipientName          *string            `json:"nome_destinatario"`
	Items                  []ItemResponse     `json:"itens"`
	TotalAmount            *float64           `json:"valor_total"`
	Taxes                  map[string]float64 `json:"impostos"`
	ExtractionMethod       string             `json:"extraction_method"`
	ExtractionCompleteness float64            `json:"extraction_completeness"`
}

// ErrorResponse is the JSON document returned when nothing was extracted.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewResponse converts an outcome into its wire form.
func NewResponse(o ExtractionOutcome) *Response {
	r := o.Record
	resp := &Response{
		Number:                 optString(r.Number),
		IssuerTaxID:            optString(r.IssuerTaxID),
		IssuerName:             optString(r.IssuerName),
		RecipientTaxID:         optString(r.RecipientTaxID),
		RecipientName:          optString(r.RecipientName),
		Items:                  make([]ItemResponse, 0, len(r.Items)),
		Taxes:                  make(map[string]float64, len(r.Taxes)),
		ExtractionMethod:       o.Strategy.Method(),
		ExtractionCompleteness: o.Percent(),
	}
	if !r.IssueDate.IsZero() {
		resp.IssueDate = optString(r.IssueDate.Format(DateLayout))
	}
	if r.TotalAmount.Valid {
		v := r.TotalAmount.Decimal.InexactFloat64()
		resp.TotalAmount = &v
	}
	for _, it := range r.Items {
		item := ItemResponse{Description: it.Description}
		if it.Quantity.Valid {
			v := it.Quantity.Decimal.InexactFloat64()
			item.Quantity = &v
		}
		if it.UnitAmount.Valid {
			v := it.UnitAmount.Decimal.InexactFloat64()
			item.UnitAmount = &v
		}
		if it.LineTotal.Valid {
			v := it.LineTotal.Decimal.InexactFloat64()
			item.LineTotal = &v
		}
		resp.Items = append(resp.Items, item)
	}
	for code, v := range r.Taxes {
		resp.Taxes[code] = v.InexactFloat64()
	}
	return resp
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ExtractionRun is a persisted record of one cascade run over a document.
type ExtractionRun struct {
	ID           string    `json:"id"`
	FileName     string    `json:"file_name"`
	Extension    string    `json:"extension"`
	Method       string    `json:"method"`
	Completeness float64   `json:"completeness"`
	Response     *Response `json:"response,omitempty"`
	Error        string    `json:"error,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// Failed reports whether the run produced no record.
func (r ExtractionRun) Failed() bool {
	return r.Response == nil
}
