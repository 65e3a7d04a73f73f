// Package nlp provides named-entity oracles used to fill fields the
// rule engine could not recognize.
package nlp

import "context"

// Entity labels understood by the field engine.
const (
	LabelNumber         = "NUMERO_NF"
	LabelDate           = "DATA_EMISSAO"
	LabelIssuerTaxID    = "CNPJ_EMITENTE"
	LabelRecipientTaxID = "CNPJ_DESTINATARIO"
	LabelIssuerName     = "NOME_EMITENTE"
	LabelRecipientName  = "NOME_DESTINATARIO"
	LabelTotal          = "VALOR_TOTAL"
)

// Entity is one labeled span recognized in invoice text.
type Entity struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Oracle recognizes labeled entities in free text. Implementations must be
// safe for concurrent use.
type Oracle interface {
	RecognizeEntities(ctx context.Context, text string) ([]Entity, error)
}

// Noop is an Oracle that never recognizes anything.
type Noop struct{}

// RecognizeEntities implements Oracle.
func (Noop) RecognizeEntities(context.Context, string) ([]Entity, error) {
	return nil, nil
}
