package fields

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/sells-group/nfe-extract/internal/model"
	"github.com/sells-group/nfe-extract/internal/nlp"
	"github.com/sells-group/nfe-extract/internal/normalize"
)

// entityField maps oracle labels to record fields. The short labels are
// accepted as aliases.
var entityField = map[string]model.Field{
	nlp.LabelNumber:         model.FieldNumber,
	"NUMERO":                model.FieldNumber,
	nlp.LabelDate:           model.FieldIssueDate,
	"DATA":                  model.FieldIssueDate,
	nlp.LabelIssuerTaxID:    model.FieldIssuerTaxID,
	"CNPJ":                  model.FieldIssuerTaxID,
	nlp.LabelRecipientTaxID: model.FieldRecipientTaxID,
	nlp.LabelIssuerName:     model.FieldIssuerName,
	nlp.LabelRecipientName:  model.FieldRecipientName,
	nlp.LabelTotal:          model.FieldTotalAmount,
	"VALOR":                 model.FieldTotalAmount,
}

// mergeEntities fills fields still empty in b from oracle entities. Values
// already set by rules are never overwritten. Oracle failures are logged
// and otherwise ignored.
func (e *Engine) mergeEntities(ctx context.Context, b *model.RecordBuilder, text string) {
	ents, err := e.oracle.RecognizeEntities(ctx, truncate(text, e.opts.OracleMaxChars))
	if err != nil {
		zap.L().Warn("fields: entity oracle failed", zap.Error(err))
		return
	}

	for _, ent := range ents {
		f, ok := entityField[strings.ToUpper(strings.TrimSpace(ent.Label))]
		if !ok || b.Has(f) {
			continue
		}
		val := strings.TrimSpace(ent.Text)
		if val == "" {
			continue
		}

		switch f {
		case model.FieldNumber:
			b.SetNumber(val)
		case model.FieldIssueDate:
			if d, ok := e.plausibleDate(val); ok {
				b.SetIssueDate(d)
			}
		case model.FieldIssuerTaxID:
			b.SetIssuerTaxID(val)
		case model.FieldRecipientTaxID:
			b.SetRecipientTaxID(val)
		case model.FieldIssuerName:
			b.SetIssuerName(val)
		case model.FieldRecipientName:
			b.SetRecipientName(val)
		case model.FieldTotalAmount:
			if v, ok := normalize.Amount(val); ok && v.IsPositive() {
				b.SetTotal(v)
			}
		}
	}
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
