// Package scorer measures how complete an extracted invoice record is and
// arbitrates between competing candidates.
package scorer

import (
	"github.com/sells-group/nfe-extract/internal/model"
)

// PublishedFields is the fixed field set behind the reported completeness.
var PublishedFields = []model.Field{
	model.FieldNumber,
	model.FieldIssueDate,
	model.FieldIssuerTaxID,
	model.FieldIssuerName,
	model.FieldRecipientTaxID,
	model.FieldRecipientName,
	model.FieldTotalAmount,
}

// CriticalFields drive the decision to try the next cascade strategy.
var CriticalFields = []model.Field{
	model.FieldNumber,
	model.FieldIssuerTaxID,
	model.FieldTotalAmount,
}

// MinCritical is the number of critical fields a record needs to stop the cascade.
const MinCritical = 2

// Completeness returns the filled fraction of PublishedFields in [0,1].
func Completeness(rec model.InvoiceRecord) float64 {
	return float64(countFilled(rec, PublishedFields)) / float64(len(PublishedFields))
}

// FilledCount counts non-empty values across every record field.
func FilledCount(rec model.InvoiceRecord) int {
	return countFilled(rec, model.AllFields)
}

// IsMoreComplete reports whether candidate has strictly more filled fields
// than incumbent. A nil incumbent always loses.
func IsMoreComplete(candidate model.InvoiceRecord, incumbent *model.InvoiceRecord) bool {
	if incumbent == nil {
		return true
	}
	return FilledCount(candidate) > FilledCount(*incumbent)
}

// IsCriticallyIncomplete reports whether fewer than MinCritical of the
// critical fields are filled. A nil record is critically incomplete.
func IsCriticallyIncomplete(rec *model.InvoiceRecord) bool {
	if rec == nil {
		return true
	}
	return countFilled(*rec, CriticalFields) < MinCritical
}

func countFilled(rec model.InvoiceRecord, fields []model.Field) int {
	n := 0
	for _, f := range fields {
		if rec.Filled(f) {
			n++
		}
	}
	return n
}
