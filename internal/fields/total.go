package fields

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sells-group/nfe-extract/internal/normalize"
)

// currencyValue matches R$-prefixed amounts and bare amounts with two
// decimal places.
var currencyValue = regexp.MustCompile(`(?i)R\s*\$\s*(\d[\d.,]*\d|\d)|\b(\d{1,3}(?:\.\d{3})+,\d{2}|\d+[.,]\d{2})\b`)

// totalLookahead is how many lines after a keyword line are scanned.
const totalLookahead = 3

// total runs three tiers: keyword-anchored rules, values on or just after
// total keyword lines, and finally the largest currency value in the text.
func (e *Engine) total(text string, lines []string) (decimal.Decimal, bool) {
	for _, re := range e.rules.Totals {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if v, ok := normalize.Amount(m[1]); ok && v.IsPositive() {
				return v, true
			}
		}
	}

	for i, line := range lines {
		if !containsAny(normalize.Fold(line), e.rules.Keywords.Total) {
			continue
		}
		end := min(i+totalLookahead+1, len(lines))
		for _, l := range lines[i:end] {
			for _, v := range currencyValues(l) {
				if v.GreaterThan(e.opts.NoiseFloor) {
					return v, true
				}
			}
		}
	}

	var best decimal.Decimal
	found := false
	for _, v := range currencyValues(text) {
		if v.GreaterThan(e.opts.NoiseFloor) && (!found || v.GreaterThan(best)) {
			best, found = v, true
		}
	}
	return best, found
}

func currencyValues(s string) []decimal.Decimal {
	var out []decimal.Decimal
	for _, m := range currencyValue.FindAllStringSubmatch(s, -1) {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		if v, ok := normalize.Amount(raw); ok {
			out = append(out, v)
		}
	}
	return out
}

// containsAny reports whether folded contains any keyword after folding.
func containsAny(folded string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(folded, normalize.Fold(k)) {
			return true
		}
	}
	return false
}
