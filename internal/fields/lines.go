package fields

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/sells-group/nfe-extract/internal/model"
	"github.com/sells-group/nfe-extract/internal/normalize"
)

var (
	numericLine = regexp.MustCompile(`^[\d\s.\-/]+$`)
	qtyToken    = regexp.MustCompile(`^\d+[,.]?\d*$`)
	descJunk    = regexp.MustCompile(`[^\p{L}\p{N}_\s.\-/]`)
)

const (
	nameLookahead = 3
	minNameLen    = 3
)

// partyName finds the first line containing one of keywords and returns the
// first plausible name on the following lines.
func (e *Engine) partyName(lines, keywords []string) (string, bool) {
	for i, line := range lines {
		if !containsAny(normalize.Fold(line), keywords) {
			continue
		}
		end := min(i+nameLookahead+1, len(lines))
		for _, cand := range lines[i+1 : end] {
			cand = strings.TrimSpace(cand)
			if e.plausibleName(cand) {
				return cand, true
			}
		}
	}
	return "", false
}

func (e *Engine) plausibleName(s string) bool {
	if utf8.RuneCountInString(s) < minNameLen || numericLine.MatchString(s) {
		return false
	}
	return !containsAny(normalize.Fold(s), e.rules.Keywords.Excluded)
}

// items treats lines that start with a digit as product lines. Quantities
// and prices are not recovered from text.
func (e *Engine) items(lines []string) []model.LineItem {
	var out []model.LineItem
	for _, line := range lines {
		if len(out) >= e.opts.MaxItems {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" || line[0] < '0' || line[0] > '9' {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}

		var desc []string
		for _, p := range parts[1:] {
			if !qtyToken.MatchString(p) {
				desc = append(desc, p)
			}
		}
		text := strings.TrimSpace(descJunk.ReplaceAllString(strings.Join(desc, " "), ""))
		if text == "" {
			continue
		}
		out = append(out, model.LineItem{
			Description: text,
			Quantity:    decimal.NewNullDecimal(decimal.NewFromInt(1)),
			UnitAmount:  decimal.NewNullDecimal(decimal.Zero),
			LineTotal:   decimal.NewNullDecimal(decimal.Zero),
		})
	}
	return out
}
