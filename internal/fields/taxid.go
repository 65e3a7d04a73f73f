package fields

import (
	"regexp"
	"strings"

	"github.com/sells-group/nfe-extract/internal/normalize"
)

var formattedCNPJ = regexp.MustCompile(`\d{2}\.\d{3}\.\d{3}/\d{4}-\d{2}`)

// findTaxIDs returns distinct CNPJ occurrences in first-seen order.
// Formatted occurrences take precedence; bare 14-digit runs are used only
// when the text has none.
func findTaxIDs(text string) []string {
	found := formattedCNPJ.FindAllString(text, -1)
	if len(found) == 0 {
		for _, run := range digitRun.FindAllString(text, -1) {
			if len(run) == 14 {
				found = append(found, run)
			}
		}
	}

	seen := make(map[string]bool, len(found))
	out := make([]string, 0, len(found))
	for _, f := range found {
		digits := normalize.TaxID(f)
		if seen[digits] {
			continue
		}
		seen[digits] = true
		out = append(out, f)
	}
	return out
}

// assignTaxIDs assigns the first distinct CNPJ to the issuer and the second
// to the recipient. Placeholder ids made only of zeros are discarded after
// assignment.
func assignTaxIDs(text string) (issuer, recipient string) {
	ids := findTaxIDs(text)
	if len(ids) > 0 {
		issuer = ids[0]
	}
	if len(ids) > 1 {
		recipient = ids[1]
	}
	return scrubZeros(issuer), scrubZeros(recipient)
}

func scrubZeros(id string) string {
	if id == "" || strings.Trim(normalize.TaxID(id), "0") == "" {
		return ""
	}
	return id
}
