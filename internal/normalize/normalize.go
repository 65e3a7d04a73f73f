// Package normalize converts Brazilian locale-formatted strings into
// canonical values.
package normalize

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	amountStrip   = regexp.MustCompile(`[R$\s]`)
	plainDecimal  = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)$`)
	nonDigit      = regexp.MustCompile(`\D`)
	ddmmyyyyShape = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)
)

// Amount parses a currency string such as "R$ 1.234,56" or "1,234.56".
// When both separators are present the later one is the decimal point; a
// lone comma is a decimal point. ok is false on non-numeric residue.
func Amount(text string) (decimal.Decimal, bool) {
	cleaned := amountStrip.ReplaceAllString(text, "")
	if cleaned == "" {
		return decimal.Zero, false
	}

	comma := strings.LastIndex(cleaned, ",")
	dot := strings.LastIndex(cleaned, ".")
	switch {
	case comma >= 0 && dot >= 0:
		if comma > dot {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.ReplaceAll(cleaned, ",", ".")
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case comma >= 0:
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	}

	if !plainDecimal.MatchString(cleaned) {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// TaxID strips every non-digit character. Callers keep the raw string when
// the result is not exactly 14 digits.
func TaxID(text string) string {
	return nonDigit.ReplaceAllString(text, "")
}

// Date parses a DD/MM/YYYY string into a calendar date. Any other shape,
// and impossible dates such as 31/02/2024, are rejected.
func Date(text string) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if !ddmmyyyyShape.MatchString(text) {
		return time.Time{}, false
	}
	t, err := time.Parse("02/01/2006", text)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Fold upper-cases s and strips diacritics so "Destinatário" and
// "DESTINATARIO" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToUpper(folded)
}
