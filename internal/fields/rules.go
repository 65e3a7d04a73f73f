package fields

import (
	"os"
	"regexp"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// RuleSet holds the ordered recognition rules for one document style.
// Every pattern captures the field value in its first group.
type RuleSet struct {
	Name string

	// Number rules are tried in order; the first capture wins.
	Number []*regexp.Regexp
	// NumberFallback enables the bare 6-digit document number heuristic.
	NumberFallback bool

	// Dates are labeled date rules tried before the window scan.
	Dates []*regexp.Regexp

	// Totals are the keyword-anchored first tier of total extraction.
	Totals []*regexp.Regexp

	Keywords Keywords
}

// Keywords are the word lists used by line-oriented rules. Matching is
// done on accent-folded upper case text.
type Keywords struct {
	Issuer    []string `yaml:"issuer"`
	Recipient []string `yaml:"recipient"`
	Excluded  []string `yaml:"excluded"`
	Total     []string `yaml:"total"`
}

var (
	numberGeneric = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:N[°º]?|NUMERO|NÚMERO|NOTA)\s*[:\-]?\s*(\d{1,9})`),
		regexp.MustCompile(`(?i)NOTA\s*FISCAL\s*(?:N[°º.]?)?\s*[:\-]?\s*(\d+)`),
		regexp.MustCompile(`(?i)NF\s*[:\-]?\s*(\d+)`),
		regexp.MustCompile(`(?i)(\d{9})\s*S[ÉE]RIE`),
	}

	numberDANFE = []*regexp.Regexp{
		regexp.MustCompile(`(?i)NF-e\s*N[°º]?\.?\s*(\d{3}\.\d{3}\.\d{3}|\d{3}\.\d{3})`),
		regexp.MustCompile(`(?i)N[°º]?\.?\s*(\d{3}\.\d{3}\.\d{3}|\d{3}\.\d{3})\s*S[ÉE]RIE`),
	}

	dateLabeled = []*regexp.Regexp{
		regexp.MustCompile(`(?i)DATA\s*DE?\s*EMISS[AÃ]O\s*[:\-]?\s*(\d{2}/\d{2}/\d{4})`),
		regexp.MustCompile(`(?i)EMISS[AÃ]O\s*[:\-]?\s*(\d{2}/\d{2}/\d{4})`),
		regexp.MustCompile(`(\d{2}/\d{2}/\d{4})\s*\d{2}:\d{2}:\d{2}`),
	}

	totalAnchored = []*regexp.Regexp{
		regexp.MustCompile(`(?i)VALOR\s*TOTAL\s*DA\s*NOTA\s*[:\-]?\s*R\s*[$\s]*\s*([\d.,]+)`),
		regexp.MustCompile(`(?i)TOTAL\s*DA\s*NOTA\s*[:\-]?\s*R\s*[$\s]*\s*([\d.,]+)`),
		regexp.MustCompile(`(?i)VALOR\s*TOTAL\s*[:\-]?\s*R\s*[$\s]*\s*([\d.,]+)`),
		regexp.MustCompile(`(?i)TOTAL\s*R\s*[$\s]*\s*([\d.,]+)`),
		regexp.MustCompile(`(?i)VALOR\s*TOTAL\s*DA\s*NOTA\s*[:\-]?\s*([\d.,]+)`),
		regexp.MustCompile(`(?i)TOTAL\s*DA\s*NOTA\s*[:\-]?\s*([\d.,]+)`),
	}
)

// DefaultKeywords returns the built-in keyword lists.
func DefaultKeywords() Keywords {
	return Keywords{
		Issuer:    []string{"EMITENTE", "REMETENTE", "RAZAO SOCIAL"},
		Recipient: []string{"DESTINATARIO", "CLIENTE", "TOMADOR"},
		Excluded:  []string{"CNPJ", "CPF", "ENDERECO", "RUA", "AV.", "AVENIDA", "BR-", "KM", "TELEFONE", "EMAIL"},
		Total:     []string{"TOTAL"},
	}
}

// HybridRules is the rule set for generic text (plain text, XML text,
// native PDF text).
func HybridRules() RuleSet {
	return RuleSet{
		Name:     "hybrid",
		Number:   append(append([]*regexp.Regexp{}, numberGeneric...), numberDANFE...),
		Dates:    dateLabeled,
		Totals:   totalAnchored,
		Keywords: DefaultKeywords(),
	}
}

// DANFERules is the rule set for rendered DANFE text recovered by native
// PDF extraction or OCR.
func DANFERules() RuleSet {
	return RuleSet{
		Name:           "danfe",
		Number:         append(append([]*regexp.Regexp{}, numberDANFE...), numberGeneric...),
		NumberFallback: true,
		Dates:          dateLabeled,
		Totals:         totalAnchored,
		Keywords:       DefaultKeywords(),
	}
}

// WithKeywords returns a copy of rs whose keyword lists are replaced by the
// non-empty lists in k.
func (rs RuleSet) WithKeywords(k Keywords) RuleSet {
	if len(k.Issuer) > 0 {
		rs.Keywords.Issuer = k.Issuer
	}
	if len(k.Recipient) > 0 {
		rs.Keywords.Recipient = k.Recipient
	}
	if len(k.Excluded) > 0 {
		rs.Keywords.Excluded = k.Excluded
	}
	if len(k.Total) > 0 {
		rs.Keywords.Total = k.Total
	}
	return rs
}

// LoadKeywords reads keyword overrides from a YAML file with a top-level
// "fields" key.
func LoadKeywords(path string) (Keywords, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Keywords{}, eris.Wrapf(err, "fields: read rules %s", path)
	}

	var wrapper struct {
		Fields Keywords `yaml:"fields"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return Keywords{}, eris.Wrap(err, "fields: parse rules")
	}
	return wrapper.Fields, nil
}
