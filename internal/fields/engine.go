// Package fields recognizes invoice fields in unstructured text using
// ordered regular-expression rules, line heuristics and an optional
// entity oracle.
package fields

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/nfe-extract/internal/model"
	"github.com/sells-group/nfe-extract/internal/nlp"
)

// Options tunes the heuristics shared by all rule sets.
type Options struct {
	MaxItems        int
	NoiseFloor      decimal.Decimal
	DateWindowYears int
	OracleMaxChars  int
	Now             func() time.Time
}

// DefaultOptions returns the built-in heuristic limits.
func DefaultOptions() Options {
	return Options{
		MaxItems:        5,
		NoiseFloor:      decimal.NewFromInt(10),
		DateWindowYears: 10,
		OracleMaxChars:  20000,
		Now:             time.Now,
	}
}

func (o *Options) applyDefaults() {
	d := DefaultOptions()
	if o.MaxItems <= 0 {
		o.MaxItems = d.MaxItems
	}
	if o.NoiseFloor.IsZero() {
		o.NoiseFloor = d.NoiseFloor
	}
	if o.DateWindowYears <= 0 {
		o.DateWindowYears = d.DateWindowYears
	}
	if o.OracleMaxChars <= 0 {
		o.OracleMaxChars = d.OracleMaxChars
	}
	if o.Now == nil {
		o.Now = d.Now
	}
}

// Engine extracts an InvoiceRecord from text. It is stateless between calls
// and safe for concurrent use.
type Engine struct {
	rules  RuleSet
	oracle nlp.Oracle
	opts   Options
}

// NewEngine returns an Engine for the given rule set. A nil oracle disables
// entity merging.
func NewEngine(rules RuleSet, oracle nlp.Oracle, opts Options) *Engine {
	opts.applyDefaults()
	return &Engine{rules: rules, oracle: oracle, opts: opts}
}

// Rules returns the engine's rule set.
func (e *Engine) Rules() RuleSet {
	return e.rules
}

// Extract applies every field rule to text and, when an oracle is
// configured, fills the fields the rules left empty. Fields no rule
// recognizes stay empty.
func (e *Engine) Extract(ctx context.Context, text string) model.InvoiceRecord {
	b := model.NewRecordBuilder()
	lines := splitLines(text)

	if n, ok := e.number(text); ok {
		b.SetNumber(n)
	}
	if d, ok := e.issueDate(text); ok {
		b.SetIssueDate(d)
	}

	issuer, recipient := assignTaxIDs(text)
	if issuer != "" {
		b.SetIssuerTaxID(issuer)
	}
	if recipient != "" {
		b.SetRecipientTaxID(recipient)
	}

	if name, ok := e.partyName(lines, e.rules.Keywords.Issuer); ok {
		b.SetIssuerName(name)
	}
	if name, ok := e.partyName(lines, e.rules.Keywords.Recipient); ok {
		b.SetRecipientName(name)
	}

	for _, item := range e.items(lines) {
		b.AddItem(item)
	}

	if total, ok := e.total(text, lines); ok {
		b.SetTotal(total)
	}

	if e.oracle != nil {
		e.mergeEntities(ctx, b, text)
	}

	rec := b.Build()
	if rejected := b.Rejected(); len(rejected) > 0 {
		zap.L().Debug("fields: dropped invalid values",
			zap.String("rules", e.rules.Name),
			zap.Any("fields", rejected),
		)
	}
	return rec
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n")
}
