package cascade

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/sells-group/nfe-extract/internal/model"
	"github.com/sells-group/nfe-extract/internal/nfe"
	"github.com/sells-group/nfe-extract/internal/scorer"
)

// Strategy is one extraction approach in the cascade.
type Strategy interface {
	Kind() model.Strategy
	// Applies reports whether the strategy handles documents with ext.
	Applies(ext string) bool
	Extract(ctx context.Context, path, ext string) Result
}

// TextSource turns a document into text.
type TextSource interface {
	AcquireText(ctx context.Context, path, ext string) (string, error)
}

// FieldExtractor recognizes invoice fields in text.
type FieldExtractor interface {
	Extract(ctx context.Context, text string) model.InvoiceRecord
}

// Structured parses NF-e XML documents.
type Structured struct {
	// Parse defaults to nfe.ParseFile.
	Parse func(ctx context.Context, path string) (model.InvoiceRecord, error)
}

func (Structured) Kind() model.Strategy { return model.StrategyStructured }

func (Structured) Applies(ext string) bool { return ext == "xml" }

func (s Structured) Extract(ctx context.Context, path, _ string) Result {
	parse := s.Parse
	if parse == nil {
		parse = nfe.ParseFile
	}
	rec, err := parse(ctx, path)
	if err != nil {
		return Failure(err)
	}
	return recordFrom(rec)
}

// Hybrid runs field rules and the entity oracle over text acquired from
// any document type.
type Hybrid struct {
	Source TextSource
	Fields FieldExtractor
	// MinTextChars is the number of characters the trimmed text needs for
	// the rules to run.
	MinTextChars int
}

func (Hybrid) Kind() model.Strategy { return model.StrategyHybrid }

func (Hybrid) Applies(string) bool { return true }

func (h Hybrid) Extract(ctx context.Context, path, ext string) Result {
	text, err := h.Source.AcquireText(ctx, path, ext)
	if err != nil {
		return Failure(err)
	}
	if utf8.RuneCountInString(strings.TrimSpace(text)) < h.MinTextChars {
		return Failure(ErrInsufficientText)
	}
	return recordFrom(h.Fields.Extract(ctx, text))
}

// OCR runs DANFE field rules over text from rendered documents, reading
// native PDF text first and falling back to OCR.
type OCR struct {
	Source TextSource
	Fields FieldExtractor
}

func (OCR) Kind() model.Strategy { return model.StrategyOCR }

func (OCR) Applies(ext string) bool {
	switch ext {
	case "pdf", "png", "jpg", "jpeg":
		return true
	default:
		return false
	}
}

func (o OCR) Extract(ctx context.Context, path, ext string) Result {
	text, err := o.Source.AcquireText(ctx, path, ext)
	if err != nil {
		return Failure(err)
	}
	return recordFrom(o.Fields.Extract(ctx, text))
}

func recordFrom(rec model.InvoiceRecord) Result {
	if scorer.FilledCount(rec) == 0 {
		return Failure(ErrEmptyRecord)
	}
	return Success(rec)
}
