package main

import (
	"context"
	"sync"

	"github.com/sells-group/nfe-extract/internal/cascade"
	"github.com/sells-group/nfe-extract/internal/model"
)

// stubResolver returns canned outcomes keyed by file path.
type stubResolver struct {
	mu       sync.Mutex
	outcomes map[string]model.ExtractionOutcome
	errs     map[string]error
	exts     []string
}

func (s *stubResolver) Resolve(_ context.Context, path, ext string) (model.ExtractionOutcome, error) {
	s.mu.Lock()
	s.exts = append(s.exts, ext)
	s.mu.Unlock()

	if err, ok := s.errs[path]; ok {
		return model.ExtractionOutcome{}, err
	}
	if o, ok := s.outcomes[path]; ok {
		return o, nil
	}
	return model.ExtractionOutcome{}, cascade.ErrNoUsableExtraction
}

func sampleOutcome() model.ExtractionOutcome {
	rec := model.NewRecordBuilder().
		SetNumber("000123").
		SetIssuerTaxID("12.345.678/0001-99").
		SetIssuerName("ACME LTDA").
		Build()
	return model.ExtractionOutcome{
		Record:       rec,
		Strategy:     model.StrategyHybrid,
		Completeness: 3.0 / 7.0,
	}
}
