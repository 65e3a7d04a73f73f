package main

import (
	"context"
	"errors"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/nfe-extract/internal/cascade"
	"github.com/sells-group/nfe-extract/internal/config"
	"github.com/sells-group/nfe-extract/internal/fields"
	"github.com/sells-group/nfe-extract/internal/model"
	"github.com/sells-group/nfe-extract/internal/nlp"
	"github.com/sells-group/nfe-extract/internal/ocr"
	"github.com/sells-group/nfe-extract/internal/store"
	anthropicpkg "github.com/sells-group/nfe-extract/pkg/anthropic"
)

// resolver is the part of the cascade the commands depend on.
type resolver interface {
	Resolve(ctx context.Context, path, ext string) (model.ExtractionOutcome, error)
}

// buildController wires acquisition, field rules and the oracle from c into
// the structured, hybrid and OCR strategies.
func buildController(c *config.Config) (*cascade.Controller, error) {
	native, err := ocr.NewNativeExtractor(c.OCR)
	if err != nil {
		return nil, err
	}
	ocrExtractor, err := ocr.NewExtractor(c.OCR, c.Mistral)
	if err != nil {
		return nil, err
	}
	oracle, err := buildOracle(c)
	if err != nil {
		return nil, err
	}

	hybridRules, danfeRules := fields.HybridRules(), fields.DANFERules()
	if c.Extract.RulesFile != "" {
		kw, err := fields.LoadKeywords(c.Extract.RulesFile)
		if err != nil {
			return nil, err
		}
		hybridRules = hybridRules.WithKeywords(kw)
		danfeRules = danfeRules.WithKeywords(kw)
	}

	opts := fields.Options{
		MaxItems:        c.Extract.MaxItems,
		NoiseFloor:      decimal.NewFromFloat(c.Extract.NoiseFloor),
		DateWindowYears: c.Extract.DateWindowYears,
		OracleMaxChars:  c.NLP.MaxInputChars,
	}
	timeout := ocr.Timeout(c.OCR)

	return cascade.NewController(
		cascade.Structured{},
		cascade.Hybrid{
			Source:       &ocr.Acquirer{Native: native, OCR: ocrExtractor, MinNativeChars: 1, Timeout: timeout},
			Fields:       fields.NewEngine(hybridRules, oracle, opts),
			MinTextChars: c.Extract.MinTextChars,
		},
		cascade.OCR{
			Source: &ocr.Acquirer{Native: native, OCR: ocrExtractor, MinNativeChars: c.Extract.MinNativeChars, Timeout: timeout},
			Fields: fields.NewEngine(danfeRules, nil, opts),
		},
	), nil
}

func buildOracle(c *config.Config) (nlp.Oracle, error) {
	if c.NLP.Provider != "anthropic" {
		return nil, nil
	}
	client := anthropicpkg.NewClient(c.Anthropic.Key, option.WithMaxRetries(c.Anthropic.MaxRetries))
	oracle, err := nlp.NewClaudeOracle(client, nlp.ClaudeConfig{
		Model:      c.NLP.Model,
		RatePerSec: c.NLP.RatePerSec,
	})
	if err != nil {
		return nil, err
	}
	return oracle, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// extractDocument runs the cascade over path and describes the result as a
// run. The error is non-nil only for failures other than "no data".
func extractDocument(ctx context.Context, r resolver, path, name string) (model.ExtractionRun, error) {
	start := time.Now()
	ext := cascade.Extension(name)
	run := model.ExtractionRun{FileName: name, Extension: ext}

	outcome, err := r.Resolve(ctx, path, ext)
	run.DurationMS = time.Since(start).Milliseconds()

	switch {
	case err == nil:
		run.Method = outcome.Strategy.Method()
		run.Completeness = outcome.Percent()
		run.Response = model.NewResponse(outcome)
		return run, nil
	case errors.Is(err, cascade.ErrNoUsableExtraction):
		run.Error = model.NoDataMessage
		return run, nil
	default:
		run.Error = err.Error()
		zap.L().Error("extraction failed", zap.String("file", name), zap.Error(err))
		return run, err
	}
}

// responseBody is the JSON document returned to callers for run.
func responseBody(run model.ExtractionRun) any {
	if run.Response != nil {
		return run.Response
	}
	return model.ErrorResponse{Error: model.NoDataMessage}
}
