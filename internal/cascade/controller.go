// Package cascade runs extraction strategies in priority order and keeps
// the most complete record.
package cascade

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/nfe-extract/internal/model"
	"github.com/sells-group/nfe-extract/internal/scorer"
)

// Controller drives strategies in the fixed order it was built with. It
// holds no per-document state and is safe for concurrent use.
type Controller struct {
	strategies []Strategy
}

// NewController returns a Controller running strategies in the given order.
func NewController(strategies ...Strategy) *Controller {
	return &Controller{strategies: strategies}
}

// Extension returns the lower-case extension of path without the dot.
func Extension(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// Resolve extracts the best record from the document at path. A strategy
// runs only while there is no record or the best one is critically
// incomplete, and a candidate replaces the best only when strictly more
// complete. Strategy failures are logged and skipped. When nothing is
// produced Resolve returns ErrNoUsableExtraction.
func (c *Controller) Resolve(ctx context.Context, path, ext string) (model.ExtractionOutcome, error) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	log := zap.L().With(zap.String("path", path), zap.String("ext", ext))

	var (
		best     *model.InvoiceRecord
		bestKind model.Strategy
	)
	for _, s := range c.strategies {
		if best != nil && !scorer.IsCriticallyIncomplete(best) {
			break
		}
		if !s.Applies(ext) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return model.ExtractionOutcome{}, eris.Wrap(err, "cascade: resolve")
		}

		res := run(ctx, s, path, ext)
		if !res.OK() {
			log.Warn("cascade: strategy produced nothing",
				zap.String("strategy", s.Kind().String()),
				zap.String("kind", res.Kind.String()),
				zap.Error(res.Err),
			)
			continue
		}

		if scorer.IsMoreComplete(*res.Record, best) {
			log.Debug("cascade: new best record",
				zap.String("strategy", s.Kind().String()),
				zap.Int("filled", scorer.FilledCount(*res.Record)),
			)
			best, bestKind = res.Record, s.Kind()
		}
	}

	if best == nil {
		return model.ExtractionOutcome{}, ErrNoUsableExtraction
	}
	return model.ExtractionOutcome{
		Record:       *best,
		Strategy:     bestKind,
		Completeness: scorer.Completeness(*best),
	}, nil
}

// run calls s.Extract, converting a panic into a failed Result.
func run(ctx context.Context, s Strategy, path, ext string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Kind: KindInternal, Err: eris.Errorf("cascade: %s strategy panicked: %v", s.Kind(), r)}
		}
	}()
	return s.Extract(ctx, path, ext)
}
