package main

import (
	"context"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/nfe-extract/internal/inbox"
	"github.com/sells-group/nfe-extract/internal/model"
	"github.com/sells-group/nfe-extract/internal/report"
	"github.com/sells-group/nfe-extract/pkg/notion"
)

var (
	batchLimit       int
	batchConcurrency int
	batchReport      string
	batchNotion      bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <dir|file|ftp-url>",
	Short: "Extract every invoice in a directory or FTP folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("batch"); err != nil {
			return err
		}

		ctrl, err := buildController(cfg)
		if err != nil {
			return err
		}

		src, err := inbox.Open(args[0], cfg.Inbox)
		if err != nil {
			return err
		}
		defer src.Close() //nolint:errcheck

		docs, err := src.List(ctx)
		if err != nil {
			return eris.Wrap(err, "batch: list documents")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		var ledger *notion.Ledger
		if batchNotion {
			if cfg.Notion.Token == "" || cfg.Notion.LedgerDB == "" {
				return eris.New("batch: --notion requires notion.token and notion.ledger_db")
			}
			client := notion.NewClient(cfg.Notion.Token,
				notion.WithRateLimit(cfg.Notion.RatePerSec),
				notion.WithMaxRetries(3),
			)
			ledger = notion.NewLedger(client, cfg.Notion.LedgerDB)
		}

		limit := batchLimit
		if limit == 0 {
			limit = cfg.Batch.Limit
		}
		concurrency := batchConcurrency
		if concurrency == 0 {
			concurrency = cfg.Batch.Concurrency
		}

		runs, err := runBatch(ctx, docs, limit, concurrency, ctrl, func(ctx context.Context, run *model.ExtractionRun) error {
			if err := st.SaveRun(ctx, run); err != nil {
				return err
			}
			if ledger != nil {
				if _, err := ledger.Upsert(ctx, ledgerEntry(*run)); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		if batchReport != "" {
			if err := report.WriteXLSX(batchReport, runs); err != nil {
				return err
			}
			zap.L().Info("report written", zap.String("path", batchReport), zap.Int("runs", len(runs)))
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of documents to process (default from config)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "documents processed in parallel (default from config)")
	batchCmd.Flags().StringVar(&batchReport, "report", "", "write an XLSX report of the batch to this path")
	batchCmd.Flags().BoolVar(&batchNotion, "notion", false, "record each run in the Notion ledger database")
	rootCmd.AddCommand(batchCmd)
}

// recordFunc persists a finished run.
type recordFunc func(ctx context.Context, run *model.ExtractionRun) error

// runBatch applies limit, then extracts docs concurrently. Runs are returned
// in document order. A failing document or recorder never aborts the batch.
func runBatch(ctx context.Context, docs []inbox.Document, limit, concurrency int, r resolver, record recordFunc) ([]model.ExtractionRun, error) {
	if len(docs) == 0 {
		zap.L().Info("no documents found")
		return nil, nil
	}
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("documents", len(docs)),
		zap.Int("concurrency", concurrency),
	)

	runs := make([]model.ExtractionRun, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, noData, failed atomic.Int64

	for i, doc := range docs {
		g.Go(func() error {
			log := zap.L().With(zap.String("file", doc.Name))

			run, err := extractDocument(gctx, r, doc.Path, doc.Name)
			switch {
			case err != nil:
				failed.Add(1)
			case run.Failed():
				noData.Add(1)
				log.Info("no data extracted")
			default:
				succeeded.Add(1)
				log.Info("extraction complete",
					zap.String("method", run.Method),
					zap.Float64("completeness", run.Completeness),
				)
			}

			if record != nil {
				if rErr := record(gctx, &run); rErr != nil {
					log.Warn("failed to record run", zap.Error(rErr))
				}
			}
			runs[i] = run
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return runs, eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("no_data", noData.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return runs, nil
}

func ledgerEntry(run model.ExtractionRun) notion.LedgerEntry {
	e := notion.LedgerEntry{
		RunID:        run.ID,
		FileName:     run.FileName,
		Method:       run.Method,
		Completeness: run.Completeness,
		Error:        run.Error,
		ProcessedAt:  run.CreatedAt,
	}
	if e.ProcessedAt.IsZero() {
		e.ProcessedAt = time.Now()
	}
	if resp := run.Response; resp != nil {
		e.Number = deref(resp.Number)
		e.IssueDate = deref(resp.IssueDate)
		e.IssuerTaxID = deref(resp.IssuerTaxID)
		e.IssuerName = deref(resp.IssuerName)
		e.RecipientTaxID = deref(resp.RecipientTaxID)
		e.Total = resp.TotalAmount
	}
	return e
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
