// Package store persists extraction runs in SQLite or Postgres.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/nfe-extract/internal/model"
)

// ErrNotFound is returned by GetRun when no run has the given ID.
var ErrNotFound = eris.New("store: run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Method string `json:"method,omitempty"`
	// Failed selects failed runs when true and successful runs when false.
	Failed       *bool     `json:"failed,omitempty"`
	CreatedAfter time.Time `json:"created_after,omitempty"`
	Limit        int       `json:"limit,omitempty"`
	Offset       int       `json:"offset,omitempty"`
}

// RunStats summarizes the persisted runs.
type RunStats struct {
	Total            int            `json:"total"`
	Failed           int            `json:"failed"`
	ByMethod         map[string]int `json:"by_method"`
	MeanCompleteness float64        `json:"mean_completeness"`
}

// Store defines the persistence interface for extraction runs.
type Store interface {
	// SaveRun inserts run, assigning an ID and creation time when unset.
	SaveRun(ctx context.Context, run *model.ExtractionRun) error
	GetRun(ctx context.Context, id string) (*model.ExtractionRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.ExtractionRun, error)
	Stats(ctx context.Context) (*RunStats, error)

	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func prepareRun(run *model.ExtractionRun) ([]byte, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.Response == nil {
		return nil, nil
	}
	data, err := json.Marshal(run.Response)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal response")
	}
	return data, nil
}

func decodeResponse(run *model.ExtractionRun, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	run.Response = &model.Response{}
	return eris.Wrap(json.Unmarshal(data, run.Response), "store: unmarshal response")
}
