package cascade

import (
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/nfe-extract/internal/model"
	"github.com/sells-group/nfe-extract/internal/nfe"
	"github.com/sells-group/nfe-extract/internal/ocr"
)

// ErrNoUsableExtraction is returned by Resolve when no strategy produced a
// record.
var ErrNoUsableExtraction = eris.New("cascade: no usable extraction")

var (
	// ErrInsufficientText marks acquired text too short for field rules.
	ErrInsufficientText = eris.New("cascade: insufficient text")
	// ErrEmptyRecord marks a strategy whose rules recognized no field.
	ErrEmptyRecord = eris.New("cascade: no field recognized")
)

// ErrorKind classifies why a strategy produced nothing.
type ErrorKind int

const (
	// KindNone means the strategy succeeded.
	KindNone ErrorKind = iota
	// KindMalformed is a structured document that failed to parse.
	KindMalformed
	// KindAcquisition means no text could be obtained.
	KindAcquisition
	// KindNoData means text was read but yielded no usable record.
	KindNoData
	// KindInternal covers unexpected errors and recovered panics.
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindMalformed:
		return "malformed"
	case KindAcquisition:
		return "acquisition"
	case KindNoData:
		return "no_data"
	default:
		return "internal"
	}
}

// Result is what a strategy returns: a record or an error, never both.
type Result struct {
	Record *model.InvoiceRecord
	Kind   ErrorKind
	Err    error
}

// Success wraps rec in a successful Result.
func Success(rec model.InvoiceRecord) Result {
	return Result{Record: &rec}
}

// Failure wraps err in a failed Result, classifying it by kind.
func Failure(err error) Result {
	return Result{Kind: classify(err), Err: err}
}

// OK reports whether the strategy produced a record.
func (r Result) OK() bool {
	return r.Err == nil && r.Record != nil
}

func classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case nfe.IsMalformed(err):
		return KindMalformed
	case errors.Is(err, ocr.ErrAcquisition):
		return KindAcquisition
	case errors.Is(err, ErrInsufficientText), errors.Is(err, ErrEmptyRecord):
		return KindNoData
	default:
		return KindInternal
	}
}
