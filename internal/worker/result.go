package worker

import (
	"errors"
	"fmt"
	"io"
)

// Stage names the step of the per-item pipeline where a conversion stopped.
type Stage string

const (
	StageIdempotency Stage = "idempotency-check"
	StageDownload    Stage = "download"
	StageSourceCRS   Stage = "source-crs"
	StageTranscode   Stage = "transcode"
	StageOutputCRS   Stage = "output-crs"
	StageUpload      Stage = "upload"
	StageInternal    Stage = "internal"
)

var (
	// ErrMissingCRS is returned when a raster carries no coordinate reference system.
	ErrMissingCRS = errors.New("missing CRS")
	// ErrCRSMismatch is returned when the output CRS differs from the source CRS.
	ErrCRSMismatch = errors.New("CRS mismatch")
	// ErrNoRequest is returned when a worker has no keys to convert.
	ErrNoRequest = errors.New("no keys to convert")
)

// StageError tags an item failure with its stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// ConversionResult is the outcome of one source key. A skipped item has
// both Success and Skipped set; a failed one has neither.
type ConversionResult struct {
	SourceKey   string `json:"sourceKey"`
	DestKey     string `json:"destKey"`
	Success     bool   `json:"success"`
	Skipped     bool   `json:"skipped"`
	Error       string `json:"error,omitempty"`
	Stage       Stage  `json:"stage,omitempty"`
	SourceCRS   string `json:"sourceCrs,omitempty"`
	OutputCRS   string `json:"outputCrs,omitempty"`
	SourceBytes int64  `json:"sourceBytes,omitempty"`
	OutputBytes int64  `json:"outputBytes,omitempty"`
	DurationMs  int64  `json:"durationMs"`

	// Read back from the uploaded output.
	OutputDriver string `json:"outputDriver,omitempty"`
	Tiled        bool   `json:"tiled,omitempty"`
	HasOverviews bool   `json:"hasOverviews,omitempty"`

	err error
}

// Err returns the stage error of a failed result.
func (r ConversionResult) Err() error { return r.err }

// CompressionRatio is source size over output size, or 0 when unknown.
func (r ConversionResult) CompressionRatio() float64 {
	if r.SourceBytes == 0 || r.OutputBytes == 0 {
		return 0
	}
	return float64(r.SourceBytes) / float64(r.OutputBytes)
}

func (r *ConversionResult) fail(stage Stage, err error) {
	se := &StageError{Stage: stage, Err: err}
	r.Success = false
	r.Skipped = false
	r.Stage = stage
	r.Error = se.Error()
	r.err = se
}

// Failure is one failed key in a BatchOutcome.
type Failure struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

// Outcome kinds.
const (
	KindEmpty   = "empty"
	KindSuccess = "success"
	KindPartial = "partial"
	KindFailed  = "failed"
)

// BatchOutcome aggregates the results of one worker invocation.
type BatchOutcome struct {
	Total     int                `json:"total"`
	Succeeded int                `json:"succeeded"`
	Skipped   int                `json:"skipped"`
	Failed    int                `json:"failed"`
	Failures  []Failure          `json:"failures"`
	Results   []ConversionResult `json:"results"`
}

// Add counts r. Skipped items are not counted as succeeded.
func (o *BatchOutcome) Add(r ConversionResult) {
	o.Total++
	o.Results = append(o.Results, r)
	switch {
	case !r.Success:
		o.Failed++
		o.Failures = append(o.Failures, Failure{Key: r.SourceKey, Error: r.Error})
	case r.Skipped:
		o.Skipped++
	default:
		o.Succeeded++
	}
}

// Kind distinguishes fully successful, partially failed and completely
// failed batches.
func (o *BatchOutcome) Kind() string {
	switch {
	case o.Total == 0:
		return KindEmpty
	case o.Failed == 0:
		return KindSuccess
	case o.Failed == o.Total:
		return KindFailed
	default:
		return KindPartial
	}
}

// Process exit codes shared by every binary.
const (
	ExitSuccess = 0
	ExitFailure = 1
	ExitConfig  = 2
)

// ExitCode is ExitSuccess iff no item failed.
func (o *BatchOutcome) ExitCode() int {
	if o.Failed > 0 {
		return ExitFailure
	}
	return ExitSuccess
}

// WriteSummary prints the run totals and every failed key.
func (o *BatchOutcome) WriteSummary(w io.Writer) {
	fmt.Fprintf(w, "Total: %d  Succeeded: %d  Skipped: %d  Failed: %d\n", o.Total, o.Succeeded, o.Skipped, o.Failed)
	if len(o.Failures) == 0 {
		return
	}
	fmt.Fprintln(w, "Failed keys:")
	for _, f := range o.Failures {
		fmt.Fprintf(w, "  %s\t%s\n", f.Key, f.Error)
	}
}
