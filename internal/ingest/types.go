// Package ingest drives the image intake pipelines: the bulk folder run
// and the single-upload path, both ending in a saved, indexed post.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/Mariyan2/AI-Powered-Clothing-Tagging-Marketplace/internal/enrich"
)

// Report summarizes a bulk run. StopReason is set only when the run was
// aborted early by a provider rate limit; files after the stopping point
// are left untouched for the next run.
type Report struct {
	Success    int    `json:"success"`
	Failed     int    `json:"failed"`
	Skipped    int    `json:"skipped"`
	StopReason string `json:"stopReason,omitempty"`
}

// Completed reports whether the run processed the whole folder.
func (r Report) Completed() bool {
	return r.StopReason == ""
}

// Enricher is the enrichment surface the pipelines call. The single-item
// path retries through rate limits; the bulk path stops on them.
type Enricher interface {
	Enrich(ctx context.Context, imageURL, filename string) (enrich.Result, string, error)
	EnrichBulk(ctx context.Context, imageURL, filename string) (enrich.Result, enrich.BulkStatus, string)
}

// Sentinel errors for the single-upload path.
var (
	ErrEmptyPayload  = errors.New("uploaded file is empty")
	ErrMissingBucket = errors.New("storage bucket is not available")
)

// StepError tags a pipeline failure with the step that produced it, so
// callers can report how far the upload got.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
