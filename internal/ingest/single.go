package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Mariyan2/AI-Powered-Clothing-Tagging-Marketplace/internal/store"
)

// SingleResult is the outcome of a single-image upload.
type SingleResult struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	ImageURL  string `json:"imageURL"`
	SignedURL string `json:"signedURL,omitempty"`
	Tags      string `json:"llmTags"`
	AltText   string `json:"altText"`
}

// IngestSingle runs the interactive upload pipeline: bucket check,
// upload, signing, enrichment with full retries, save. Failures carry
// the step they occurred in via StepError. When enrichment fails after
// the image is already uploaded, the returned result still carries the
// image URL and fallback title so the caller can surface a partial
// outcome.
func (o *Orchestrator) IngestSingle(ctx context.Context, data []byte, filename, contentType string) (SingleResult, error) {
	var res SingleResult

	if len(data) == 0 {
		return res, &StepError{Step: "upload", Err: ErrEmptyPayload}
	}

	if err := o.Blob.BucketExists(ctx); err != nil {
		return res, &StepError{Step: "bucket", Err: fmt.Errorf("%w: %v", ErrMissingBucket, err)}
	}

	key := uuid.NewString() + "-" + filename
	if err := o.Blob.Put(ctx, key, data, contentType); err != nil {
		return res, &StepError{Step: "upload", Err: err}
	}

	res.ImageURL = o.Blob.PublicURL(key)
	signedURL, err := o.Blob.SignedURL(ctx, key, o.SignedURLTTL)
	if err != nil {
		return res, &StepError{Step: "sign", Err: err}
	}
	res.SignedURL = signedURL

	result, step, err := o.Enricher.Enrich(ctx, signedURL, filename)
	res.Title = result.Title
	res.Tags = result.Tags
	res.AltText = result.AltText
	if err != nil {
		return res, &StepError{Step: step, Err: err}
	}

	saved, err := o.Posts.Save(ctx, store.Post{
		Title:    result.Title,
		ImageURL: res.ImageURL,
		Date:     time.Now().Format("2006-01-02"),
		Tags:     result.Tags,
		AltText:  result.AltText,
	})
	if err != nil {
		return res, &StepError{Step: "save", Err: err}
	}
	res.ID = saved.ID

	o.Logger.Info("image_ingested",
		slog.String("id", saved.ID),
		slog.String("title", saved.Title))
	return res, nil
}
