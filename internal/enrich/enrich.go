package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Mariyan2/AI-Powered-Clothing-Tagging-Marketplace/internal/provider"
)

// Result holds the three generated fields for one image.
type Result struct {
	Title   string
	Tags    string
	AltText string
}

// Error reports an enrichment that produced no usable tags or alt-text
// even after fallbacks.
type Error struct {
	TagsEmpty bool
	AltEmpty  bool
}

// Error implements the error interface with the per-field diagnosis the
// upload API surfaces to callers.
func (e *Error) Error() string {
	var b strings.Builder
	if e.TagsEmpty {
		b.WriteString("llmTags is empty (vision tagging failed). ")
	}
	if e.AltEmpty {
		b.WriteString("altText is empty (vision captioning failed).")
	}
	return strings.TrimSpace(b.String())
}

// BulkStatus is the tagged outcome of a bulk-path enrichment.
type BulkStatus int

const (
	// BulkOK means the result is usable.
	BulkOK BulkStatus = iota
	// BulkFailed means this item failed but the batch may continue.
	BulkFailed
	// BulkRateLimited means a provider signalled a hard rate limit and
	// the whole batch should stop.
	BulkRateLimited
)

// Enricher runs the title, tag and caption calls for one image and applies
// the normalization/fallback rules. The interactive path retries through
// rate limits; the bulk path aborts on the first rate-limit signal.
type Enricher struct {
	retrier *provider.Retrier
	bulk    *provider.BulkCaller
	logger  *slog.Logger

	// Bulk attempt budgets. The caption provider gets a shorter track
	// because its quota is tighter.
	bulkLLMRetry     provider.BulkRetryConfig
	bulkCaptionRetry provider.BulkRetryConfig
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithRetryConfig overrides the interactive retry configuration.
func WithRetryConfig(gen provider.Generator, cfg provider.RetryConfig, logger *slog.Logger) Option {
	return func(e *Enricher) { e.retrier = provider.NewRetrier(gen, cfg, logger) }
}

// WithBulkRetry overrides the bulk attempt budgets.
func WithBulkRetry(llm, caption provider.BulkRetryConfig) Option {
	return func(e *Enricher) {
		e.bulkLLMRetry = llm
		e.bulkCaptionRetry = caption
	}
}

// New creates an Enricher on top of gen, which must handle all three kinds
// (typically a provider.Router).
func New(gen provider.Generator, logger *slog.Logger, opts ...Option) *Enricher {
	e := &Enricher{
		retrier:          provider.NewRetrier(gen, provider.DefaultRetryConfig(), logger),
		bulk:             provider.NewBulkCaller(gen, logger),
		logger:           logger,
		bulkLLMRetry:     provider.BulkRetryConfig{MaxAttempts: 5, StartDelay: 500 * time.Millisecond, MaxDelay: 6 * time.Second},
		bulkCaptionRetry: provider.BulkRetryConfig{MaxAttempts: 3, StartDelay: 400 * time.Millisecond, MaxDelay: 4 * time.Second},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich runs the interactive enrichment used by single uploads. Provider
// failures degrade to empty fields; the item only fails when tags or
// alt-text remain empty after fallbacks. The returned step names the stage
// that left the result unusable.
func (e *Enricher) Enrich(ctx context.Context, imageURL, filename string) (Result, string, error) {
	base := StripExt(filename)

	aiTitle, err := e.retrier.Generate(ctx, provider.KindTitle, imageURL)
	if err != nil {
		e.logger.Warn("title_generation_failed", slog.String("file", filename), slog.String("error", err.Error()))
		aiTitle = ""
	}
	title := ChooseTitle(NormalizeTitle(aiTitle), base)

	rawTags, err := e.retrier.Generate(ctx, provider.KindTags, imageURL)
	if err != nil {
		e.logger.Warn("tag_generation_failed", slog.String("file", filename), slog.String("error", err.Error()))
		rawTags = ""
	}
	tags := NormalizeTags(rawTags)

	caption, err := e.retrier.Generate(ctx, provider.KindCaption, imageURL)
	if err != nil {
		e.logger.Warn("caption_generation_failed", slog.String("file", filename), slog.String("error", err.Error()))
		caption = ""
	}
	alt := strings.TrimSpace(caption)

	step := "alt"
	if alt == "" && tags != "" {
		step = "altFromTags"
		alt = AltTextFromTags(tags)
	}

	res := Result{Title: title, Tags: tags, AltText: alt}
	if tags == "" || alt == "" {
		if tags == "" {
			step = "tags"
		}
		return res, step, &Error{TagsEmpty: tags == "", AltEmpty: alt == ""}
	}
	return res, "", nil
}

// EnrichBulk runs the batch-path enrichment. A rate-limit signal from
// any of the three calls aborts with BulkRateLimited and a reason; other
// failures degrade per field, and the item fails only when tags or
// alt-text end up empty.
func (e *Enricher) EnrichBulk(ctx context.Context, imageURL, filename string) (Result, BulkStatus, string) {
	base := StripExt(filename)

	titleOut := e.bulk.Call(ctx, e.bulkLLMRetry, provider.KindTitle, imageURL)
	if titleOut.RateLimited {
		return Result{}, BulkRateLimited, titleOut.Reason
	}
	title := ChooseTitle(NormalizeTitle(titleOut.Text), base)

	tagsOut := e.bulk.Call(ctx, e.bulkLLMRetry, provider.KindTags, imageURL)
	if tagsOut.RateLimited {
		return Result{}, BulkRateLimited, tagsOut.Reason
	}
	tags := NormalizeTags(tagsOut.Text)

	altOut := e.bulk.Call(ctx, e.bulkCaptionRetry, provider.KindCaption, imageURL)
	if altOut.RateLimited {
		return Result{}, BulkRateLimited, altOut.Reason
	}
	alt := strings.TrimSpace(altOut.Text)
	if alt == "" && tags != "" {
		alt = AltTextFromTags(tags)
	}

	res := Result{Title: title, Tags: tags, AltText: alt}
	if tags == "" || alt == "" {
		return res, BulkFailed, fmt.Sprintf("enrichment failed for %s: tags or altText empty", filename)
	}
	return res, BulkOK, ""
}
