package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Mariyan2/AI-Powered-Clothing-Tagging-Marketplace/internal/backoff"
)

// ErrRetriesExhausted is returned when every attempt failed without a
// terminal (non-retriable) error. It is distinct from a rate-limit signal.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryConfig configures the interactive retry loop.
type RetryConfig struct {
	// MaxAttempts is the total number of tries including the first.
	MaxAttempts int
	// StartDelay is the initial backoff for 5xx/transport failures.
	StartDelay time.Duration
	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration
	// RateLimitWait is the sleep before retrying a rate-limited call when
	// the server gave no Retry-After hint.
	RateLimitWait time.Duration
}

// DefaultRetryConfig mirrors the limits the providers tolerate: six tries,
// 500ms doubling to 6s for server errors, a 60s stand-down on an unhinted 429.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   6,
		StartDelay:    500 * time.Millisecond,
		MaxDelay:      6 * time.Second,
		RateLimitWait: 60 * time.Second,
	}
}

// Retrier wraps a Generator with the full retry loop used by the
// interactive upload path: rate limits sleep and retry (honouring the
// server's hint), 5xx and transport errors back off exponentially, and
// any other failure returns immediately.
type Retrier struct {
	gen    Generator
	cfg    RetryConfig
	logger *slog.Logger

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrier creates a Retrier around gen.
func NewRetrier(gen Generator, cfg RetryConfig, logger *slog.Logger) *Retrier {
	return &Retrier{gen: gen, cfg: cfg, logger: logger, sleep: backoff.Sleep}
}

// Generate implements Generator with retries.
//
// The exponential track advances only on server/transport failures;
// rate-limited attempts wait on their own hint (or the fixed fallback)
// and leave the computed backoff untouched.
func (r *Retrier) Generate(ctx context.Context, kind Kind, imageURL string) (string, error) {
	policy := backoff.Policy{Start: r.cfg.StartDelay, Max: r.cfg.MaxDelay}
	step := 0
	var lastErr error

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		out, err := r.gen.Generate(ctx, kind, imageURL)
		if err == nil {
			return out, nil
		}
		lastErr = err

		var pe *Error
		if !errors.As(err, &pe) {
			return "", err
		}

		switch pe.Kind {
		case ErrRateLimited:
			wait := pe.RetryAfter
			if wait <= 0 {
				wait = r.cfg.RateLimitWait
			}
			r.logger.Warn("provider_rate_limited",
				slog.String("kind", string(kind)),
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", r.cfg.MaxAttempts),
				slog.Duration("wait", wait))
			if err := r.sleep(ctx, wait); err != nil {
				return "", err
			}
		case ErrServer, ErrTransport:
			step++
			wait := policy.Next(step)
			r.logger.Warn("provider_retrying",
				slog.String("kind", string(kind)),
				slog.String("reason", pe.Kind.String()),
				slog.Int("attempt", attempt),
				slog.Duration("wait", wait))
			if err := r.sleep(ctx, wait); err != nil {
				return "", err
			}
		default:
			// Non-retriable: hand the classified failure straight back.
			return "", err
		}
	}

	return "", fmt.Errorf("%s: %w after %d attempts: %v", kind, ErrRetriesExhausted, r.cfg.MaxAttempts, lastErr)
}

var _ Generator = (*Retrier)(nil)

// BulkRetryConfig configures one bulk-path call.
type BulkRetryConfig struct {
	MaxAttempts int
	StartDelay  time.Duration
	MaxDelay    time.Duration
}

// Outcome is the tagged result of a bulk-path provider call. Exactly one
// of the three cases holds: a usable Text, RateLimited with a reason, or
// an empty Text meaning the field could not be produced but the batch may
// continue.
type Outcome struct {
	Text        string
	RateLimited bool
	Reason      string
}

// BulkCaller is the narrower retry wrapper used by batch ingestion. Unlike
// Retrier it never sleeps through a rate limit: the first rate-limited
// failure is surfaced as a RateLimited outcome so the whole run can stop
// instead of burning remaining quota item by item. Empty results after all
// attempts degrade to an empty string rather than an error.
type BulkCaller struct {
	gen    Generator
	logger *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewBulkCaller creates a BulkCaller around gen.
func NewBulkCaller(gen Generator, logger *slog.Logger) *BulkCaller {
	return &BulkCaller{gen: gen, logger: logger, sleep: backoff.Sleep}
}

// Call runs one logical generation with up to cfg.MaxAttempts tries.
func (b *BulkCaller) Call(ctx context.Context, cfg BulkRetryConfig, kind Kind, imageURL string) Outcome {
	policy := backoff.Policy{Start: cfg.StartDelay, Max: cfg.MaxDelay}

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		out, err := b.gen.Generate(ctx, kind, imageURL)
		if err != nil && IsRateLimited(err) {
			return Outcome{RateLimited: true, Reason: fmt.Sprintf("rate limit during %s: %v", kind, err)}
		}
		if err == nil && strings.TrimSpace(out) != "" {
			return Outcome{Text: out}
		}
		if err != nil {
			b.logger.Warn("bulk_call_failed",
				slog.String("kind", string(kind)),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
		}
		if attempt < cfg.MaxAttempts {
			if serr := b.sleep(ctx, policy.Next(attempt)); serr != nil {
				return Outcome{}
			}
		}
	}

	// No result but no rate limit either: let the caller degrade gracefully.
	return Outcome{}
}
