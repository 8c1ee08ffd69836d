// Package provider contains the clients for the external AI services that
// enrich an image with a title, a tag list, and an alt-text caption, plus
// the retry machinery that keeps those calls alive under rate limiting.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Mariyan2/AI-Powered-Clothing-Tagging-Marketplace/internal/backoff"
)

// Kind identifies one of the three enrichment operations.
type Kind string

const (
	KindTitle   Kind = "title"
	KindTags    Kind = "tags"
	KindCaption Kind = "caption"
)

// ErrorKind classifies a provider failure for retry decisions.
type ErrorKind int

const (
	// ErrRateLimited is HTTP 429 or a rate-limit marker in the body.
	ErrRateLimited ErrorKind = iota
	// ErrServer is a transient 5xx.
	ErrServer
	// ErrClient is a non-retriable 4xx or malformed response.
	ErrClient
	// ErrTransport is a network-level failure before classification.
	ErrTransport
)

// String returns a human-readable name for the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrRateLimited:
		return "rate_limited"
	case ErrServer:
		return "server_error"
	case ErrClient:
		return "client_error"
	case ErrTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Error is a classified provider failure. RetryAfter carries the server's
// retry hint when one was present on a rate-limit response; zero means no
// hint was given.
type Error struct {
	Kind       ErrorKind
	Op         string // e.g. "vision-title", "azure-caption"
	Status     int
	Body       string
	RetryAfter time.Duration
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: HTTP %d: %s", e.Op, e.Kind, e.Status, e.Body)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether err is a classified rate-limit failure.
func IsRateLimited(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == ErrRateLimited
}

// Generator is the single capability interface behind all three enrichment
// calls. Implementations issue exactly one request per call and return the
// raw text result; classification of failures happens via *Error. Retry
// policy is layered on top (Retrier, BulkCaller), not baked in here.
type Generator interface {
	Generate(ctx context.Context, kind Kind, imageURL string) (string, error)
}

// Router dispatches generation requests to the right backing provider:
// captions go to the vision service, titles and tags to the LLM.
type Router struct {
	LLM     Generator
	Caption Generator
}

// Generate implements Generator.
func (r Router) Generate(ctx context.Context, kind Kind, imageURL string) (string, error) {
	if kind == KindCaption {
		return r.Caption.Generate(ctx, kind, imageURL)
	}
	return r.LLM.Generate(ctx, kind, imageURL)
}

var _ Generator = Router{}

const maxErrBody = 400

// classifyResponse turns a non-2xx HTTP response into a typed *Error.
// 429 and bodies carrying a rate-limit marker classify as rate limited,
// with the Retry-After header (integer seconds) preserved as a hint.
func classifyResponse(op string, resp *http.Response, body []byte) error {
	text := string(body)
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || looksRateLimited(text):
		e := &Error{Kind: ErrRateLimited, Op: op, Status: resp.StatusCode, Body: truncate(text, maxErrBody)}
		if hint, ok := backoff.ParseRetryAfter(resp.Header.Get("Retry-After")); ok {
			e.RetryAfter = hint
		}
		return e
	case resp.StatusCode >= 500:
		return &Error{Kind: ErrServer, Op: op, Status: resp.StatusCode, Body: truncate(text, maxErrBody)}
	default:
		return &Error{Kind: ErrClient, Op: op, Status: resp.StatusCode, Body: truncate(text, maxErrBody)}
	}
}

// transportError wraps a network-level failure as a retriable *Error.
func transportError(op string, err error) error {
	return &Error{Kind: ErrTransport, Op: op, Err: err}
}

// looksRateLimited checks for the rate-limit markers some providers put in
// the response body instead of (or in addition to) the status code.
func looksRateLimited(body string) bool {
	low := strings.ToLower(body)
	return strings.Contains(low, "rate limit") || strings.Contains(low, "rate_limit")
}

// drainBody reads and closes the response body, bounding the read so a
// misbehaving server cannot make us buffer arbitrarily large errors.
func drainBody(resp *http.Response) []byte {
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil
	}
	return data
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
