// Package backoff provides the wait-duration policy used when retrying
// calls against rate-limited external providers.
package backoff

import (
	"context"
	"strconv"
	"time"
)

// Policy computes exponential backoff delays: the first attempt waits
// Start, and every subsequent attempt doubles the wait up to Max.
// A Policy is pure and carries no state between calls.
type Policy struct {
	Start time.Duration
	Max   time.Duration
}

// Next returns the delay for the given retry attempt (1-based).
// Next(1) == Start; the delay doubles per attempt and never exceeds Max.
func (p Policy) Next(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.Start
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.Max || d <= 0 {
			return p.Max
		}
	}
	if d > p.Max {
		return p.Max
	}
	return d
}

// ParseRetryAfter parses a Retry-After header value expressed as integer
// seconds. HTTP-date forms are not supported; the providers we talk to
// only send the delta-seconds form.
func ParseRetryAfter(v string) (time.Duration, bool) {
	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

// Sleep blocks for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
