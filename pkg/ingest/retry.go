package ingest

import (
	"context"
	"math/rand/v2"
	"time"
)

// Backoff computes the sleep before a retry: min(Max, Base·2^attempt) plus
// a uniform jitter in [0, Jitter).
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter time.Duration
}

// DefaultBackoff is 50ms doubling up to 2s, plus up to 100ms of jitter.
var DefaultBackoff = Backoff{
	Base:   50 * time.Millisecond,
	Max:    2 * time.Second,
	Jitter: 100 * time.Millisecond,
}

// Delay returns the wait before retry number attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Max
	if attempt < 32 {
		if exp := b.Base << attempt; exp > 0 && exp < b.Max {
			d = exp
		}
	}
	if b.Jitter > 0 {
		d += rand.N(b.Jitter)
	}
	return d
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
