package inference

import (
	"context"

	"golang.org/x/time/rate"
)

// ConcurrencyCeiling derives the safe number of simultaneous in-flight calls
// from a provider's published per-minute rate limit. Never an arbitrary
// constant: a fixed ceiling of 10 against a 50-requests-per-minute limit
// overshoots the limit roughly 7x once calls are short.
func ConcurrencyCeiling(ratePerMinute int, safetyMargin float64) int {
	if safetyMargin <= 0 || safetyMargin > 1 {
		safetyMargin = 0.8
	}
	ceiling := int(float64(ratePerMinute) / 60.0 * safetyMargin)
	if ceiling < 1 {
		ceiling = 1
	}
	return ceiling
}

// Limiter bounds one provider's request rate and in-flight concurrency.
// Distinct providers get distinct limiters since their rate limits differ.
type Limiter struct {
	tokens  *rate.Limiter
	sem     chan struct{}
	ceiling int
}

func NewLimiter(ratePerMinute int, safetyMargin float64) *Limiter {
	if ratePerMinute <= 0 {
		ratePerMinute = 60
	}
	if safetyMargin <= 0 || safetyMargin > 1 {
		safetyMargin = 0.8
	}
	ceiling := ConcurrencyCeiling(ratePerMinute, safetyMargin)
	return &Limiter{
		tokens:  rate.NewLimiter(rate.Limit(float64(ratePerMinute)/60.0*safetyMargin), ceiling),
		sem:     make(chan struct{}, ceiling),
		ceiling: ceiling,
	}
}

func (l *Limiter) Ceiling() int { return l.ceiling }

// Acquire blocks until a request may start, or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := l.tokens.Wait(ctx); err != nil {
		<-l.sem
		return err
	}
	return nil
}

func (l *Limiter) Release() {
	<-l.sem
}
