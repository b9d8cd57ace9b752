package inference

import (
	"context"
	"sync"
	"time"
)

// ThrottledEngine wraps a provider with its rate limiter, per-call timeout,
// bounded retries, and pass-wide usage accounting. Every component that
// issues inference calls goes through one of these; nothing talks to a
// provider directly.
type ThrottledEngine struct {
	inner   Engine
	limiter *Limiter
	retry   RetryPolicy
	timeout time.Duration

	mu    sync.Mutex
	usage Usage
	calls int
}

func NewThrottledEngine(inner Engine, limiter *Limiter, retry RetryPolicy, timeout time.Duration) *ThrottledEngine {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ThrottledEngine{
		inner:   inner,
		limiter: limiter,
		retry:   retry,
		timeout: timeout,
	}
}

func (t *ThrottledEngine) Name() string { return t.inner.Name() }

// Ceiling exposes the provider's safe in-flight call count so batch
// dispatchers can size their worker pools.
func (t *ThrottledEngine) Ceiling() int { return t.limiter.Ceiling() }

func (t *ThrottledEngine) Complete(ctx context.Context, p Prompt) (string, Usage, error) {
	var text string
	var total Usage

	err := t.retry.Do(ctx, func() error {
		if err := t.limiter.Acquire(ctx); err != nil {
			return err
		}
		defer t.limiter.Release()

		callCtx, cancel := context.WithTimeout(ctx, t.timeout)
		defer cancel()

		out, usage, err := t.inner.Complete(callCtx, p)
		total.Add(usage)
		t.record(usage)
		if err != nil {
			return err
		}
		text = out
		return nil
	})
	return text, total, err
}

func (t *ThrottledEngine) record(u Usage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.usage.Add(u)
	t.calls++
}

// TotalUsage returns token usage and call count accumulated so far.
func (t *ThrottledEngine) TotalUsage() (Usage, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usage, t.calls
}
