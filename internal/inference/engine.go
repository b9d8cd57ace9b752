// Package inference wraps the language-model providers behind one contract:
// bounded prompt in, raw text out, under a timeout, with transport failures
// classified so callers can apply the right fallback.
package inference

import "context"

type Prompt struct {
	System    string
	User      string
	MaxTokens int64
}

// Usage accumulates token accounting across calls.
type Usage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

func (u Usage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheCreationInputTokens += other.CacheCreationInputTokens
	u.CacheReadInputTokens += other.CacheReadInputTokens
}

// Engine is one inference provider. Implementations must honor ctx
// cancellation and return the response text verbatim; parsing belongs to the
// caller, which knows what shape it asked for.
type Engine interface {
	Name() string
	Complete(ctx context.Context, p Prompt) (string, Usage, error)
}
