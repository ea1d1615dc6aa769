package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// LimitedClient throttles Completer and Embedder calls with a shared token
// bucket so bursts of ingestion work cannot starve interactive questions of
// provider quota.
type LimitedClient struct {
	completer Completer
	embedder  Embedder
	limiter   *rate.Limiter
}

// NewLimitedClient wraps completer and embedder with a token bucket of rps
// requests per second and the given burst.
func NewLimitedClient(completer Completer, embedder Embedder, rps float64, burst int) *LimitedClient {
	return &LimitedClient{
		completer: completer,
		embedder:  embedder,
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Complete waits for a token, then delegates.
func (l *LimitedClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	return l.completer.Complete(ctx, req)
}

// Embed waits for a token, then delegates.
func (l *LimitedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return l.embedder.Embed(ctx, text)
}
