package llm

import (
	"context"

	"github.com/resourceburglar/localqa/internal/log"
)

// FallbackCompleter wraps a Completer with a one-shot history-stripping
// fallback. Some upstream providers reject requests whose conversational
// context trips a safety filter even though the bare question is fine. When a
// request with history fails, it is retried exactly once with the history
// removed. Answers produced by the fallback must not be attributed to
// retrieved sources, so the caller is told when it fired.
type FallbackCompleter struct {
	inner  Completer
	logger log.Logger
}

// NewFallbackCompleter wraps inner with the strip-history fallback.
func NewFallbackCompleter(inner Completer, logger log.Logger) *FallbackCompleter {
	if logger == nil {
		logger = log.NewNop()
	}
	return &FallbackCompleter{inner: inner, logger: logger}
}

// Complete implements Completer, discarding the fallback flag.
func (f *FallbackCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	text, _, err := f.CompleteWithFallback(ctx, req)
	return text, err
}

// CompleteWithFallback generates a completion, retrying once without history
// on failure. stripped reports whether the answer came from the fallback call.
func (f *FallbackCompleter) CompleteWithFallback(ctx context.Context, req CompletionRequest) (text string, stripped bool, err error) {
	text, err = f.inner.Complete(ctx, req)
	if err == nil || len(req.History) == 0 {
		return text, false, err
	}

	if ctx.Err() != nil {
		return "", false, err
	}

	f.logger.Warn("completion with history failed, retrying without history",
		"error", err)

	bare := req
	bare.History = nil
	text, retryErr := f.inner.Complete(ctx, bare)
	if retryErr != nil {
		// Report the original failure, the retry was best-effort.
		return "", false, err
	}
	return text, true, nil
}
