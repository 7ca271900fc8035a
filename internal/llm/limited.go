package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/edgard/summarybot/internal/logger"
	"github.com/edgard/summarybot/internal/metrics"
)

// Limited bounds calls to a Client: a token bucket caps the request rate, a
// semaphore caps in-flight calls and every call gets its own deadline.
type Limited struct {
	next     Client
	provider string
	limiter  *rate.Limiter
	sem      *semaphore.Weighted
	timeout  time.Duration
	logger   *slog.Logger
}

// NewLimited wraps next. requestsPerMinute and concurrency below 1 are treated as 1;
// a zero timeout disables the per-call deadline.
func NewLimited(next Client, provider string, requestsPerMinute, concurrency int, timeout time.Duration, logger *slog.Logger) *Limited {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	rpm := max(requestsPerMinute, 1)
	return &Limited{
		next:     next,
		provider: provider,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
		sem:      semaphore.NewWeighted(int64(max(concurrency, 1))),
		timeout:  timeout,
		logger:   logger.With("component", "llm", "provider", provider),
	}
}

// Provider returns the wrapped provider name.
func (l *Limited) Provider() string {
	return l.provider
}

// Complete waits for a concurrency slot and a rate token, then calls the wrapped client.
// A call that runs past its own deadline while ctx is still live fails with ErrTimeout.
func (l *Limited) Complete(ctx context.Context, req Request) (string, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("waiting for llm slot: %w", err)
	}
	defer l.sem.Release(1)

	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for llm rate limit: %w", err)
	}

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if l.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, l.timeout)
	}
	defer cancel()

	start := time.Now()
	text, err := l.next.Complete(callCtx, req)
	duration := time.Since(start)
	metrics.LLMCallDuration.WithLabelValues(l.provider).Observe(duration.Seconds())

	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s: %w", ErrTimeout, l.timeout, err)
		}
		metrics.LLMCalls.WithLabelValues(l.provider, "error").Inc()
		l.logger.WarnContext(ctx, "LLM call failed", "duration_ms", duration.Milliseconds(), "error", err)
		return "", err
	}

	metrics.LLMCalls.WithLabelValues(l.provider, "success").Inc()
	l.logger.DebugContext(ctx, "LLM call completed",
		"duration_ms", duration.Milliseconds(),
		"response_chars", len(text),
		"response_preview", logger.Truncate(text, 200))
	return text, nil
}
