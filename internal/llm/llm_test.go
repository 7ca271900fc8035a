package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

type fakeClient struct {
	delay    time.Duration
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	calls    atomic.Int32
	block    bool
}

func (f *fakeClient) Complete(ctx context.Context, req Request) (string, error) {
	f.calls.Add(1)
	current := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		old := f.maxSeen.Load()
		if current <= old || f.maxSeen.CompareAndSwap(old, current) {
			break
		}
	}

	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	select {
	case <-time.After(f.delay):
		return "echo: " + req.Prompt, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestLimitedBoundsConcurrency(t *testing.T) {
	t.Parallel()

	fake := &fakeClient{delay: 30 * time.Millisecond}
	limited := NewLimited(fake, "fake", 60000, 2, time.Second, nil)

	var wg sync.WaitGroup
	for i := range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := limited.Complete(context.Background(), Request{Prompt: fmt.Sprint(i)}); err != nil {
				t.Errorf("Complete() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := fake.maxSeen.Load(); got > 2 {
		t.Errorf("max concurrent calls = %d, want at most 2", got)
	}
	if got := fake.calls.Load(); got != 6 {
		t.Errorf("calls = %d, want 6", got)
	}
}

func TestLimitedRateLimit(t *testing.T) {
	t.Parallel()

	fake := &fakeClient{}
	// 600 requests per minute is one every 100ms after the first token.
	limited := NewLimited(fake, "fake", 600, 4, time.Second, nil)

	start := time.Now()
	for range 3 {
		if _, err := limited.Complete(context.Background(), Request{Prompt: "x"}); err != nil {
			t.Fatalf("Complete() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("3 calls took %s, want at least 150ms under the rate limit", elapsed)
	}
}

func TestLimitedTimeout(t *testing.T) {
	t.Parallel()

	limited := NewLimited(&fakeClient{block: true}, "fake", 60000, 1, 20*time.Millisecond, nil)

	_, err := limited.Complete(context.Background(), Request{Prompt: "slow"})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Complete() error = %v, want ErrTimeout", err)
	}
	if !IsRetryable(err) {
		t.Error("timeout should be retryable")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = limited.Complete(ctx, Request{Prompt: "cancelled"})
	if err == nil || errors.Is(err, ErrTimeout) {
		t.Fatalf("Complete() with cancelled context error = %v, want cancellation", err)
	}
	if IsRetryable(err) {
		t.Error("cancellation should not be retryable")
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"gemini unavailable", fmt.Errorf("gemini API call failed: %w", genai.APIError{Code: 503}), true},
		{"gemini rate limited", genai.APIError{Code: 429}, true},
		{"gemini bad request", genai.APIError{Code: 400}, false},
		{"openai rate limited", &openai.APIError{HTTPStatusCode: 429}, true},
		{"openai server error", &openai.RequestError{HTTPStatusCode: 502}, true},
		{"openai unauthorized", &openai.RequestError{HTTPStatusCode: 401}, false},
		{"blocked", fmt.Errorf("%w: safety", ErrBlocked), false},
		{"empty", fmt.Errorf("%w: no choices", ErrEmptyResponse), true},
		{"cancelled", context.Canceled, false},
		{"parent deadline", context.DeadlineExceeded, false},
		{"transport", errors.New("connection reset by peer"), true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := IsRetryable(tc.err); got != tc.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
