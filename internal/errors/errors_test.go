package errors_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	errs "github.com/edgard/summarybot/internal/errors"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")

	testCases := []struct {
		name     string
		err      error
		kind     string
		sentinel error
	}{
		{
			name:     "source unavailable",
			err:      errs.NewSourceUnavailable("read store", cause),
			kind:     errs.KindSourceUnavailable,
			sentinel: errs.ErrSourceUnavailable,
		},
		{
			name:     "summarization failed wrapped",
			err:      fmt.Errorf("scope 1: %w", errs.NewSummarizationFailed("llm", cause)),
			kind:     errs.KindSummarizationFailed,
			sentinel: errs.ErrSummarizationFailed,
		},
		{
			name:     "publish failed",
			err:      errs.NewPublishFailed("post header", cause),
			kind:     errs.KindPublishFailed,
			sentinel: errs.ErrPublishFailed,
		},
		{
			name:     "configuration sentinel via fmt",
			err:      fmt.Errorf("%w: missing token", errs.ErrConfiguration),
			kind:     errs.KindConfiguration,
			sentinel: errs.ErrConfiguration,
		},
		{
			name: "unclassified",
			err:  context.DeadlineExceeded,
			kind: errs.KindUnknown,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := errs.KindOf(tc.err); got != tc.kind {
				t.Errorf("KindOf() = %q, want %q", got, tc.kind)
			}
			if tc.sentinel != nil && !errors.Is(tc.err, tc.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false, want true", tc.err, tc.sentinel)
			}
		})
	}

	if got := errs.KindOf(nil); got != "" {
		t.Errorf("KindOf(nil) = %q, want empty", got)
	}
}

func TestErrorKeepsCause(t *testing.T) {
	t.Parallel()

	err := errs.NewSummarizationFailed("chunk 2", context.Canceled)
	if !errors.Is(err, context.Canceled) {
		t.Error("cause is not reachable through errors.Is")
	}
	if errors.Is(err, errs.ErrPublishFailed) {
		t.Error("summarization error matched the publish sentinel")
	}
	if got, want := err.Error(), "chunk 2: context canceled"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
