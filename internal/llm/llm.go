// Package llm provides the text completion clients used for summarization.
// Providers are wrapped in Limited, which bounds their rate, concurrency and call time.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/edgard/summarybot/internal/config"
)

// Provider names.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

var (
	// ErrEmptyResponse is returned when the model answers without text.
	ErrEmptyResponse = errors.New("empty response from model")
	// ErrBlocked is returned when the provider refuses the prompt.
	ErrBlocked = errors.New("prompt blocked by provider")
	// ErrTimeout is returned when a single call exceeds its deadline.
	ErrTimeout = errors.New("llm call timed out")
)

// Request is one completion call.
type Request struct {
	// System is the system instruction. Empty uses the configured default.
	System string
	// Prompt is the user content.
	Prompt string
	// JSON asks for a JSON array of news items.
	JSON bool
	// Model overrides the configured model.
	Model string
}

// Client completes prompts.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// New creates the configured provider wrapped in a Limited client.
func New(ctx context.Context, cfg config.LLMConfig, callTimeout time.Duration, logger *slog.Logger) (*Limited, error) {
	var (
		client Client
		err    error
	)
	switch cfg.Provider {
	case ProviderGemini, "":
		client, err = NewGeminiClient(ctx, cfg, logger)
	case ProviderOpenAI:
		client, err = NewOpenAIClient(cfg, callTimeout, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	provider := cfg.Provider
	if provider == "" {
		provider = ProviderGemini
	}
	return NewLimited(client, provider, cfg.RequestsPerMinute, cfg.MaxConcurrency, callTimeout, logger), nil
}

// IsRetryable reports whether a failed call may succeed when repeated.
// Rate limiting, server errors, timeouts and empty answers are retried;
// blocked prompts, client errors and cancellation are not.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrBlocked) {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrEmptyResponse) {
		return true
	}

	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		return retryableStatus(genaiErr.Code)
	}
	var genaiErrPtr *genai.APIError
	if errors.As(err, &genaiErrPtr) {
		return retryableStatus(genaiErrPtr.Code)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}

	// Transport errors without a status are treated as transient.
	return !errors.Is(err, context.DeadlineExceeded)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= http.StatusInternalServerError
}
