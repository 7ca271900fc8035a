package llm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/edgard/summarybot/internal/config"
)

// jsonInstruction is appended to the system prompt when a JSON answer is requested,
// since OpenAI compatible servers do not all support response schemas.
const jsonInstruction = "\n\nAnswer with a JSON array only. Do not wrap it in markdown."

type openAIClient struct {
	client      *openai.Client
	log         *slog.Logger
	model       string
	temperature float32
	instruction string
}

// NewOpenAIClient creates a Client for the OpenAI chat completions API or a compatible server.
func NewOpenAIClient(cfg config.LLMConfig, callTimeout time.Duration, log *slog.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	openAICfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		openAICfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	if callTimeout > 0 {
		openAICfg.HTTPClient = &http.Client{Timeout: callTimeout}
	}

	logger := log.With("component", "openai_client")
	logger.Info("OpenAI client initialized successfully", "model", cfg.Model, "base_url", openAICfg.BaseURL)
	return &openAIClient{
		client:      openai.NewClientWithConfig(openAICfg),
		log:         logger,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		instruction: cfg.SystemInstruction,
	}, nil
}

// Complete issues a single chat completion call. Retries are left to the caller.
func (c *openAIClient) Complete(ctx context.Context, req Request) (string, error) {
	model := c.model
	if req.Model != "" {
		model = req.Model
	}

	system := c.instruction
	if req.System != "" {
		system = req.System
	}
	if req.JSON {
		system += jsonInstruction
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	c.log.DebugContext(ctx, "Calling OpenAI", "model", model, "prompt_chars", len(req.Prompt), "json", req.JSON)
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: c.temperature,
	})
	if err != nil {
		c.log.WarnContext(ctx, "OpenAI API call failed", "model", model, "error", err)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrEmptyResponse)
	}
	if resp.Choices[0].FinishReason == openai.FinishReasonContentFilter {
		return "", fmt.Errorf("%w: content filter", ErrBlocked)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
