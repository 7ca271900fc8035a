package llm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/edgard/summarybot/internal/config"
)

type geminiClient struct {
	genaiClient      *genai.Client
	log              *slog.Logger
	contentConfig    *genai.GenerateContentConfig
	defaultModelName string
}

var subTopicSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"text":        {Type: genai.TypeString, Description: "One sentence about a related detail."},
		"file":        {Type: genai.TypeString, Description: "URL of a referenced attachment. Empty if none."},
		"messageLink": {Type: genai.TypeString, Description: "Jump link of the source message. Empty if none."},
	},
	Required: []string{"text"},
}

var newsItemSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"title":       {Type: genai.TypeString, Description: "Short headline of the topic."},
		"mainText":    {Type: genai.TypeString, Description: "One or two sentences describing the topic."},
		"mainFile":    {Type: genai.TypeString, Description: "URL of the most relevant attachment. Empty if none."},
		"messageLink": {Type: genai.TypeString, Description: "Jump link of the message that best represents the topic."},
		"subTopics":   {Type: genai.TypeArray, Items: subTopicSchema, Description: "Related details."},
	},
	Required: []string{"title", "mainText"},
}

var newsListSchema = &genai.Schema{
	Type:        genai.TypeArray,
	Description: "The significant news items of the conversation, most important first.",
	Items:       newsItemSchema,
}

// NewGeminiClient creates a Client backed by the Gemini API.
func NewGeminiClient(ctx context.Context, cfg config.LLMConfig, log *slog.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	temperature := cfg.Temperature
	baseCfg := &genai.GenerateContentConfig{
		Temperature: &temperature,

		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
		},
	}

	if cfg.SystemInstruction != "" {
		baseCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: cfg.SystemInstruction}}}
	}

	logger := log.With("component", "gemini_client")
	logger.Info("Gemini client initialized successfully", "model", cfg.Model)
	return &geminiClient{
		genaiClient:      gi,
		log:              logger,
		contentConfig:    baseCfg,
		defaultModelName: cfg.Model,
	}, nil
}

// Complete issues a single GenerateContent call. Retries are left to the caller.
func (c *geminiClient) Complete(ctx context.Context, req Request) (string, error) {
	model := c.defaultModelName
	if req.Model != "" {
		model = req.Model
	}

	copyCfg := *c.contentConfig
	if req.System != "" {
		copyCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.JSON {
		copyCfg.ResponseMIMEType = "application/json"
		copyCfg.ResponseSchema = newsListSchema
	}

	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}

	c.log.DebugContext(ctx, "Calling Gemini", "model", model, "prompt_chars", len(req.Prompt), "json", req.JSON)
	resp, err := c.genaiClient.Models.GenerateContent(ctx, model, contents, &copyCfg)
	if err != nil {
		c.log.WarnContext(ctx, "Gemini API call failed", "model", model, "error", err)
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}

	return c.extractTextFromResponse(ctx, resp)
}

func (c *geminiClient) extractTextFromResponse(ctx context.Context, resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", ErrEmptyResponse
	}

	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" && fb.BlockReason != genai.BlockedReasonUnspecified {
		reasonMsg := fmt.Sprintf("%v", fb.BlockReason)
		if fb.BlockReasonMessage != "" {
			reasonMsg = fb.BlockReasonMessage
		}
		c.log.ErrorContext(ctx, "Gemini request blocked", "reason", reasonMsg)
		return "", fmt.Errorf("%w: %s", ErrBlocked, reasonMsg)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != genai.FinishReasonUnspecified {
			finishReason = fmt.Sprintf("%v", resp.Candidates[0].FinishReason)
		}
		c.log.WarnContext(ctx, "Gemini response missing candidates or content", "finish_reason", finishReason)

		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
			return "", fmt.Errorf("%w: finish reason %s", ErrBlocked, finishReason)
		}
		return "", fmt.Errorf("%w: finish reason %s", ErrEmptyResponse, finishReason)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
