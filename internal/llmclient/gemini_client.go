// internal/llmclient/gemini_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/mobilepilot/api/schemas"
	"github.com/xkilldash9x/mobilepilot/internal/config"
	"github.com/xkilldash9x/mobilepilot/internal/prompts"
)

// GeminiClient implements schemas.Decider for Google Gemini models.
type GeminiClient struct {
	client      *genai.Client
	model       config.LLMModelConfig
	temperature float32
	maxTokens   int
	logger      *zap.Logger
}

var _ schemas.Decider = (*GeminiClient)(nil)

// NewGeminiClient initializes the client. A configured endpoint replaces the
// public API base URL.
func NewGeminiClient(ctx context.Context, model config.LLMModelConfig, llm config.LLMConfig, httpClient *http.Client, logger *zap.Logger) (*GeminiClient, error) {
	if model.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}

	cc := &genai.ClientConfig{
		APIKey:     model.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if model.Endpoint != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: model.Endpoint}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiClient{
		client:      client,
		model:       model,
		temperature: llm.Temperature,
		maxTokens:   llm.MaxTokens,
		logger:      logger.Named("llm_client.gemini"),
	}, nil
}

// Name identifies the provider and model.
func (c *GeminiClient) Name() string {
	return "gemini:" + c.model.Model
}

// Decide sends the prompt and the screenshot as inline bytes.
func (c *GeminiClient) Decide(ctx context.Context, req schemas.DecisionRequest) (string, error) {
	prompt, err := prompts.RenderDecision(req.Task, req.LastSummary)
	if err != nil {
		return "", &DecisionError{Provider: "gemini", Err: err}
	}
	mime := req.ImageMIME
	if mime == "" {
		mime = "image/png"
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(prompt),
			genai.NewPartFromBytes(req.Image, mime),
		}, genai.RoleUser),
	}
	genConfig := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.temperature),
		MaxOutputTokens: int32(c.maxTokens),
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model.Model, contents, genConfig)
	if err != nil {
		return "", &DecisionError{Provider: "gemini", Retryable: !errors.Is(err, context.Canceled), Err: err}
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		reason := "unknown"
		if len(resp.Candidates) > 0 {
			reason = string(resp.Candidates[0].FinishReason)
		}
		return "", &DecisionError{Provider: "gemini", Retryable: true, Err: fmt.Errorf("response contained no text (finish reason: %s)", reason)}
	}

	fields := []zap.Field{
		zap.String("model", c.model.Model),
		zap.Duration("duration", time.Since(start)),
	}
	if u := resp.UsageMetadata; u != nil {
		fields = append(fields,
			zap.Int32("prompt_tokens", u.PromptTokenCount),
			zap.Int32("completion_tokens", u.CandidatesTokenCount),
			zap.Float64("estimated_cost_usd", estimateCost(c.model, int(u.PromptTokenCount), int(u.CandidatesTokenCount))),
		)
	}
	c.logger.Info("LLM decision complete", fields...)
	return text, nil
}
