// internal/llmclient/openai_client.go
package llmclient

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mobilepilot/api/schemas"
	"github.com/xkilldash9x/mobilepilot/internal/config"
	"github.com/xkilldash9x/mobilepilot/internal/prompts"
)

// OpenAIClient implements schemas.Decider against any OpenAI-compatible chat
// completions endpoint. It serves both OpenAI and DashScope (Qwen).
type OpenAIClient struct {
	provider    config.LLMProvider
	client      *openai.Client
	model       config.LLMModelConfig
	temperature float32
	maxTokens   int
	logger      *zap.Logger
}

var _ schemas.Decider = (*OpenAIClient)(nil)

// NewOpenAIClient creates a client for provider using model's endpoint and key.
func NewOpenAIClient(provider config.LLMProvider, model config.LLMModelConfig, llm config.LLMConfig, httpClient *http.Client, logger *zap.Logger) (*OpenAIClient, error) {
	if model.APIKey == "" {
		return nil, fmt.Errorf("%s API key is required", provider)
	}

	conf := openai.DefaultConfig(model.APIKey)
	if model.Endpoint != "" {
		conf.BaseURL = strings.TrimRight(model.Endpoint, "/")
	}
	if httpClient != nil {
		conf.HTTPClient = httpClient
	}

	return &OpenAIClient{
		provider:    provider,
		client:      openai.NewClientWithConfig(conf),
		model:       model,
		temperature: llm.Temperature,
		maxTokens:   llm.MaxTokens,
		logger:      logger.Named("llm_client." + string(provider)),
	}, nil
}

// Name identifies the provider and model.
func (c *OpenAIClient) Name() string {
	return fmt.Sprintf("%s:%s", c.provider, c.model.Model)
}

// Decide sends the rendered prompt and the screenshot as a data URI.
func (c *OpenAIClient) Decide(ctx context.Context, req schemas.DecisionRequest) (string, error) {
	prompt, err := prompts.RenderDecision(req.Task, req.LastSummary)
	if err != nil {
		return "", &DecisionError{Provider: string(c.provider), Err: err}
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       c.model.Model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: prompt},
				{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    dataURI(req),
						Detail: openai.ImageURLDetailAuto,
					},
				},
			},
		}},
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", classify(string(c.provider), err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", &DecisionError{Provider: string(c.provider), Retryable: true, Err: errors.New("response contained no content")}
	}

	c.logger.Info("LLM decision complete",
		zap.String("model", c.model.Model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Float64("estimated_cost_usd", estimateCost(c.model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)),
	)
	return resp.Choices[0].Message.Content, nil
}

func dataURI(req schemas.DecisionRequest) string {
	mime := req.ImageMIME
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(req.Image)
}

func estimateCost(m config.LLMModelConfig, promptTokens, completionTokens int) float64 {
	return float64(promptTokens)/1000*m.PromptPricePer1K + float64(completionTokens)/1000*m.CompletionPricePer1K
}
