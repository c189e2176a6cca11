// internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mobilepilot/api/schemas"
	"github.com/xkilldash9x/mobilepilot/internal/config"
)

// NewDecider builds the decision service for the configured provider, wrapped
// with pacing, the per-attempt timeout and retries.
func NewDecider(ctx context.Context, cfg config.LLMConfig, timeout time.Duration, logger *zap.Logger) (schemas.Decider, error) {
	model, err := cfg.Selected()
	if err != nil {
		return nil, err
	}

	var base schemas.Decider
	switch cfg.Provider {
	case config.ProviderOpenAI, config.ProviderQwen:
		base, err = NewOpenAIClient(cfg.Provider, model, cfg, nil, logger)
	case config.ProviderGemini:
		base, err = NewGeminiClient(ctx, model, cfg, nil, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s, %s, %s]",
			cfg.Provider, config.ProviderOpenAI, config.ProviderGemini, config.ProviderQwen)
	}
	if err != nil {
		return nil, err
	}

	logger.Debug("Decision service ready.", zap.String("decider", base.Name()), zap.Duration("timeout", timeout))
	return NewResilient(base, cfg.RequestsPerMinute, timeout, cfg.MaxRetries, logger), nil
}
