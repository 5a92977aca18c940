package reply

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/voiceflow/config"
	"github.com/BaSui01/voiceflow/llm/fallback"
)

// NewGeneratorFromConfig 按配置构建回复生成器
func NewGeneratorFromConfig(cfg config.ProvidersConfig, opts fallback.Options) (Generator, error) {
	switch strings.ToLower(cfg.LLM) {
	case "", "stub":
		return NewStubGenerator(), nil
	case "openai":
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	primary := NewOpenAIGenerator(OpenAIConfig{
		APIKey:        cfg.OpenAI.APIKey,
		BaseURL:       cfg.OpenAI.BaseURL,
		ModelFreemium: cfg.OpenAI.ModelFreemium,
		ModelPremium:  cfg.OpenAI.ModelPremium,
		SystemPrompt:  cfg.OpenAI.SystemPrompt,
		Timeout:       cfg.OpenAI.Timeout,
	}, logger)

	var secondary Generator
	if cfg.FallbackToStub {
		secondary = NewStubGenerator()
	}
	opts.Breaker = fallback.BreakerFromConfig(cfg.Breaker)
	return NewGeneratorFallback(primary, secondary, opts), nil
}
