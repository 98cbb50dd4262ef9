package infrastructure

import (
	"fmt"
	"strings"

	"leadwidget/internal/config"
	"leadwidget/internal/interfaces"
)

// NewAIClient builds the language model client selected by LLM_PROVIDER.
func NewAIClient(cfg config.Config) (interfaces.AIClient, error) {
	switch strings.ToLower(cfg.LLMProvider) {
	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY required for provider %q", cfg.LLMProvider)
		}
		return NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL), nil
	case config.ProviderOllama, config.ProviderAnthropic:
		return NewLangChainClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}
}
