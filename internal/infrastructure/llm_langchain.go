package infrastructure

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"

	"leadwidget/internal/config"
	"leadwidget/internal/entities"
	"leadwidget/internal/interfaces"
)

// LangChainClient serves the providers reached through langchaingo.
type LangChainClient struct {
	llm llms.Model
}

func NewLangChainClient(cfg config.Config) (*LangChainClient, error) {
	var (
		model llms.Model
		err   error
	)
	switch strings.ToLower(cfg.LLMProvider) {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.DefaultModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}
	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.DefaultModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}
	default:
		return nil, fmt.Errorf("provider %q is not served by langchaingo", cfg.LLMProvider)
	}
	return &LangChainClient{llm: model}, nil
}

func (c *LangChainClient) GenerateReply(ctx context.Context, req interfaces.LLMRequest) (string, error) {
	messages := make([]llms.MessageContent, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.SystemPrompt))
	}
	for _, m := range req.History {
		role := llms.ChatMessageTypeHuman
		if m.Role == entities.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, m.Content))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Message))

	opts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.Model != "" {
		opts = append(opts, llms.WithModel(req.Model))
	}
	resp, err := c.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("generate content: no choices")
	}
	return resp.Choices[0].Content, nil
}
