package providers

import (
	"context"
	"fmt"

	"chat-relay-service/config"

	"github.com/apex/log"
)

// NewRegistryFromConfig registers every provider that has credentials. In dev
// mode the mock provider is registered too and serves unknown names.
func NewRegistryFromConfig(ctx context.Context, cfg *config.Config) (*Registry, error) {
	r := NewRegistry()

	if cfg.OpenAIAPIKey != "" {
		p, err := NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.ProviderTimeout)
		if err != nil {
			return nil, fmt.Errorf("openai provider: %w", err)
		}
		r.Register("openai", p, "chatgpt")
	} else {
		log.Warn("OPENAI_API_KEY not set, openai provider disabled")
	}

	if cfg.DeepSeekAPIKey != "" {
		p, err := NewDeepSeek(cfg.DeepSeekAPIKey, cfg.DeepSeekBaseURL, cfg.ProviderTimeout)
		if err != nil {
			return nil, fmt.Errorf("deepseek provider: %w", err)
		}
		r.Register("deepseek", p)
	} else {
		log.Warn("DEEPSEEK_API_KEY not set, deepseek provider disabled")
	}

	if cfg.AnthropicAPIKey != "" {
		p, err := NewClaudeProvider(cfg.AnthropicAPIKey, cfg.AnthropicBaseURL, cfg.ProviderTimeout)
		if err != nil {
			return nil, fmt.Errorf("claude provider: %w", err)
		}
		r.Register("claude", p, "anthropic")
	} else {
		log.Warn("ANTHROPIC_API_KEY not set, claude provider disabled")
	}

	if cfg.GeminiAPIKey != "" {
		p, err := NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.ProviderTimeout)
		if err != nil {
			return nil, fmt.Errorf("gemini provider: %w", err)
		}
		r.Register("gemini", p, "google")
	} else {
		log.Warn("GEMINI_API_KEY not set, gemini provider disabled")
	}

	if cfg.DevMode {
		mock := NewMockProvider()
		r.Register("mock", mock)
		r.SetFallback(mock)
		log.Info("Dev mode: mock provider serves unknown provider names")
	}

	log.Infof("Registered providers: %v", r.Names())
	return r, nil
}
