package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/abhisek/pathway/internal/store"
)

// NewProvider builds the configured provider wrapped as
// caller -> retry -> logging -> provider, so every attempt is recorded.
// It returns nil when analysis is disabled.
func NewProvider(ctx context.Context, cfg Config, repo store.LLMEventRepo, logger *slog.Logger) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		base Provider
		err  error
	)
	switch cfg.Provider {
	case "", ProviderNone:
		return nil, nil
	case ProviderMock:
		mock := NewMockProvider()
		mock.SetFallback(MockJSON(map[string]any{
			"quality":      0.75,
			"summary":      "Offline analysis: no provider configured.",
			"strengths":    []string{},
			"improvements": []string{},
		}))
		base = mock
	case ProviderAnthropic:
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case ProviderOpenAI:
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case ProviderGemini:
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case ProviderOpenRouter:
		base, err = NewOpenRouterProvider(cfg.OpenRouter)
	}
	if err != nil {
		return nil, fmt.Errorf("initialize %s provider: %w", cfg.Provider, err)
	}

	if repo != nil {
		base = WithLogging(base, repo, logger)
	}
	return WithRetry(base, cfg.Retry, cfg.Timeout), nil
}
