package llm

import (
	"context"

	"github.com/maptitesalle/mylittlegymcoach/internal/config"
)

// NewFromConfig builds the generator selected by LLM_PROVIDER.
// It returns ErrMissingCredential when the provider has no key so callers
// can keep serving and report a configuration error per request.
func NewFromConfig(ctx context.Context, cfg *config.Config) (TextGenerator, error) {
	if cfg.ProviderAPIKey() == "" {
		return nil, ErrMissingCredential
	}
	switch cfg.LLMProvider {
	case "groq":
		return NewGroqClient(cfg.GroqAPIKey), nil
	case "gemini":
		return NewGeminiClient(ctx, cfg.GeminiAPIKey)
	default:
		return NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel), nil
	}
}
