package generation

import (
	_ "embed"
	"strings"

	"github.com/maptitesalle/mylittlegymcoach/internal/content"
	"github.com/maptitesalle/mylittlegymcoach/internal/llm"
)

var (
	//go:embed prompts/nutrition.md
	nutritionSystemPrompt string
	//go:embed prompts/supplements.md
	supplementsSystemPrompt string
	//go:embed prompts/flexibility.md
	flexibilitySystemPrompt string
)

const (
	defaultSystemPrompt = "Tu es un assistant utile qui répond de manière précise et pertinente aux questions de l'utilisateur."
	temperature         = 0.7

	avoidRecipesHeader = "\n\nImportant : ne propose pas à nouveau les recettes suivantes, qui ont déjà été suggérées :\n"
)

// SystemPrompt returns the system instructions for a content type.
func SystemPrompt(t content.Type) string {
	switch t {
	case content.TypeNutrition:
		return nutritionSystemPrompt
	case content.TypeSupplements:
		return supplementsSystemPrompt
	case content.TypeFlexibility:
		return flexibilitySystemPrompt
	}
	return defaultSystemPrompt
}

// MaxTokens returns the completion token limit for a content type.
func MaxTokens(t content.Type) int {
	switch t {
	case content.TypeNutrition:
		return 4000
	case content.TypeSupplements:
		return 1500
	case content.TypeFlexibility:
		return 2000
	}
	return 1000
}

// BuildLLMRequest assembles the provider request. For nutrition plans the
// previously suggested recipe titles are appended so they are not proposed
// again.
func BuildLLMRequest(t content.Type, prompt string, previousRecipes []string) llm.Request {
	if t == content.TypeNutrition {
		var titles []string
		for _, r := range previousRecipes {
			if r = strings.TrimSpace(r); r != "" {
				titles = append(titles, r)
			}
		}
		if len(titles) > 0 {
			prompt += avoidRecipesHeader + strings.Join(titles, "\n")
		}
	}
	return llm.Request{
		System:      SystemPrompt(t),
		Prompt:      prompt,
		MaxTokens:   MaxTokens(t),
		Temperature: temperature,
	}
}
