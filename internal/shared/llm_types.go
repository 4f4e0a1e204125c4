package shared

import (
	"time"
)

// TokenUsage is the token count a provider reported for one call.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Model            string
}

// ModelOrUnknown returns Model, or "unknown" when the provider did not say.
func (u TokenUsage) ModelOrUnknown() string {
	if u.Model == "" {
		return "unknown"
	}
	return u.Model
}

// GenerationMeta describes one generator call. AgentName is
// "generator:<content type>" and Status is completed or error.
type GenerationMeta struct {
	AgentName string
	Status    string
	Usage     TokenUsage
	Latency   time.Duration
}
