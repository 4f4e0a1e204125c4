package generation

import (
	"github.com/maptitesalle/mylittlegymcoach/internal/content"
	"github.com/maptitesalle/mylittlegymcoach/internal/planner"
)

// PostProcess normalizes generator output before it is stored as completed.
// Only nutrition plans are rewritten.
func PostProcess(t content.Type, text string) string {
	if t == content.TypeNutrition {
		return planner.RepairDayMarkers(text)
	}
	return text
}
