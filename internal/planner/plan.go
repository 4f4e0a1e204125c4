package planner

import "time"

// Recipe is one meal of a generated plan.
type Recipe struct {
	Day               int      `json:"day"`
	Meal              string   `json:"meal"`
	Title             string   `json:"title"`
	Ingredients       []string `json:"ingredients"`
	Instructions      []string `json:"instructions"`
	NutritionalValues string   `json:"nutritionalValues,omitempty"`
}

// NutritionPlan is a stored plan. Recipes and Ingredients are derived from
// Content and can always be rebuilt with ParsePlan.
type NutritionPlan struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"userId"`
	RequestID   string    `json:"requestId,omitempty"`
	Content     string    `json:"content"`
	Recipes     []Recipe  `json:"recipes"`
	Ingredients []string  `json:"ingredients"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// PlanInput is the data written by UpsertPlan. An empty RequestID stores a
// plan that did not go through the async path.
type PlanInput struct {
	UserID      string
	RequestID   string
	Content     string
	Recipes     []Recipe
	Ingredients []string
}

// InputFromContent parses content and fills the derived fields.
func InputFromContent(userID, requestID, content string) PlanInput {
	parsed := ParsePlan(content)
	return PlanInput{
		UserID:      userID,
		RequestID:   requestID,
		Content:     content,
		Recipes:     parsed.Recipes,
		Ingredients: parsed.Ingredients,
	}
}
