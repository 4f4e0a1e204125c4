package planner

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Meal headers the nutrition prompt asks for, most specific first so that
// "Petit-déjeuner" is not read as "Déjeuner".
var mealTypes = []string{"Petit-déjeuner", "Déjeuner", "Dîner", "Collation"}

var (
	dayHeaderRe  = regexp.MustCompile(`^#[ \t]+Jour[ \t]+(\d+)`)
	listItemRe   = regexp.MustCompile(`^(?:[-*•]|\d+[.)])\s+`)
	titleTrimSet = " \t*_:–-"
)

// Day groups the meals of one "# Jour N" section.
type Day struct {
	Number         int      `json:"number"`
	Meals          []Recipe `json:"meals"`
	TotalNutrition string   `json:"totalNutrition,omitempty"`
}

// ParsedPlan is the structured view of a plan's markdown.
type ParsedPlan struct {
	Days        []Day
	Recipes     []Recipe
	Ingredients []string
}

type section int

const (
	sectionNone section = iota
	sectionIngredients
	sectionInstructions
	sectionNutrition
	sectionOther
)

// ParsePlan reads a nutrition plan written with "# Jour N" day headers,
// "## <meal>" meal headers and "### Ingrédients|Instructions|Valeurs
// nutritionnelles" sections. Ingredients are deduplicated across the plan in
// order of first appearance.
func ParsePlan(content string) ParsedPlan {
	var (
		out     ParsedPlan
		day     *Day
		meal    *Recipe
		sec     section
		seenIng = make(map[string]bool)
	)

	flushMeal := func() {
		if meal == nil || day == nil {
			meal = nil
			return
		}
		if meal.Title == "" {
			meal.Title = fmt.Sprintf("%s du Jour %d", meal.Meal, day.Number)
		}
		day.Meals = append(day.Meals, *meal)
		out.Recipes = append(out.Recipes, *meal)
		meal = nil
	}
	flushDay := func() {
		flushMeal()
		if day != nil {
			out.Days = append(out.Days, *day)
		}
		day = nil
	}

	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if m := dayHeaderRe.FindStringSubmatch(line); m != nil {
			flushDay()
			n, _ := strconv.Atoi(m[1])
			day = &Day{Number: n}
			sec = sectionNone
			continue
		}
		if day == nil {
			continue
		}

		switch {
		case strings.HasPrefix(line, "### "):
			sec = sectionFor(strings.TrimSpace(line[4:]))
			continue
		case strings.HasPrefix(line, "## "):
			flushMeal()
			mealType, title := splitMealHeader(strings.TrimSpace(line[3:]))
			meal = &Recipe{Day: day.Number, Meal: mealType, Title: title, Ingredients: []string{}, Instructions: []string{}}
			sec = sectionNone
			continue
		}

		if strings.Contains(strings.ToLower(line), "total journalier") {
			flushMeal()
			day.TotalNutrition = strings.Trim(line, titleTrimSet)
			sec = sectionOther
			continue
		}

		if meal == nil {
			continue
		}

		item := listItemRe.ReplaceAllString(line, "")
		isItem := item != line

		switch sec {
		case sectionIngredients:
			if isItem {
				meal.Ingredients = append(meal.Ingredients, item)
				key := strings.ToLower(item)
				if !seenIng[key] {
					seenIng[key] = true
					out.Ingredients = append(out.Ingredients, item)
				}
			}
		case sectionInstructions:
			if isItem {
				meal.Instructions = append(meal.Instructions, item)
			}
		case sectionNutrition:
			if meal.NutritionalValues != "" {
				meal.NutritionalValues += "\n"
			}
			meal.NutritionalValues += line
		case sectionNone:
			if meal.Title == "" {
				meal.Title = strings.Trim(item, titleTrimSet)
			}
		}
	}
	flushDay()

	if out.Ingredients == nil {
		out.Ingredients = []string{}
	}
	return out
}

// RecipeTitles lists the recipe titles of a plan, deduplicated, skipping the
// generated "<meal> du Jour N" placeholders.
func RecipeTitles(content string) []string {
	var titles []string
	seen := make(map[string]bool)
	for _, r := range ParsePlan(content).Recipes {
		if r.Title == fmt.Sprintf("%s du Jour %d", r.Meal, r.Day) || seen[r.Title] {
			continue
		}
		seen[r.Title] = true
		titles = append(titles, r.Title)
	}
	return titles
}

func sectionFor(header string) section {
	h := strings.ToLower(header)
	switch {
	case strings.HasPrefix(h, "ingr"):
		return sectionIngredients
	case strings.HasPrefix(h, "instr"), strings.HasPrefix(h, "prépa"):
		return sectionInstructions
	case strings.HasPrefix(h, "valeur"), strings.HasPrefix(h, "macro"):
		return sectionNutrition
	}
	return sectionOther
}

// splitMealHeader accepts "Déjeuner" as well as "Déjeuner : Salade niçoise".
func splitMealHeader(header string) (string, string) {
	lower := strings.ToLower(header)
	for _, t := range mealTypes {
		if strings.HasPrefix(lower, strings.ToLower(t)) {
			return t, strings.Trim(header[len(t):], titleTrimSet)
		}
	}
	return header, ""
}
