package profile

import (
	"bytes"
	_ "embed"
	"fmt"
	"strconv"
	"text/template"
)

//go:embed nutrition_prompt.md
var nutritionPromptTemplate string

var nutritionPrompt = template.Must(template.New("nutrition").Funcs(template.FuncMap{
	"gender": func(g string) string {
		switch g {
		case "male":
			return "Homme"
		case "female":
			return "Femme"
		case "":
			return "Non renseigné"
		}
		return "Autre"
	},
}).Parse(nutritionPromptTemplate))

type nutritionPromptData struct {
	Profile       Profile
	Targets       Targets
	FatPercentage string
	Goals         []string
	Diet          []string
	Health        []string
}

// BuildNutritionPrompt renders the user prompt for a 7 day nutrition plan.
// It fails with ErrIncompleteProfile when weight or body fat is missing.
func BuildNutritionPrompt(p Profile) (string, error) {
	targets, err := Calculate(p)
	if err != nil {
		return "", err
	}

	data := nutritionPromptData{
		Profile:       p,
		Targets:       targets,
		FatPercentage: strconv.FormatFloat(*p.Metabolic.FatPercentage, 'f', -1, 64),
		Goals: labels(
			p.Goals.MuscleMassGain, "Prise de masse musculaire",
			p.Goals.WeightLoss, "Perte de poids",
			p.Goals.FlexibilityImprovement, "Amélioration de la souplesse",
			p.Goals.CardioImprovement, "Amélioration de la capacité cardio",
			p.Goals.MaintainLevel, "Maintien du niveau actuel",
		),
		Diet: labels(
			p.Diet.GlutenFree, "Sans gluten",
			p.Diet.Vegan, "Vegan",
			p.Diet.EggFree, "Sans œuf",
			p.Diet.DairyFree, "Sans produit laitier",
		),
		Health: labels(
			p.Health.HeartFailure, "Insuffisance cardiaque",
			p.Health.Arthritis, "Arthrose",
			p.Health.RespiratoryProblems, "Problèmes respiratoires",
			p.Health.Obesity, "Obésité",
			p.Health.Hypothyroidism, "Hypothyroïdie",
			p.Health.OtherInfo != "", "Autres : "+p.Health.OtherInfo,
		),
	}

	var buf bytes.Buffer
	if err := nutritionPrompt.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render nutrition prompt: %w", err)
	}
	return buf.String(), nil
}

// labels takes (flag, label) pairs and keeps the labels whose flag is set.
func labels(pairs ...any) []string {
	var out []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if on, _ := pairs[i].(bool); on {
			out = append(out, pairs[i+1].(string))
		}
	}
	return out
}
