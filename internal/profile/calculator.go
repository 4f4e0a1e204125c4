package profile

import "math"

// Goal is the single objective the calorie target is tuned for.
type Goal string

const (
	GoalMaintain          Goal = "maintain"
	GoalWeightLoss        Goal = "weightLoss"
	GoalMuscleMassGain    Goal = "muscleMassGain"
	GoalCardioImprovement Goal = "cardioImprovement"
)

const defaultActivityFactor = 1.2

// Macros are daily grams per macronutrient.
type Macros struct {
	Protein int
	Carbs   int
	Fats    int
}

// Targets are the daily energy needs derived from a profile.
type Targets struct {
	LBM            int
	BMR            int
	TDEE           int
	TargetCalories int
	Macros         Macros
}

// PrimaryGoal picks weight loss over muscle gain over cardio; anything else
// maintains.
func (p Profile) PrimaryGoal() Goal {
	switch {
	case p.Goals.WeightLoss:
		return GoalWeightLoss
	case p.Goals.MuscleMassGain:
		return GoalMuscleMassGain
	case p.Goals.CardioImprovement:
		return GoalCardioImprovement
	}
	return GoalMaintain
}

// Calculate derives the daily targets with the Katch-McArdle formula.
func Calculate(p Profile) (Targets, error) {
	if err := p.Validate(); err != nil {
		return Targets{}, err
	}

	weight := p.Metabolic.WeightKG
	fat := *p.Metabolic.FatPercentage
	if fat > 1 {
		fat /= 100
	}
	activity := p.ActivityFactor
	if activity == 0 {
		activity = defaultActivityFactor
	}
	goal := p.PrimaryGoal()

	lbm := weight * (1 - fat)
	bmr := 370 + 21.6*lbm
	tdee := bmr * activity

	target := tdee
	proteinPerKg := 1.5
	fatShare := 0.35
	switch goal {
	case GoalWeightLoss:
		target *= 0.85
		proteinPerKg = 2.0
	case GoalMuscleMassGain:
		target *= 1.1
		proteinPerKg = 1.8
	case GoalCardioImprovement:
		fatShare = 0.3
	}

	protein := weight * proteinPerKg
	fatCalories := target * fatShare
	carbCalories := target - protein*4 - fatCalories

	return Targets{
		LBM:            round(lbm),
		BMR:            round(bmr),
		TDEE:           round(tdee),
		TargetCalories: round(target),
		Macros: Macros{
			Protein: round(protein),
			Carbs:   round(carbCalories / 4),
			Fats:    round(fatCalories / 9),
		},
	}, nil
}

func round(v float64) int {
	return int(math.Round(v))
}
