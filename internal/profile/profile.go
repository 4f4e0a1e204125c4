package profile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrIncompleteProfile is returned when the biometric data needed to
// compute nutrition targets is missing or out of range.
var ErrIncompleteProfile = errors.New("incomplete profile")

// Profile is what the onboarding wizard collects about a user.
type Profile struct {
	Age            int       `json:"age" validate:"omitempty,gte=10,lte=120"`
	Gender         string    `json:"gender" validate:"omitempty,oneof=male female other"`
	HeightCM       float64   `json:"heightCm" validate:"omitempty,gt=0,lt=260"`
	Metabolic      Metabolic `json:"metabolic"`
	Cardio         Cardio    `json:"cardio"`
	ActivityFactor float64   `json:"activityFactor" validate:"omitempty,gte=1,lte=2.5"`
	Goals          Goals     `json:"goals"`
	Diet           Diet      `json:"diet"`
	Health         Health    `json:"health"`
}

// Metabolic holds body composition measurements.
type Metabolic struct {
	WeightKG      float64  `json:"weightKg" validate:"required,gt=0,lt=400"`
	FatPercentage *float64 `json:"fatPercentage" validate:"required,gte=0,lt=100"`
	MetabolicAge  int      `json:"metabolicAge,omitempty"`
}

// Cardio holds endurance measurements.
type Cardio struct {
	VO2Max float64 `json:"vo2max,omitempty"`
}

type Goals struct {
	WeightLoss             bool `json:"weightLoss"`
	MuscleMassGain         bool `json:"muscleMassGain"`
	CardioImprovement      bool `json:"cardioImprovement"`
	FlexibilityImprovement bool `json:"flexibilityImprovement"`
	MaintainLevel          bool `json:"maintainLevel"`
}

type Diet struct {
	GlutenFree bool `json:"glutenFree"`
	Vegan      bool `json:"vegan"`
	EggFree    bool `json:"eggFree"`
	DairyFree  bool `json:"dairyFree"`
}

type Health struct {
	HeartFailure        bool   `json:"heartFailure"`
	Arthritis           bool   `json:"arthritis"`
	RespiratoryProblems bool   `json:"respiratoryProblems"`
	Obesity             bool   `json:"obesity"`
	Hypothyroidism      bool   `json:"hypothyroidism"`
	OtherInfo           string `json:"otherInfo,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate reports ErrIncompleteProfile listing the offending fields.
func (p Profile) Validate() error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrIncompleteProfile, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Namespace())
	}
	return fmt.Errorf("%w: %s", ErrIncompleteProfile, strings.Join(fields, ", "))
}
