package obstetrics

import "math"

// WeightCategory is the pre-pregnancy BMI band.
type WeightCategory string

const (
	CategoryUnknown    WeightCategory = "Unknown"
	CategoryLowWeight  WeightCategory = "Low weight"
	CategoryNormal     WeightCategory = "Normal"
	CategoryOverweight WeightCategory = "Overweight"
	CategoryObesity    WeightCategory = "Obesity"
)

// Biometrics is the result of classifying height and weight.
type Biometrics struct {
	BMI      float64        `json:"bmi"`
	Category WeightCategory `json:"category"`
	GoalMin  float64        `json:"goal_min"`
	GoalMax  float64        `json:"goal_max"`
}

// WeightGoal is the total gestational weight gain target cached on a profile.
type WeightGoal struct {
	Min      float64        `json:"min"`
	Max      float64        `json:"max"`
	Category WeightCategory `json:"category"`
}

type bmiBand struct {
	upper    float64 // exclusive
	category WeightCategory
	goalMin  float64
	goalMax  float64
}

// Lower bounds are inclusive, upper bounds exclusive.
var bmiBands = []bmiBand{
	{upper: 18.5, category: CategoryLowWeight, goalMin: 12.5, goalMax: 18.0},
	{upper: 25, category: CategoryNormal, goalMin: 11.5, goalMax: 16.0},
	{upper: 30, category: CategoryOverweight, goalMin: 7.0, goalMax: 11.5},
	{upper: math.Inf(1), category: CategoryObesity, goalMin: 5.0, goalMax: 9.0},
}

func bandFor(bmi float64) bmiBand {
	for _, b := range bmiBands {
		if bmi < b.upper {
			return b
		}
	}
	return bmiBands[len(bmiBands)-1]
}

// CategoryForBMI returns the weight category for an already computed BMI.
func CategoryForBMI(bmi float64) WeightCategory {
	if bmi <= 0 || math.IsNaN(bmi) {
		return CategoryUnknown
	}
	return bandFor(bmi).category
}

// ClassifyBiometrics computes BMI from weight (kg) and height (cm) and the
// matching weight gain goal. Non-positive inputs yield the Unknown sentinel.
// The band is chosen from the exact BMI; only the reported value is rounded
// to one decimal.
func ClassifyBiometrics(weightKg, heightCm float64) Biometrics {
	if heightCm <= 0 || weightKg <= 0 || math.IsNaN(heightCm) || math.IsNaN(weightKg) {
		return Biometrics{Category: CategoryUnknown}
	}
	m := heightCm / 100
	bmi := weightKg / (m * m)
	b := bandFor(bmi)
	return Biometrics{
		BMI:      math.Round(bmi*10) / 10,
		Category: b.category,
		GoalMin:  b.goalMin,
		GoalMax:  b.goalMax,
	}
}

// Goal converts the classification into the cached profile shape.
func (b Biometrics) Goal() WeightGoal {
	return WeightGoal{Min: b.GoalMin, Max: b.GoalMax, Category: b.Category}
}
