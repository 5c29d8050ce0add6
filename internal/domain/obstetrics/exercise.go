package obstetrics

import (
	"fmt"
	"sort"
)

// ActivityLevel is the patient's pre-pregnancy exercise habit.
type ActivityLevel string

const (
	Sedentary ActivityLevel = "sedentary"
	Active    ActivityLevel = "active"
)

// ParseActivityLevel validates a wire activity level; empty means sedentary.
func ParseActivityLevel(s string) (ActivityLevel, error) {
	switch ActivityLevel(s) {
	case "", Sedentary:
		return Sedentary, nil
	case Active:
		return Active, nil
	}
	return "", fmt.Errorf("%w: activity must be sedentary or active: %q", ErrInvalidProfile, s)
}

// HeartRateRange is a target heart rate band in beats per minute.
type HeartRateRange struct {
	Activity ActivityLevel `json:"activity"`
	MinBPM   int           `json:"min_bpm"`
	MaxBPM   int           `json:"max_bpm"`
}

// defaultExerciseAge is used when the profile has no age.
const defaultExerciseAge = 25

// TargetHeartRate returns the exercise heart rate band for a pregnant
// patient by age and activity level.
func TargetHeartRate(age int, activity ActivityLevel) HeartRateRange {
	if age <= 0 {
		age = defaultExerciseAge
	}
	r := HeartRateRange{Activity: activity}
	if activity == Active {
		switch {
		case age < 20:
			r.MinBPM, r.MaxBPM = 140, 155
		case age <= 29:
			r.MinBPM, r.MaxBPM = 135, 150
		default:
			r.MinBPM, r.MaxBPM = 130, 145
		}
		return r
	}
	r.Activity = Sedentary
	switch {
	case age < 20:
		r.MinBPM, r.MaxBPM = 135, 145
	case age <= 29:
		r.MinBPM, r.MaxBPM = 131, 141
	default:
		r.MinBPM, r.MaxBPM = 126, 135
	}
	return r
}

// ContraindicationQuestion is one item of the pre-exercise screening.
type ContraindicationQuestion struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ContraindicationQuestions is the fixed pre-exercise questionnaire.
var ContraindicationQuestions = []ContraindicationQuestion{
	{ID: "q1", Text: "Do you have uncontrolled type 1 diabetes?"},
	{ID: "q2", Text: "Is there evidence of fetal growth restriction?"},
	{ID: "q3", Text: "Have your membranes ruptured or are you in preterm labor?"},
	{ID: "q4", Text: "Do you have pregnancy-induced hypertension?"},
	{ID: "q5", Text: "Persistent bleeding in the second or third trimester?"},
	{ID: "q6", Text: "Do you have other cardiovascular or systemic disease?"},
	{ID: "q7", Text: "Do you have cervical incompetence or a short cervix?"},
	{ID: "q8", Text: "Is this a multiple pregnancy?"},
	{ID: "q9", Text: "History of spontaneous abortion in previous pregnancies?"},
	{ID: "q10", Text: "Twin pregnancy after 28 weeks?"},
	{ID: "q11", Text: "Malnutrition or an eating disorder?"},
	{ID: "q12", Text: "Anemia or severe iron deficiency?"},
	{ID: "q13", Text: "Moderate respiratory disease (uncontrolled asthma)?"},
	{ID: "q14", Text: "Any other significant medical condition?"},
}

// ExerciseScreening is the result of the contraindication questionnaire.
type ExerciseScreening struct {
	Contraindicated bool     `json:"contraindicated"`
	Positive        []string `json:"positive"`
}

// ScreenContraindications flags exercise as contraindicated when any answer
// is yes. Unanswered questions count as no.
func ScreenContraindications(answers map[string]bool) (ExerciseScreening, error) {
	known := make(map[string]bool, len(ContraindicationQuestions))
	for _, q := range ContraindicationQuestions {
		known[q.ID] = true
	}
	s := ExerciseScreening{Positive: []string{}}
	for id, yes := range answers {
		if !known[id] {
			return ExerciseScreening{}, fmt.Errorf("%w: unknown screening question %q", ErrInvalidProfile, id)
		}
		if yes {
			s.Positive = append(s.Positive, id)
		}
	}
	sort.Slice(s.Positive, func(i, j int) bool {
		return questionIndex(s.Positive[i]) < questionIndex(s.Positive[j])
	})
	s.Contraindicated = len(s.Positive) > 0
	return s, nil
}

func questionIndex(id string) int {
	for i, q := range ContraindicationQuestions {
		if q.ID == id {
			return i
		}
	}
	return len(ContraindicationQuestions)
}
