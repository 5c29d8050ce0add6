package obstetrics

import "fmt"

// RiskLevel is the obstetric risk verdict.
type RiskLevel string

const (
	RiskLow  RiskLevel = "Low"
	RiskHigh RiskLevel = "High"
)

// ParseRiskLevel validates a wire risk level.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch RiskLevel(s) {
	case RiskLow, RiskHigh:
		return RiskLevel(s), nil
	}
	return "", fmt.Errorf("invalid risk level: %q", s)
}

// RiskAssessment is a verdict together with every condition that triggered it.
type RiskAssessment struct {
	Level   RiskLevel `json:"level"`
	Reasons []string  `json:"reasons"`
}

// highRiskFlags lists the flags that alone make a pregnancy high risk.
// Distinguished flags and informational flags (age mirrors, socioeconomic
// context, mild obesity, controlled asthma, uterine surgery, perinatal
// infection) never appear here.
var highRiskFlags = map[Category][]Flag{
	Sociodemographic: {FlagAgeUnder15, FlagMultipara, FlagSmoking, FlagAlcoholism},
	Medical: {
		FlagHypertensionChronic, FlagHypertensionGestational, FlagDiabetesPreexisting,
		FlagDiabetesGestational, FlagObesityBMI35To40, FlagLowWeightBMI20,
		FlagRenalPathology, FlagCardiacPathology, FlagEpilepsy, FlagCancerRemission,
		FlagHIVSyphilis, FlagMentalHealthHistory, FlagLiverPathology,
		FlagThyroidPathology, FlagInfertilityHistory, FlagCytologyAlterations,
		FlagAnemia, FlagMyomas, FlagRecurrentUrinaryInfection,
	},
	Reproductive: {
		FlagPreviousAbortion2Plus, FlagPreviousPretermBirth, FlagPreviousPreeclampsia,
		FlagPreviousCSection1To2, FlagCervicalIncompetence, FlagEctopicHistory,
	},
	CurrentPregnancy: {
		FlagMultiplePregnancy, FlagThreatenedAbortion, FlagThreatenedPreterm,
		FlagRCIU, FlagPolyOligohydramnios, FlagHemorrhage, FlagPlacentaPrevia,
		FlagAmnioticFluidAlteration, FlagUrinaryInfection, FlagCongenitalDefect,
	},
}

// IsHighRiskAge reports whether the numeric maternal age alone is high risk.
func IsHighRiskAge(age int) bool {
	return (age >= 15 && age <= 19) || age >= 36
}

// AssessRisk evaluates every rule and collects the ones that fired.
func AssessRisk(age int, f RiskFactorSet) RiskAssessment {
	a := RiskAssessment{Level: RiskLow, Reasons: []string{}}
	if IsHighRiskAge(age) {
		a.Reasons = append(a.Reasons, fmt.Sprintf("maternal age %d", age))
	}
	for _, c := range Categories {
		for _, flag := range highRiskFlags[c] {
			if f.Get(c, flag) {
				a.Reasons = append(a.Reasons, string(c)+"."+string(flag))
			}
		}
	}
	if len(a.Reasons) > 0 {
		a.Level = RiskHigh
	}
	return a
}

// ClassifyRisk returns High if any single rule fires, otherwise Low.
func ClassifyRisk(age int, f RiskFactorSet) RiskLevel {
	return AssessRisk(age, f).Level
}
