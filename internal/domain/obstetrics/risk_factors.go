package obstetrics

import (
	"fmt"
	"strings"
)

// Category groups related risk factor flags.
type Category string

const (
	Sociodemographic Category = "sociodemographic"
	Medical          Category = "medical"
	Reproductive     Category = "reproductive"
	CurrentPregnancy Category = "current_pregnancy"
)

// Flag names a single risk factor within a category.
type Flag string

// Sociodemographic flags.
const (
	FlagAge15To19        Flag = "age_15_19"
	FlagAgeOver36        Flag = "age_over_36"
	FlagAgeUnder15       Flag = "age_under_15"
	FlagLowSocioeconomic Flag = "low_socioeconomic"
	FlagWorkRisk         Flag = "work_risk"
	FlagSmoking          Flag = "smoking"
	FlagAlcoholism       Flag = "alcoholism"
	FlagPsychoactiveUse  Flag = "psychoactive_use"
	FlagMultipara        Flag = "multipara"
)

// Medical history flags.
const (
	FlagNoRiskFactors             Flag = "no_risk_factors"
	FlagHypertensionChronic       Flag = "hypertension_chronic"
	FlagHypertensionGestational   Flag = "hypertension_gestational"
	FlagDiabetesPreexisting       Flag = "diabetes_preexisting"
	FlagDiabetesGestational       Flag = "diabetes_gestational"
	FlagObesityBMI30To34          Flag = "obesity_bmi_30_34"
	FlagObesityBMI35To40          Flag = "obesity_bmi_35_40"
	FlagLowWeightBMI20            Flag = "low_weight_bmi_20"
	FlagRenalPathology            Flag = "renal_pathology"
	FlagCardiacPathology          Flag = "cardiac_pathology"
	FlagThyroidPathology          Flag = "thyroid_pathology"
	FlagAsthmaControlled          Flag = "asthma_controlled"
	FlagEpilepsy                  Flag = "epilepsy"
	FlagHIVSyphilis               Flag = "hiv_syphilis"
	FlagCancerRemission           Flag = "cancer_remission"
	FlagMentalHealthHistory       Flag = "mental_health_history"
	FlagLiverPathology            Flag = "liver_pathology"
	FlagInfertilityHistory        Flag = "infertility_history"
	FlagCytologyAlterations       Flag = "cytology_alterations"
	FlagAnemia                    Flag = "anemia"
	FlagMyomas                    Flag = "myomas"
	FlagRecurrentUrinaryInfection Flag = "recurrent_urinary_infection"
)

// Reproductive history flags.
const (
	FlagPreviousAbortion2Plus Flag = "previous_abortion_2_plus"
	FlagPreviousPretermBirth  Flag = "previous_preterm_birth"
	FlagPreviousPreeclampsia  Flag = "previous_preeclampsia"
	FlagPreviousCSection1To2  Flag = "previous_csection_1_2"
	FlagCervicalIncompetence  Flag = "cervical_incompetence"
	FlagEctopicHistory        Flag = "ectopic_history"
	FlagUterineSurgery        Flag = "uterine_surgery"
)

// Current pregnancy flags.
const (
	FlagNoObstetricRiskFactors  Flag = "no_obstetric_risk_factors"
	FlagMultiplePregnancy       Flag = "multiple_pregnancy"
	FlagThreatenedAbortion      Flag = "threatened_abortion"
	FlagThreatenedPreterm       Flag = "threatened_preterm"
	FlagRCIU                    Flag = "rciu"
	FlagPolyOligohydramnios     Flag = "poly_oligohydramnios"
	FlagHemorrhage              Flag = "hemorrhage"
	FlagPlacentaPrevia          Flag = "placenta_previa"
	FlagAmnioticFluidAlteration Flag = "amniotic_fluid_alteration"
	FlagUrinaryInfection        Flag = "urinary_infection"
	FlagCongenitalDefect        Flag = "congenital_defect"
	FlagPerinatalInfection      Flag = "perinatal_infection"
)

// Categories lists every category in display order.
var Categories = []Category{Sociodemographic, Medical, Reproductive, CurrentPregnancy}

var flagCatalog = map[Category][]Flag{
	Sociodemographic: {
		FlagAge15To19, FlagAgeOver36, FlagAgeUnder15, FlagLowSocioeconomic,
		FlagWorkRisk, FlagSmoking, FlagAlcoholism, FlagPsychoactiveUse, FlagMultipara,
	},
	Medical: {
		FlagNoRiskFactors, FlagHypertensionChronic, FlagHypertensionGestational,
		FlagDiabetesPreexisting, FlagDiabetesGestational, FlagObesityBMI30To34,
		FlagObesityBMI35To40, FlagLowWeightBMI20, FlagRenalPathology,
		FlagCardiacPathology, FlagThyroidPathology, FlagAsthmaControlled,
		FlagEpilepsy, FlagHIVSyphilis, FlagCancerRemission, FlagMentalHealthHistory,
		FlagLiverPathology, FlagInfertilityHistory, FlagCytologyAlterations,
		FlagAnemia, FlagMyomas, FlagRecurrentUrinaryInfection,
	},
	Reproductive: {
		FlagPreviousAbortion2Plus, FlagPreviousPretermBirth, FlagPreviousPreeclampsia,
		FlagPreviousCSection1To2, FlagCervicalIncompetence, FlagEctopicHistory,
		FlagUterineSurgery,
	},
	CurrentPregnancy: {
		FlagNoObstetricRiskFactors, FlagMultiplePregnancy, FlagThreatenedAbortion,
		FlagThreatenedPreterm, FlagRCIU, FlagPolyOligohydramnios, FlagHemorrhage,
		FlagPlacentaPrevia, FlagAmnioticFluidAlteration, FlagUrinaryInfection,
		FlagCongenitalDefect, FlagPerinatalInfection,
	},
}

// distinguished holds the "screened, nothing found" flag of each category
// that has one.
var distinguished = map[Category]Flag{
	Medical:          FlagNoRiskFactors,
	CurrentPregnancy: FlagNoObstetricRiskFactors,
}

// Flags returns the catalog of flags for a category.
func Flags(c Category) []Flag {
	return append([]Flag(nil), flagCatalog[c]...)
}

// ParseCategory validates a wire category name.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if _, ok := flagCatalog[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}

// ParseFlag validates a wire flag name within a category.
func ParseFlag(c Category, s string) (Flag, error) {
	for _, f := range flagCatalog[c] {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %s.%s", ErrUnknownFlag, c, s)
}

// IsDistinguished reports whether f is the "no risk factors" flag of c.
func IsDistinguished(c Category, f Flag) bool {
	d, ok := distinguished[c]
	return ok && d == f
}

// FlagSet holds the boolean value of every flag in one category.
type FlagSet map[Flag]bool

// RiskFactorSet is the full screening questionnaire.
type RiskFactorSet struct {
	Sociodemographic FlagSet `json:"sociodemographic"`
	Medical          FlagSet `json:"medical"`
	Reproductive     FlagSet `json:"reproductive"`
	CurrentPregnancy FlagSet `json:"current_pregnancy"`
}

// NewRiskFactorSet returns a set with every catalog flag present and false.
func NewRiskFactorSet() RiskFactorSet {
	var s RiskFactorSet
	s.Normalize()
	return s
}

func (s *RiskFactorSet) group(c Category) *FlagSet {
	switch c {
	case Sociodemographic:
		return &s.Sociodemographic
	case Medical:
		return &s.Medical
	case Reproductive:
		return &s.Reproductive
	case CurrentPregnancy:
		return &s.CurrentPregnancy
	}
	return nil
}

// Get returns the value of a flag; unknown flags read false.
func (s RiskFactorSet) Get(c Category, f Flag) bool {
	g := s.group(c)
	if g == nil {
		return false
	}
	return (*g)[f]
}

// Normalize fills in catalog flags missing from a decoded document.
func (s *RiskFactorSet) Normalize() {
	for _, c := range Categories {
		g := s.group(c)
		if *g == nil {
			*g = make(FlagSet, len(flagCatalog[c]))
		}
		for _, f := range flagCatalog[c] {
			if _, ok := (*g)[f]; !ok {
				(*g)[f] = false
			}
		}
	}
}

// Validate rejects flags that are not part of the catalog.
func (s RiskFactorSet) Validate() error {
	for _, c := range Categories {
		g := s.group(c)
		for f := range *g {
			if _, err := ParseFlag(c, string(f)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Clone returns a deep copy.
func (s RiskFactorSet) Clone() RiskFactorSet {
	var out RiskFactorSet
	for _, c := range Categories {
		src := s.group(c)
		if *src == nil {
			continue
		}
		dst := out.group(c)
		*dst = make(FlagSet, len(*src))
		for f, v := range *src {
			(*dst)[f] = v
		}
	}
	return out
}

// Active returns the names of true flags as "category.flag", catalog order.
func (s RiskFactorSet) Active() []string {
	var out []string
	for _, c := range Categories {
		for _, f := range flagCatalog[c] {
			if s.Get(c, f) {
				out = append(out, string(c)+"."+string(f))
			}
		}
	}
	return out
}

// IsDerivedFlag reports whether the flag mirrors the numeric age and is
// written by Profile.Recompute only.
func IsDerivedFlag(c Category, f Flag) bool {
	return c == Sociodemographic && (f == FlagAge15To19 || f == FlagAgeOver36)
}

// ApplyToggle flips one flag and applies the exclusion side effects:
//   - setting a distinguished flag clears its siblings, and for medical
//     also every reproductive flag;
//   - setting any other flag clears the distinguished flag of its category,
//     and medical.no_risk_factors when the category is medical or
//     reproductive.
//
// The input set is never modified.
func ApplyToggle(s RiskFactorSet, c Category, f Flag) (RiskFactorSet, error) {
	if _, ok := flagCatalog[c]; !ok {
		return s, fmt.Errorf("%w: %q", ErrUnknownCategory, c)
	}
	if _, err := ParseFlag(c, string(f)); err != nil {
		return s, err
	}

	next := s.Clone()
	next.Normalize()
	newValue := !next.Get(c, f)

	if newValue {
		if IsDistinguished(c, f) {
			clearGroup(next.group(c))
			if c == Medical {
				clearGroup(next.group(Reproductive))
			}
		} else {
			if d, ok := distinguished[c]; ok {
				(*next.group(c))[d] = false
			}
			if c == Medical || c == Reproductive {
				next.Medical[FlagNoRiskFactors] = false
			}
		}
	}

	(*next.group(c))[f] = newValue
	return next, nil
}

func clearGroup(g *FlagSet) {
	for f := range *g {
		(*g)[f] = false
	}
}

// CheckExclusivity verifies that no distinguished flag is set together with
// a flag it excludes.
func CheckExclusivity(s RiskFactorSet) error {
	var conflicts []string
	if s.Get(Medical, FlagNoRiskFactors) {
		for _, c := range []Category{Medical, Reproductive} {
			for _, f := range flagCatalog[c] {
				if f != FlagNoRiskFactors && s.Get(c, f) {
					conflicts = append(conflicts, string(c)+"."+string(f))
				}
			}
		}
	}
	if s.Get(CurrentPregnancy, FlagNoObstetricRiskFactors) {
		for _, f := range flagCatalog[CurrentPregnancy] {
			if f != FlagNoObstetricRiskFactors && s.Get(CurrentPregnancy, f) {
				conflicts = append(conflicts, string(CurrentPregnancy)+"."+string(f))
			}
		}
	}
	if len(conflicts) > 0 {
		return fmt.Errorf("risk factors conflict with a no-risk screening: %s", strings.Join(conflicts, ", "))
	}
	return nil
}
