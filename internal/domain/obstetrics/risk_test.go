package obstetrics

import "testing"

func TestIsHighRiskAge(t *testing.T) {
	tests := []struct {
		age  int
		want bool
	}{
		{12, false}, {14, false}, {15, true}, {17, true}, {19, true},
		{20, false}, {28, false}, {35, false}, {36, true}, {44, true},
	}
	for _, tt := range tests {
		if got := IsHighRiskAge(tt.age); got != tt.want {
			t.Errorf("IsHighRiskAge(%d) = %v, want %v", tt.age, got, tt.want)
		}
	}
}

func TestAssessRisk_NoFactors(t *testing.T) {
	a := AssessRisk(28, NewRiskFactorSet())
	if a.Level != RiskLow {
		t.Errorf("level = %q, want Low", a.Level)
	}
	if a.Reasons == nil || len(a.Reasons) != 0 {
		t.Errorf("expected empty non-nil reasons, got %#v", a.Reasons)
	}
}

func TestAssessRisk_AgeAlone(t *testing.T) {
	a := AssessRisk(17, NewRiskFactorSet())
	if a.Level != RiskHigh {
		t.Fatalf("level = %q, want High", a.Level)
	}
	if len(a.Reasons) != 1 || a.Reasons[0] != "maternal age 17" {
		t.Errorf("reasons = %v", a.Reasons)
	}
}

func TestAssessRisk_EverySingleHighRiskFlag(t *testing.T) {
	for c, flags := range highRiskFlags {
		for _, f := range flags {
			s := NewRiskFactorSet()
			s = mustToggle(t, s, c, f)
			a := AssessRisk(28, s)
			if a.Level != RiskHigh {
				t.Errorf("%s.%s alone: level = %q, want High", c, f, a.Level)
				continue
			}
			want := string(c) + "." + string(f)
			if len(a.Reasons) != 1 || a.Reasons[0] != want {
				t.Errorf("%s.%s alone: reasons = %v", c, f, a.Reasons)
			}
		}
	}
}

func TestAssessRisk_InformationalFlagsStayLow(t *testing.T) {
	tests := []struct {
		c Category
		f Flag
	}{
		{Sociodemographic, FlagAge15To19},
		{Sociodemographic, FlagAgeOver36},
		{Sociodemographic, FlagLowSocioeconomic},
		{Medical, FlagNoRiskFactors},
		{Medical, FlagAsthmaControlled},
		{Medical, FlagObesityBMI30To34},
		{Reproductive, FlagUterineSurgery},
		{CurrentPregnancy, FlagNoObstetricRiskFactors},
		{CurrentPregnancy, FlagPerinatalInfection},
	}
	for _, tt := range tests {
		s := mustToggle(t, NewRiskFactorSet(), tt.c, tt.f)
		if got := ClassifyRisk(28, s); got != RiskLow {
			t.Errorf("%s.%s alone: level = %q, want Low", tt.c, tt.f, got)
		}
	}
}

func TestAssessRisk_CollectsEveryReason(t *testing.T) {
	s := NewRiskFactorSet()
	s.Sociodemographic[FlagSmoking] = true
	s.Medical[FlagHypertensionChronic] = true
	s.CurrentPregnancy[FlagMultiplePregnancy] = true
	a := AssessRisk(38, s)
	want := []string{
		"maternal age 38",
		"sociodemographic.smoking",
		"medical.hypertension_chronic",
		"current_pregnancy.multiple_pregnancy",
	}
	if len(a.Reasons) != len(want) {
		t.Fatalf("reasons = %v, want %v", a.Reasons, want)
	}
	for i := range want {
		if a.Reasons[i] != want[i] {
			t.Errorf("reasons[%d] = %q, want %q", i, a.Reasons[i], want[i])
		}
	}
}

func TestParseRiskLevel(t *testing.T) {
	if l, err := ParseRiskLevel("High"); err != nil || l != RiskHigh {
		t.Errorf("ParseRiskLevel(High) = %q, %v", l, err)
	}
	if _, err := ParseRiskLevel("medium"); err == nil {
		t.Error("expected error for unknown level")
	}
}
