package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/ceres/prenatal/internal/domain/obstetrics"
)

func TestParseFactor(t *testing.T) {
	tests := []struct {
		in      string
		wantCat obstetrics.Category
		wantErr bool
	}{
		{"medical.hypertension_chronic", obstetrics.Medical, false},
		{" current_pregnancy.rciu ", obstetrics.CurrentPregnancy, false},
		{"medical", "", true},
		{"unknown.smoking", "", true},
		{"medical.smoking", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			c, _, err := parseFactor(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseFactor(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if c != tt.wantCat {
				t.Errorf("category = %q, want %q", c, tt.wantCat)
			}
		})
	}
}

func TestBuildAssessment(t *testing.T) {
	today := time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC)
	report, err := buildAssessment(assessOptions{
		age:     28,
		height:  160,
		weight:  60,
		edd:     "2024-11-02",
		factors: []string{"medical.hypertension_chronic", "medical.hypertension_chronic"},
	}, today)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Risk.Level != obstetrics.RiskHigh {
		t.Errorf("risk = %s, want High", report.Risk.Level)
	}
	if len(report.Factors) != 1 {
		t.Errorf("repeated factor should be set once, got %v", report.Factors)
	}
	if report.Biometrics == nil || report.Biometrics.BMI != 23.4 || report.Biometrics.Category != obstetrics.CategoryNormal {
		t.Errorf("unexpected biometrics: %+v", report.Biometrics)
	}
	// 154 days before the EDD is 22 weeks remaining, so 18 completed weeks.
	if report.Gestation == nil || report.Gestation.Weeks != 18 || report.Gestation.Trimester != 2 {
		t.Errorf("unexpected gestation: %+v", report.Gestation)
	}
}

func TestBuildAssessment_LowRiskWithoutExtras(t *testing.T) {
	report, err := buildAssessment(assessOptions{age: 25}, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Risk.Level != obstetrics.RiskLow {
		t.Errorf("risk = %s, want Low", report.Risk.Level)
	}
	if report.Biometrics != nil || report.Gestation != nil {
		t.Error("expected no biometrics or gestation sections")
	}
}

func TestBuildAssessment_BadInput(t *testing.T) {
	if _, err := buildAssessment(assessOptions{age: 25, edd: "01/02/2024"}, time.Now()); err == nil {
		t.Error("expected error for malformed edd")
	}
	if _, err := buildAssessment(assessOptions{age: 25, factors: []string{"nope"}}, time.Now()); err == nil {
		t.Error("expected error for malformed factor")
	}
}

func TestAssessCmd_WritesJSON(t *testing.T) {
	cmd := assessCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--age", "38"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	risk := got["risk"].(map[string]interface{})
	if risk["level"] != "High" {
		t.Errorf("age 38 should be High, got %v", risk["level"])
	}
}

func TestResolveSigningKey(t *testing.T) {
	key, generated, err := resolveSigningKey("configured-key", false)
	if err != nil || generated || string(key) != "configured-key" {
		t.Fatalf("configured key: %q %v %v", key, generated, err)
	}

	key, generated, err = resolveSigningKey("", true)
	if err != nil || !generated || len(key) != 32 {
		t.Fatalf("dev key: len %d generated %v err %v", len(key), generated, err)
	}

	if _, _, err := resolveSigningKey("", false); err == nil {
		t.Fatal("expected error without a key outside development")
	}
}
