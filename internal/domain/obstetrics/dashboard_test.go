package obstetrics

import (
	"testing"
	"time"
)

func TestBuildDashboard(t *testing.T) {
	p := sampleProfile()
	p.EnsureSchedule()
	p.Recompute(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	if _, err := ToggleExamStatus(p.ExamSchedule, "intake", "i1", ExamNormal); err != nil {
		t.Fatal(err)
	}
	if _, err := ToggleExamStatus(p.ExamSchedule, "intake", "i2", ExamAbnormal); err != nil {
		t.Fatal(err)
	}
	for _, f := range []TrackFlag{TrackControl, TrackNutrition, TrackExercise, TrackDocument} {
		if _, err := ToggleTrackFlag(p.CareTracks, "c1", f); err != nil {
			t.Fatal(err)
		}
	}

	d := BuildDashboard(p)
	if d.FullName != "Ana Ruiz" {
		t.Errorf("full name = %q", d.FullName)
	}
	if d.GestationWeeks != 18 || d.WeeksRemaining != 22 || d.Trimester != 2 || d.FetalSize != "mango" {
		t.Errorf("gestation summary = %d weeks, %d remaining, trimester %d, %q",
			d.GestationWeeks, d.WeeksRemaining, d.Trimester, d.FetalSize)
	}
	if d.Risk.Level != RiskHigh {
		t.Errorf("risk = %q, want High for age 17", d.Risk.Level)
	}
	if d.ExamsTotal != 30 || d.ExamsPending != 28 || d.ExamsAbnormal != 1 {
		t.Errorf("exams = %d total, %d pending, %d abnormal", d.ExamsTotal, d.ExamsPending, d.ExamsAbnormal)
	}
	if d.TracksTotal != 10 || d.TracksCompleted != 1 {
		t.Errorf("tracks = %d total, %d completed", d.TracksTotal, d.TracksCompleted)
	}
}

func TestBuildDashboard_PastTerm(t *testing.T) {
	p := sampleProfile()
	p.Recompute(time.Date(2024, 11, 20, 0, 0, 0, 0, time.UTC))
	d := BuildDashboard(p)
	if d.WeeksRemaining != 0 {
		t.Errorf("weeks remaining = %d, want 0 past term", d.WeeksRemaining)
	}
	if d.Trimester != 3 {
		t.Errorf("trimester = %d", d.Trimester)
	}
}
