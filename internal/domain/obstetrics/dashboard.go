package obstetrics

import "time"

// Dashboard is the patient home summary.
type Dashboard struct {
	FullName        string         `json:"full_name"`
	EDD             *time.Time     `json:"edd,omitempty"`
	GestationWeeks  int            `json:"gestation_weeks"`
	WeeksRemaining  int            `json:"weeks_remaining"`
	Trimester       int            `json:"trimester"`
	FetalSize       string         `json:"fetal_size"`
	Risk            RiskAssessment `json:"risk"`
	InitialBMI      float64        `json:"initial_bmi"`
	WeightGoal      WeightGoal     `json:"weight_goal"`
	ExamsTotal      int            `json:"exams_total"`
	ExamsPending    int            `json:"exams_pending"`
	ExamsAbnormal   int            `json:"exams_abnormal"`
	TracksTotal     int            `json:"tracks_total"`
	TracksCompleted int            `json:"tracks_completed"`
}

// BuildDashboard summarizes a profile snapshot.
func BuildDashboard(p *Profile) Dashboard {
	d := Dashboard{
		FullName:       p.FullName(),
		EDD:            p.EDD,
		GestationWeeks: p.GestationWeeks,
		Trimester:      Trimester(p.GestationWeeks),
		FetalSize:      FetalSizeComparison(p.GestationWeeks),
		Risk:           AssessRisk(p.Age, p.RiskFactors),
		InitialBMI:     p.InitialBMI,
		WeightGoal:     p.WeightGoal,
		TracksTotal:    len(p.CareTracks),
	}
	if rem := FullTermWeeks - p.GestationWeeks; rem > 0 {
		d.WeeksRemaining = rem
	}
	for _, c := range p.ExamSchedule {
		for _, e := range c.Exams {
			d.ExamsTotal++
			switch e.Status {
			case ExamPending:
				d.ExamsPending++
			case ExamAbnormal:
				d.ExamsAbnormal++
			}
		}
	}
	for _, t := range p.CareTracks {
		if t.Completed() {
			d.TracksCompleted++
		}
	}
	return d
}
