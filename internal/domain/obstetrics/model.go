package obstetrics

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the wire format of calendar dates such as the EDD.
const DateLayout = "2006-01-02"

// Profile is the single persisted document of a patient. GestationWeeks,
// InitialBMI and WeightGoal are caches written by Recompute only.
type Profile struct {
	ID                    uuid.UUID      `json:"id"`
	Name                  string         `json:"name"`
	LastName              string         `json:"last_name"`
	DocumentType          string         `json:"document_type"`
	DocumentNumber        string         `json:"document_number"`
	Age                   int            `json:"age"`
	CivilStatus           string         `json:"civil_status,omitempty"`
	Occupation            string         `json:"occupation,omitempty"`
	Education             string         `json:"education,omitempty"`
	Email                 string         `json:"email,omitempty"`
	Phone                 string         `json:"phone,omitempty"`
	Department            string         `json:"department,omitempty"`
	Municipality          string         `json:"municipality,omitempty"`
	Address               string         `json:"address,omitempty"`
	EmergencyContactName  string         `json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone string         `json:"emergency_contact_phone,omitempty"`
	EDD                   *time.Time     `json:"edd,omitempty"`
	GestationWeeks        int            `json:"gestation_weeks"`
	Height                float64        `json:"height"`
	InitialWeight         float64        `json:"initial_weight"`
	InitialBMI            float64        `json:"initial_bmi"`
	WeightGoal            WeightGoal     `json:"weight_goal"`
	BloodType             *BloodType     `json:"blood_type,omitempty"`
	RiskFactors           RiskFactorSet  `json:"risk_factors"`
	ExamSchedule          []ExamCategory `json:"exam_schedule,omitempty"`
	CareTracks            []CareTrack    `json:"care_tracks,omitempty"`
	ScheduleVersion       string         `json:"schedule_version,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

// Recompute rewrites every derived cache from its source fields. A nil EDD
// keeps the last known GestationWeeks. The sociodemographic age flags are
// mirrored from the numeric age; the classifier never reads them.
func (p *Profile) Recompute(today time.Time) {
	if p.EDD != nil {
		p.GestationWeeks = WeeksFromEDD(*p.EDD, today)
	}
	b := ClassifyBiometrics(p.InitialWeight, p.Height)
	p.InitialBMI = b.BMI
	p.WeightGoal = b.Goal()

	p.RiskFactors.Normalize()
	p.RiskFactors.Sociodemographic[FlagAge15To19] = p.Age >= 15 && p.Age <= 19
	p.RiskFactors.Sociodemographic[FlagAgeOver36] = p.Age >= 36
}

// EnsureSchedule installs the canonical exam schedule and care tracks when
// the stored document has none. It reports whether anything was installed.
func (p *Profile) EnsureSchedule() bool {
	changed := false
	if len(p.ExamSchedule) == 0 {
		p.ExamSchedule = CanonicalExamSchedule()
		changed = true
	}
	if len(p.CareTracks) == 0 {
		p.CareTracks = CanonicalCareTracks()
		changed = true
	}
	if changed && p.ScheduleVersion == "" {
		p.ScheduleVersion = ScheduleVersion
	}
	return changed
}

// Clone returns a deep copy.
func (p *Profile) Clone() *Profile {
	out := *p
	if p.EDD != nil {
		edd := *p.EDD
		out.EDD = &edd
	}
	if p.BloodType != nil {
		bt := *p.BloodType
		out.BloodType = &bt
	}
	out.RiskFactors = p.RiskFactors.Clone()
	out.ExamSchedule = cloneExamSchedule(p.ExamSchedule)
	if p.CareTracks != nil {
		out.CareTracks = append([]CareTrack(nil), p.CareTracks...)
	}
	return &out
}

// FullName joins the given name and last name.
func (p *Profile) FullName() string {
	if p.LastName == "" {
		return p.Name
	}
	return p.Name + " " + p.LastName
}

// BloodType is an ABO group with Rh factor.
type BloodType string

var validBloodTypes = map[BloodType]bool{
	"A+": true, "A-": true, "B+": true, "B-": true,
	"AB+": true, "AB-": true, "O+": true, "O-": true,
}

// ParseBloodType validates one of the eight ABO/Rh groups.
func ParseBloodType(s string) (BloodType, error) {
	if !validBloodTypes[BloodType(s)] {
		return "", fmt.Errorf("%w: %q", ErrInvalidBloodType, s)
	}
	return BloodType(s), nil
}

// ParseDate parses a calendar date in DateLayout as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD: %q", ErrInvalidProfile, s)
	}
	return t, nil
}

// Today returns the calendar date of t as midnight UTC.
func Today(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
