package obstetrics

import (
	"fmt"
	"time"
)

// ScheduleVersion identifies the canonical exam schedule and care tracks
// installed for first-time patients. Bump it whenever either list changes.
const ScheduleVersion = "2024.1"

// ExamStatus is the tri-state result of a scheduled exam.
type ExamStatus string

const (
	ExamPending  ExamStatus = "pending"
	ExamNormal   ExamStatus = "normal"
	ExamAbnormal ExamStatus = "abnormal"
)

// Exam is a single lab or ultrasound item.
type Exam struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      ExamStatus `json:"status"`
	ResultValue *string    `json:"result_value,omitempty"`
	RecordedAt  *time.Time `json:"recorded_at,omitempty"`
}

// ExamCategory groups the exams of one phase of care.
type ExamCategory struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
	Exams    []Exam `json:"exams"`
}

// TrackFlag names one of the four completion marks of a care track.
type TrackFlag string

const (
	TrackControl   TrackFlag = "control"
	TrackNutrition TrackFlag = "nutrition"
	TrackExercise  TrackFlag = "exercise"
	TrackDocument  TrackFlag = "document"
)

// ParseTrackFlag validates a wire track flag.
func ParseTrackFlag(s string) (TrackFlag, error) {
	switch TrackFlag(s) {
	case TrackControl, TrackNutrition, TrackExercise, TrackDocument:
		return TrackFlag(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTrackFlag, s)
}

// CareTrack is one educational visit unit.
type CareTrack struct {
	ID                  string `json:"id"`
	Title               string `json:"title"`
	ControlAttended     bool   `json:"control_attended"`
	NutritionCounseling bool   `json:"nutrition_counseling"`
	ExerciseCounseling  bool   `json:"exercise_counseling"`
	DocumentDelivered   bool   `json:"document_delivered"`
}

// Completed reports whether every mark of the track is set.
func (t CareTrack) Completed() bool {
	return t.ControlAttended && t.NutritionCounseling && t.ExerciseCounseling && t.DocumentDelivered
}

func (t *CareTrack) mark(f TrackFlag) *bool {
	switch f {
	case TrackControl:
		return &t.ControlAttended
	case TrackNutrition:
		return &t.NutritionCounseling
	case TrackExercise:
		return &t.ExerciseCounseling
	case TrackDocument:
		return &t.DocumentDelivered
	}
	return nil
}

func exam(id, name string) Exam {
	return Exam{ID: id, Name: name, Status: ExamPending}
}

var canonicalExams = []ExamCategory{
	{
		ID:       "intake",
		Title:    "Intake labs",
		Subtitle: "Mandatory initial protocol",
		Exams: []Exam{
			exam("i1", "Hematocrit / hemoglobin"),
			exam("i2", "Rubella IgG"),
			exam("i3", "Rubella IgM"),
			exam("i4", "Cytomegalovirus IgG"),
			exam("i5", "Cytomegalovirus IgM"),
			exam("i6", "VDRL / syphilis"),
			exam("i7", "Urinalysis"),
			exam("i8", "Vaginal discharge smear and Gram stain"),
			exam("i9", "Urine culture"),
			exam("i10", "HBsAg (hepatitis B)"),
			exam("i11", "HIV 1 and 2"),
			exam("i12", "TSH (thyroid)"),
			exam("i13", "Stool test"),
			exam("i14", "Ferritin"),
			exam("i15", "Cervical cytology"),
		},
	},
	{
		ID:       "visit-8-20",
		Title:    "Visit (8 - 20 weeks)",
		Subtitle: "Genetic and morphological screening",
		Exams: []Exam{
			exam("v1_1", "(8-13) free beta-hCG + PAPP-A"),
			exam("v1_2", "(11-13) Ultrasound, nuchal translucency and dating"),
			exam("v1_3", "(>14) free beta-hCG, AFP, uE3 and inhibin A"),
			exam("v1_4", "(>15) Cervical length"),
			exam("v1_5", "(18-20) Morphology ultrasound"),
			exam("v1_6", "(20) Uterine artery Doppler"),
		},
	},
	{
		ID:       "visit-24-28",
		Title:    "Visit (24 - 28 weeks)",
		Subtitle: "Metabolic screening",
		Exams: []Exam{
			exam("v2_1", "75 g oral glucose tolerance test"),
			exam("v2_2", "Complete blood count"),
			exam("v2_3", "Urine culture"),
			exam("v2_4", "VDRL / syphilis"),
			exam("v2_5", "Indirect Coombs (Rh negative)"),
		},
	},
	{
		ID:       "visit-35-37",
		Title:    "Visit (35 - 37 weeks)",
		Subtitle: "Delivery preparation",
		Exams: []Exam{
			exam("v3_1", "Group B streptococcus culture"),
			exam("v3_2", "Growth ultrasound"),
			exam("v3_3", "HIV 1 and 2"),
			exam("v3_4", "Non-stress test"),
		},
	},
}

var canonicalTracks = []CareTrack{
	{ID: "c1", Title: "1. How your baby grows during pregnancy"},
	{ID: "c2", Title: "2. Common discomforts in pregnancy"},
	{ID: "c3", Title: "3. Do you think you have genetic problems?"},
	{ID: "c4", Title: "4. Posture during pregnancy"},
	{ID: "c5", Title: "5. Active mom, longer life"},
	{ID: "c6", Title: "6. Warning signs you should not ignore"},
	{ID: "c7", Title: "7. Feeding and supplements by trimester"},
	{ID: "c8", Title: "8. Emotional health and support network"},
	{ID: "c9", Title: "9. Preparing for labor and delivery"},
	{ID: "c10", Title: "10. Breastfeeding and newborn care"},
}

// CanonicalExamSchedule returns a fresh copy of the default exam schedule.
func CanonicalExamSchedule() []ExamCategory {
	return cloneExamSchedule(canonicalExams)
}

// CanonicalCareTracks returns a fresh copy of the ten default care tracks.
func CanonicalCareTracks() []CareTrack {
	return append([]CareTrack(nil), canonicalTracks...)
}

func cloneExamSchedule(in []ExamCategory) []ExamCategory {
	if in == nil {
		return nil
	}
	out := make([]ExamCategory, len(in))
	for i, c := range in {
		out[i] = c
		out[i].Exams = make([]Exam, len(c.Exams))
		for j, e := range c.Exams {
			if e.ResultValue != nil {
				v := *e.ResultValue
				e.ResultValue = &v
			}
			if e.RecordedAt != nil {
				t := *e.RecordedAt
				e.RecordedAt = &t
			}
			out[i].Exams[j] = e
		}
	}
	return out
}

func findExam(schedule []ExamCategory, categoryID, examID string) (*Exam, error) {
	for i := range schedule {
		if schedule[i].ID != categoryID {
			continue
		}
		for j := range schedule[i].Exams {
			if schedule[i].Exams[j].ID == examID {
				return &schedule[i].Exams[j], nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrUnknownExam, categoryID, examID)
}

func findTrack(tracks []CareTrack, trackID string) (*CareTrack, error) {
	for i := range tracks {
		if tracks[i].ID == trackID {
			return &tracks[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownTrack, trackID)
}

// ToggleExamStatus sets an exam to status, or back to pending when it is
// already at status.
func ToggleExamStatus(schedule []ExamCategory, categoryID, examID string, status ExamStatus) (Exam, error) {
	if status != ExamNormal && status != ExamAbnormal {
		return Exam{}, fmt.Errorf("%w: %q", ErrInvalidExamStatus, status)
	}
	e, err := findExam(schedule, categoryID, examID)
	if err != nil {
		return Exam{}, err
	}
	if e.Status == status {
		e.Status = ExamPending
	} else {
		e.Status = status
	}
	return *e, nil
}

// ToggleTrackFlag flips one mark of a care track.
func ToggleTrackFlag(tracks []CareTrack, trackID string, flag TrackFlag) (CareTrack, error) {
	t, err := findTrack(tracks, trackID)
	if err != nil {
		return CareTrack{}, err
	}
	m := t.mark(flag)
	if m == nil {
		return CareTrack{}, fmt.Errorf("%w: %q", ErrInvalidTrackFlag, flag)
	}
	*m = !*m
	return *t, nil
}
