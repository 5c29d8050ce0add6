package obstetrics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// OnboardingRequest is the completed onboarding form.
type OnboardingRequest struct {
	Name                  string         `json:"name"`
	LastName              string         `json:"last_name"`
	DocumentType          string         `json:"document_type"`
	DocumentNumber        string         `json:"document_number"`
	Age                   int            `json:"age"`
	CivilStatus           string         `json:"civil_status"`
	Occupation            string         `json:"occupation"`
	Education             string         `json:"education"`
	Email                 string         `json:"email"`
	Phone                 string         `json:"phone"`
	Department            string         `json:"department"`
	Municipality          string         `json:"municipality"`
	Address               string         `json:"address"`
	EmergencyContactName  string         `json:"emergency_contact_name"`
	EmergencyContactPhone string         `json:"emergency_contact_phone"`
	EDD                   string         `json:"edd"`
	Height                float64        `json:"height"`
	Weight                float64        `json:"weight"`
	BloodType             string         `json:"blood_type"`
	RiskFactors           *RiskFactorSet `json:"risk_factors"`
}

var validDocumentTypes = map[string]bool{
	"CC": true, "TI": true, "CE": true, "PA": true, "RC": true, "PPT": true,
}

// Validate checks the form and returns an error wrapping ErrInvalidProfile.
func (r *OnboardingRequest) Validate() error {
	var problems []string
	if strings.TrimSpace(r.Name) == "" {
		problems = append(problems, "name is required")
	}
	if !validDocumentTypes[r.DocumentType] {
		problems = append(problems, fmt.Sprintf("invalid document_type: %q", r.DocumentType))
	}
	if strings.TrimSpace(r.DocumentNumber) == "" {
		problems = append(problems, "document_number is required")
	}
	if r.Age < 10 || r.Age > 60 {
		problems = append(problems, "age must be between 10 and 60")
	}
	if r.Height <= 0 {
		problems = append(problems, "height must be positive")
	}
	if r.Weight <= 0 {
		problems = append(problems, "weight must be positive")
	}
	if r.EDD != "" {
		if _, err := ParseDate(r.EDD); err != nil {
			problems = append(problems, "edd must be YYYY-MM-DD")
		}
	}
	if r.BloodType != "" {
		if _, err := ParseBloodType(r.BloodType); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if r.RiskFactors != nil {
		if err := r.RiskFactors.Validate(); err != nil {
			problems = append(problems, err.Error())
		} else if err := CheckExclusivity(*r.RiskFactors); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidProfile, strings.Join(problems, "; "))
	}
	return nil
}

// Service owns the session registry: one Tracker per patient, opened lazily
// from the store.
type Service struct {
	deps TrackerDeps

	mu         sync.Mutex
	sessions   map[uuid.UUID]*Tracker
	generation map[uuid.UUID]uint64 // bumped on logout
}

func NewService(deps TrackerDeps) *Service {
	return &Service{
		deps:       deps.withDefaults(),
		sessions:   make(map[uuid.UUID]*Tracker),
		generation: make(map[uuid.UUID]uint64),
	}
}

// Onboard creates the profile of a first-time patient, classifies risk and
// opens the session.
func (s *Service) Onboard(ctx context.Context, patientID uuid.UUID, req OnboardingRequest) (*Profile, RiskAssessment, error) {
	if patientID == uuid.Nil {
		return nil, RiskAssessment{}, fmt.Errorf("%w: patient id is required", ErrInvalidProfile)
	}
	if err := req.Validate(); err != nil {
		return nil, RiskAssessment{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[patientID]; ok {
		return nil, RiskAssessment{}, ErrAlreadyOnboarded
	}
	if _, err := s.deps.Store.Load(ctx, patientID); err == nil {
		return nil, RiskAssessment{}, ErrAlreadyOnboarded
	} else if !errors.Is(err, ErrProfileNotFound) {
		return nil, RiskAssessment{}, fmt.Errorf("check existing profile: %w", err)
	}

	now := s.deps.Now().UTC()
	p := &Profile{
		ID:                    patientID,
		Name:                  strings.TrimSpace(req.Name),
		LastName:              strings.TrimSpace(req.LastName),
		DocumentType:          req.DocumentType,
		DocumentNumber:        strings.TrimSpace(req.DocumentNumber),
		Age:                   req.Age,
		CivilStatus:           req.CivilStatus,
		Occupation:            req.Occupation,
		Education:             req.Education,
		Email:                 req.Email,
		Phone:                 req.Phone,
		Department:            req.Department,
		Municipality:          req.Municipality,
		Address:               req.Address,
		EmergencyContactName:  req.EmergencyContactName,
		EmergencyContactPhone: req.EmergencyContactPhone,
		Height:                req.Height,
		InitialWeight:         req.Weight,
		RiskFactors:           NewRiskFactorSet(),
		ExamSchedule:          CanonicalExamSchedule(),
		CareTracks:            CanonicalCareTracks(),
		ScheduleVersion:       ScheduleVersion,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if req.EDD != "" {
		edd, _ := ParseDate(req.EDD)
		p.EDD = &edd
	}
	if req.BloodType != "" {
		bt := BloodType(req.BloodType)
		p.BloodType = &bt
	}
	if req.RiskFactors != nil {
		p.RiskFactors = req.RiskFactors.Clone()
	}
	p.Recompute(now)

	a := AssessRisk(p.Age, p.RiskFactors)
	s.deps.Recorder.RiskAssessed(a.Level)

	if err := s.deps.Store.Save(ctx, p); err != nil {
		return nil, RiskAssessment{}, fmt.Errorf("save profile: %w", err)
	}
	if err := s.deps.Store.SaveRiskLevel(ctx, p.ID, a.Level); err != nil {
		return nil, RiskAssessment{}, fmt.Errorf("save risk level: %w", err)
	}
	if err := s.deps.Store.SetAuthenticated(ctx, p.ID, true); err != nil {
		return nil, RiskAssessment{}, fmt.Errorf("save auth flag: %w", err)
	}

	t := NewTracker(p, s.deps)
	s.sessions[patientID] = t
	s.deps.Recorder.SessionsOpen(len(s.sessions))
	s.deps.Logger.Info().
		Str("patient_id", patientID.String()).
		Str("risk_level", string(a.Level)).
		Msg("patient onboarded")
	return t.Snapshot(), a, nil
}

// Session returns the open session of a patient, reading the profile from
// the store the first time. Store calls run outside the registry lock; a
// load that overlaps a logout of the same patient is discarded.
func (s *Service) Session(ctx context.Context, patientID uuid.UUID) (*Tracker, error) {
	s.mu.Lock()
	if t, ok := s.sessions[patientID]; ok {
		s.mu.Unlock()
		return t, nil
	}
	gen := s.generation[patientID]
	s.mu.Unlock()

	p, err := s.deps.Store.Load(ctx, patientID)
	if err != nil {
		return nil, err
	}
	installed := p.EnsureSchedule()
	t := NewTracker(p, s.deps)

	s.mu.Lock()
	if existing, ok := s.sessions[patientID]; ok {
		s.mu.Unlock()
		return existing, nil
	}
	if s.generation[patientID] != gen {
		s.mu.Unlock()
		return nil, ErrProfileNotFound
	}
	s.sessions[patientID] = t
	s.deps.Recorder.SessionsOpen(len(s.sessions))
	s.mu.Unlock()

	if installed {
		t.mu.Lock()
		if err := t.persistLocked(ctx); err != nil {
			s.deps.Logger.Warn().Err(err).Str("patient_id", patientID.String()).Msg("persist canonical schedule")
		}
		t.mu.Unlock()
	}
	if err := s.deps.Store.SetAuthenticated(ctx, patientID, true); err != nil {
		s.deps.Logger.Warn().Err(err).Str("patient_id", patientID.String()).Msg("persist auth flag")
	}
	return t, nil
}

// Logout closes the session and removes the profile together with its
// companion records. Closed trackers stop writing, so a dispatch still in
// flight cannot bring the profile back.
func (s *Service) Logout(ctx context.Context, patientID uuid.UUID) error {
	s.closeSession(patientID)
	if err := s.deps.Store.Delete(ctx, patientID); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	// A session opened from the store while the delete ran is stale too.
	s.closeSession(patientID)
	s.deps.Logger.Info().Str("patient_id", patientID.String()).Msg("patient logged out")
	return nil
}

func (s *Service) closeSession(patientID uuid.UUID) {
	s.mu.Lock()
	s.generation[patientID]++
	t := s.sessions[patientID]
	delete(s.sessions, patientID)
	s.deps.Recorder.SessionsOpen(len(s.sessions))
	s.mu.Unlock()
	if t != nil {
		t.close()
	}
}

// Assess classifies risk without touching any profile.
func (s *Service) Assess(age int, factors RiskFactorSet) RiskAssessment {
	a := AssessRisk(age, factors)
	s.deps.Recorder.RiskAssessed(a.Level)
	return a
}

// ListProfiles is the clinician listing.
func (s *Service) ListProfiles(ctx context.Context, filter ProfileFilter, limit, offset int) ([]*ProfileSummary, int, error) {
	return s.deps.Store.List(ctx, filter, limit, offset)
}

// Now exposes the service clock.
func (s *Service) Now() time.Time {
	return s.deps.Now()
}
