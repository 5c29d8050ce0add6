package obstetrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultDispatchTimeout bounds a document dispatch when none is configured.
const DefaultDispatchTimeout = 30 * time.Second

// DocumentSender delivers the educational document of a care track to the
// patient.
type DocumentSender interface {
	SendCareDocument(ctx context.Context, p *Profile, track CareTrack) error
}

// RiskChangeNotifier is implemented by senders that can also tell the
// patient that their risk level moved.
type RiskChangeNotifier interface {
	NotifyRiskChange(ctx context.Context, p *Profile, level RiskLevel) error
}

// Recorder receives domain events for metrics.
type Recorder interface {
	RiskAssessed(level RiskLevel)
	DocumentDispatched(outcome string)
	SessionsOpen(n int)
}

type nopRecorder struct{}

func (nopRecorder) RiskAssessed(RiskLevel)    {}
func (nopRecorder) DocumentDispatched(string) {}
func (nopRecorder) SessionsOpen(int)          {}

// EventPublisher pushes live session events to the patient's connected
// clients. Delivery is best effort.
type EventPublisher interface {
	PublishEvent(ctx context.Context, patientID uuid.UUID, kind string, data interface{})
}

type nopPublisher struct{}

func (nopPublisher) PublishEvent(context.Context, uuid.UUID, string, interface{}) {}

// Live event kinds.
const (
	EventDocumentDelivered = "care_track.document_delivered"
	EventDocumentFailed    = "care_track.document_failed"
	EventRiskChanged       = "risk.changed"
)

// Dispatch outcomes reported to the Recorder.
const (
	DispatchSent     = "sent"
	DispatchFailed   = "failed"
	DispatchRejected = "rejected"
)

// TrackerDeps are the collaborators shared by every patient session.
type TrackerDeps struct {
	Store           ProfileStore
	Sender          DocumentSender
	Recorder        Recorder
	Events          EventPublisher
	Logger          zerolog.Logger
	DispatchTimeout time.Duration
	Now             func() time.Time
}

func (d TrackerDeps) withDefaults() TrackerDeps {
	if d.Recorder == nil {
		d.Recorder = nopRecorder{}
	}
	if d.Events == nil {
		d.Events = nopPublisher{}
	}
	if d.DispatchTimeout <= 0 {
		d.DispatchTimeout = DefaultDispatchTimeout
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// Tracker is one patient session. It owns the in-memory profile, which is
// the source of truth until the next successful persist, and writes the
// whole document back after every mutation.
type Tracker struct {
	deps TrackerDeps

	mu       sync.Mutex
	profile  *Profile
	inFlight map[string]bool
	closed   bool
}

// NewTracker starts a session over a profile read from the store. Missing
// schedule data is filled from the canonical schedule.
func NewTracker(p *Profile, deps TrackerDeps) *Tracker {
	deps = deps.withDefaults()
	p.EnsureSchedule()
	p.Recompute(deps.Now())
	return &Tracker{
		deps:     deps,
		profile:  p,
		inFlight: make(map[string]bool),
	}
}

func (t *Tracker) log() *zerolog.Logger {
	l := t.deps.Logger.With().Str("patient_id", t.profile.ID.String()).Logger()
	return &l
}

// close ends the session. Later writes, including dispatches already in
// flight, are dropped and report ErrProfileNotFound.
func (t *Tracker) close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

// persistLocked writes the current profile. Callers hold t.mu.
func (t *Tracker) persistLocked(ctx context.Context) error {
	if t.closed {
		return ErrProfileNotFound
	}
	t.profile.UpdatedAt = t.deps.Now().UTC()
	if err := t.deps.Store.Save(ctx, t.profile); err != nil {
		t.log().Error().Err(err).Msg("persist profile")
		return fmt.Errorf("%w: %v", ErrStaleDurableCopy, err)
	}
	return nil
}

// Snapshot returns a deep copy of the profile with gestational weeks
// refreshed for the current day.
func (t *Tracker) Snapshot() *Profile {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.profile.Clone()
	p.Recompute(t.deps.Now())
	return p
}

// Risk evaluates the current risk factors.
func (t *Tracker) Risk() RiskAssessment {
	t.mu.Lock()
	defer t.mu.Unlock()
	return AssessRisk(t.profile.Age, t.profile.RiskFactors)
}

// ToggleExamStatus moves an exam to status, or back to pending when it is
// already there.
func (t *Tracker) ToggleExamStatus(ctx context.Context, categoryID, examID string, status ExamStatus) (Exam, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, err := ToggleExamStatus(t.profile.ExamSchedule, categoryID, examID, status)
	if err != nil {
		return Exam{}, err
	}
	return e, t.persistLocked(ctx)
}

// RecordExamResult attaches a free text result to an exam.
func (t *Tracker) RecordExamResult(ctx context.Context, categoryID, examID, value string) (Exam, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, err := findExam(t.profile.ExamSchedule, categoryID, examID)
	if err != nil {
		return Exam{}, err
	}
	now := t.deps.Now().UTC()
	e.ResultValue = &value
	e.RecordedAt = &now
	out := *e
	return out, t.persistLocked(ctx)
}

// ToggleTrackFlag flips one mark of a care track.
func (t *Tracker) ToggleTrackFlag(ctx context.Context, trackID string, flag TrackFlag) (CareTrack, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, err := ToggleTrackFlag(t.profile.CareTracks, trackID, flag)
	if err != nil {
		return CareTrack{}, err
	}
	return tr, t.persistLocked(ctx)
}

// ToggleRiskFactor applies a screening answer, reclassifies and persists the
// profile together with the risk level companion.
func (t *Tracker) ToggleRiskFactor(ctx context.Context, c Category, f Flag) (RiskFactorSet, RiskAssessment, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return RiskFactorSet{}, RiskAssessment{}, ErrProfileNotFound
	}
	if IsDerivedFlag(c, f) {
		return RiskFactorSet{}, RiskAssessment{}, fmt.Errorf("%w: %s.%s", ErrDerivedFlag, c, f)
	}
	next, err := ApplyToggle(t.profile.RiskFactors, c, f)
	if err != nil {
		return RiskFactorSet{}, RiskAssessment{}, err
	}
	before := ClassifyRisk(t.profile.Age, t.profile.RiskFactors)
	t.profile.RiskFactors = next
	t.profile.Recompute(t.deps.Now())
	a := AssessRisk(t.profile.Age, t.profile.RiskFactors)
	t.deps.Recorder.RiskAssessed(a.Level)
	if a.Level != before {
		t.deps.Events.PublishEvent(ctx, t.profile.ID, EventRiskChanged, a)
		t.notifyRiskChange(ctx, t.profile.Clone(), a.Level)
	}

	out := t.profile.RiskFactors.Clone()
	if err := t.persistLocked(ctx); err != nil {
		return out, a, err
	}
	if err := t.deps.Store.SaveRiskLevel(ctx, t.profile.ID, a.Level); err != nil {
		t.log().Error().Err(err).Msg("persist risk level")
		return out, a, fmt.Errorf("%w: %v", ErrStaleDurableCopy, err)
	}
	return out, a, nil
}

// notifyRiskChange tells the patient about a new risk level without holding
// up the toggle. Delivery failures are only logged.
func (t *Tracker) notifyRiskChange(ctx context.Context, p *Profile, level RiskLevel) {
	n, ok := t.deps.Sender.(RiskChangeNotifier)
	if !ok || p.Email == "" {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.deps.DispatchTimeout)
	go func() {
		defer cancel()
		if err := n.NotifyRiskChange(nctx, p, level); err != nil {
			t.deps.Logger.Warn().Err(err).Str("patient_id", p.ID.String()).Msg("risk change notification failed")
		}
	}()
}

// UpdateBiometrics replaces height and pre-pregnancy weight and refreshes the
// BMI and weight goal caches.
func (t *Tracker) UpdateBiometrics(ctx context.Context, heightCm, weightKg float64) (Biometrics, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.profile.Height = heightCm
	t.profile.InitialWeight = weightKg
	t.profile.Recompute(t.deps.Now())
	return ClassifyBiometrics(weightKg, heightCm), t.persistLocked(ctx)
}

// UpdateEDD replaces the estimated due date. A nil date keeps the last known
// gestational weeks.
func (t *Tracker) UpdateEDD(ctx context.Context, edd *time.Time) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if edd != nil {
		d := Today(*edd)
		edd = &d
	}
	t.profile.EDD = edd
	t.profile.Recompute(t.deps.Now())
	return t.profile.GestationWeeks, t.persistLocked(ctx)
}

// SetBloodType records the ABO/Rh group once it is known.
func (t *Tracker) SetBloodType(ctx context.Context, bt BloodType) error {
	if _, err := ParseBloodType(string(bt)); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.profile.BloodType = &bt
	return t.persistLocked(ctx)
}

// SendDocument starts delivering the document of a care track. Only one
// dispatch per track may be pending; a second call returns
// ErrDispatchInFlight while other tracks stay independent. The dispatch
// outlives the caller's context and is bounded by the dispatch timeout. The
// returned channel yields the outcome once and is then closed: nil after
// DocumentDelivered was set, or an error wrapping ErrDispatchFailed with
// the track left exactly as it was.
func (t *Tracker) SendDocument(ctx context.Context, trackID string) (<-chan error, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrProfileNotFound
	}
	track, err := findTrack(t.profile.CareTracks, trackID)
	if err != nil {
		t.mu.Unlock()
		return nil, err
	}
	if t.inFlight[trackID] {
		t.mu.Unlock()
		t.deps.Recorder.DocumentDispatched(DispatchRejected)
		return nil, fmt.Errorf("%w: %s", ErrDispatchInFlight, trackID)
	}
	t.inFlight[trackID] = true
	snapshot := t.profile.Clone()
	target := *track
	t.mu.Unlock()

	t.log().Info().Str("track_id", trackID).Msg("document dispatch started")

	done := make(chan error, 1)
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.deps.DispatchTimeout)
	go func() {
		defer close(done)
		defer cancel()
		sendErr := t.deps.Sender.SendCareDocument(dctx, snapshot, target)
		done <- t.completeDispatch(context.WithoutCancel(dctx), trackID, sendErr)
	}()
	return done, nil
}

func (t *Tracker) completeDispatch(ctx context.Context, trackID string, sendErr error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inFlight, trackID)

	if t.closed {
		t.log().Info().Str("track_id", trackID).Msg("document dispatch finished after logout, result dropped")
		return ErrProfileNotFound
	}
	if sendErr != nil {
		t.deps.Recorder.DocumentDispatched(DispatchFailed)
		t.log().Warn().Err(sendErr).Str("track_id", trackID).Msg("document dispatch failed")
		t.deps.Events.PublishEvent(ctx, t.profile.ID, EventDocumentFailed, dispatchEvent{TrackID: trackID, Error: sendErr.Error()})
		return fmt.Errorf("%w: %s: %v", ErrDispatchFailed, trackID, sendErr)
	}

	track, err := findTrack(t.profile.CareTracks, trackID)
	if err != nil {
		return err
	}
	track.DocumentDelivered = true
	t.deps.Recorder.DocumentDispatched(DispatchSent)
	t.log().Info().Str("track_id", trackID).Msg("document delivered")
	t.deps.Events.PublishEvent(ctx, t.profile.ID, EventDocumentDelivered, dispatchEvent{TrackID: trackID})
	return t.persistLocked(ctx)
}

type dispatchEvent struct {
	TrackID string `json:"track_id"`
	Error   string `json:"error,omitempty"`
}

// Dispatching reports whether a document for the track is pending.
func (t *Tracker) Dispatching(trackID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inFlight[trackID]
}
