package obstetrics

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ceres/prenatal/internal/platform/notification"
	"github.com/ceres/prenatal/internal/platform/telemetry"
	"github.com/ceres/prenatal/internal/platform/websocket"
)

// EmailDocumentSender delivers care track documents to the patient's email.
type EmailDocumentSender struct {
	dispatcher *notification.DocumentDispatcher
}

func NewEmailDocumentSender(d *notification.DocumentDispatcher) *EmailDocumentSender {
	return &EmailDocumentSender{dispatcher: d}
}

func (s *EmailDocumentSender) SendCareDocument(ctx context.Context, p *Profile, track CareTrack) error {
	return s.dispatcher.SendDocument(ctx, notification.CareDocument{
		PatientID:      p.ID.String(),
		Recipient:      p.Email,
		PatientName:    p.FullName(),
		TrackID:        track.ID,
		TrackTitle:     track.Title,
		GestationWeeks: p.GestationWeeks,
	})
}

// NotifyRiskChange emails the patient the new risk level.
func (s *EmailDocumentSender) NotifyRiskChange(ctx context.Context, p *Profile, level RiskLevel) error {
	return s.dispatcher.NotifyRiskLevel(ctx, p.Email, p.FullName(), string(level))
}

// TelemetryRecorder forwards domain events to Prometheus.
type TelemetryRecorder struct {
	Metrics *telemetry.TelemetryProvider
}

func (r TelemetryRecorder) RiskAssessed(level RiskLevel)      { r.Metrics.RiskVerdict(string(level)) }
func (r TelemetryRecorder) DocumentDispatched(outcome string) { r.Metrics.DocumentDispatch(outcome) }
func (r TelemetryRecorder) SessionsOpen(n int)                { r.Metrics.SetActiveSessions(n) }

// HubPublisher sends tracker events to the patient's live connections.
type HubPublisher struct {
	Hub    *websocket.Hub
	Logger zerolog.Logger
}

func (p HubPublisher) PublishEvent(ctx context.Context, patientID uuid.UUID, kind string, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		p.Logger.Error().Err(err).Str("event", kind).Msg("encode live event")
		return
	}
	err = p.Hub.Publish(ctx, websocket.Event{Type: kind, PatientID: patientID.String(), Data: raw})
	if err != nil {
		p.Logger.Warn().Err(err).Str("event", kind).Msg("publish live event")
	}
}
