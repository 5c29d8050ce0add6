package notification

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// CareDocument identifies the educational document of one care track for
// one patient.
type CareDocument struct {
	PatientID      string
	Recipient      string
	PatientName    string
	TrackID        string
	TrackTitle     string
	GestationWeeks int
}

// DocumentDispatcher delivers care track documents by email.
type DocumentDispatcher struct {
	manager *NotificationManager
	baseURL string
}

// NewDocumentDispatcher links documents under baseURL, one file per track.
func NewDocumentDispatcher(manager *NotificationManager, baseURL string) *DocumentDispatcher {
	return &DocumentDispatcher{manager: manager, baseURL: strings.TrimRight(baseURL, "/")}
}

// DocumentURL returns the public link of a track document.
func (d *DocumentDispatcher) DocumentURL(trackID string) string {
	return d.baseURL + "/" + trackID + ".pdf"
}

// SendDocument renders and sends the care document email.
func (d *DocumentDispatcher) SendDocument(ctx context.Context, doc CareDocument) error {
	subject, body, err := d.manager.templates.Render(TemplateCareDocument, map[string]string{
		"patient_name":    doc.PatientName,
		"track_title":     doc.TrackTitle,
		"gestation_weeks": strconv.Itoa(doc.GestationWeeks),
		"document_url":    d.DocumentURL(doc.TrackID),
	})
	if err != nil {
		return fmt.Errorf("render template: %w", err)
	}
	return d.manager.Send(ctx, &Notification{
		Recipient:  doc.Recipient,
		Subject:    subject,
		Body:       body,
		TemplateID: TemplateCareDocument,
		Metadata:   map[string]string{"patient_id": doc.PatientID, "track_id": doc.TrackID},
	})
}

// NotifyRiskLevel tells a patient that the risk classification changed.
func (d *DocumentDispatcher) NotifyRiskLevel(ctx context.Context, recipient, patientName, level string) error {
	_, err := d.manager.SendFromTemplate(ctx, TemplateRiskLevelChanged, map[string]string{
		"patient_name": patientName,
		"risk_level":   level,
	}, recipient)
	return err
}
