package obstetrics

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ProfileStore is the durable copy of patient profiles and their two
// companion records. Load returns ErrProfileNotFound for unknown patients.
type ProfileStore interface {
	Load(ctx context.Context, id uuid.UUID) (*Profile, error)
	Save(ctx context.Context, p *Profile) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter ProfileFilter, limit, offset int) ([]*ProfileSummary, int, error)

	SaveRiskLevel(ctx context.Context, id uuid.UUID, level RiskLevel) error
	LoadRiskLevel(ctx context.Context, id uuid.UUID) (RiskLevel, error)
	SetAuthenticated(ctx context.Context, id uuid.UUID, authenticated bool) error
	IsAuthenticated(ctx context.Context, id uuid.UUID) (bool, error)
}

// ProfileFilter narrows the clinician listing. Zero values match everything.
type ProfileFilter struct {
	RiskLevel RiskLevel
}

// Matches reports whether a stored risk level passes the filter.
func (f ProfileFilter) Matches(level RiskLevel) bool {
	return f.RiskLevel == "" || f.RiskLevel == level
}

// ProfileSummary is the row shown in the clinician listing.
type ProfileSummary struct {
	ID             uuid.UUID  `json:"id"`
	FullName       string     `json:"full_name"`
	DocumentNumber string     `json:"document_number"`
	Age            int        `json:"age"`
	EDD            *time.Time `json:"edd,omitempty"`
	GestationWeeks int        `json:"gestation_weeks"`
	RiskLevel      RiskLevel  `json:"risk_level,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Summarize builds the listing row for a stored profile.
func Summarize(p *Profile, level RiskLevel) *ProfileSummary {
	s := &ProfileSummary{
		ID:             p.ID,
		FullName:       p.FullName(),
		DocumentNumber: p.DocumentNumber,
		Age:            p.Age,
		GestationWeeks: p.GestationWeeks,
		RiskLevel:      level,
		UpdatedAt:      p.UpdatedAt,
	}
	if p.EDD != nil {
		edd := *p.EDD
		s.EDD = &edd
	}
	return s
}
