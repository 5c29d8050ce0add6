package obstetrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// PostgresStore keeps one patient_profile row per patient: the profile
// document as JSONB plus the risk level and authentication companions.
type PostgresStore struct {
	db queryable
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: pool}
}

func (r *PostgresStore) Load(ctx context.Context, id uuid.UUID) (*Profile, error) {
	var doc []byte
	err := r.db.QueryRow(ctx,
		`SELECT document FROM patient_profile WHERE id = $1 AND document IS NOT NULL`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", id, err)
	}
	var p Profile
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", id, err)
	}
	return &p, nil
}

func (r *PostgresStore) Save(ctx context.Context, p *Profile) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile %s: %w", p.ID, err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO patient_profile (id, document, gestation_weeks, created_at, updated_at)
		VALUES ($1, $2::jsonb, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document,
			gestation_weeks = EXCLUDED.gestation_weeks, updated_at = EXCLUDED.updated_at`,
		p.ID, string(doc), p.GestationWeeks, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save profile %s: %w", p.ID, err)
	}
	return nil
}

func (r *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM patient_profile WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete profile %s: %w", id, err)
	}
	return nil
}

func (r *PostgresStore) List(ctx context.Context, filter ProfileFilter, limit, offset int) ([]*ProfileSummary, int, error) {
	var level *string
	if filter.RiskLevel != "" {
		s := string(filter.RiskLevel)
		level = &s
	}

	var total int
	if err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM patient_profile
		WHERE document IS NOT NULL AND ($1::text IS NULL OR risk_level = $1)`, level).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count profiles: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT document, COALESCE(risk_level, '') FROM patient_profile
		WHERE document IS NOT NULL AND ($1::text IS NULL OR risk_level = $1)
		ORDER BY updated_at DESC, id
		LIMIT $2 OFFSET $3`, level, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	items := []*ProfileSummary{}
	for rows.Next() {
		var doc []byte
		var risk string
		if err := rows.Scan(&doc, &risk); err != nil {
			return nil, 0, err
		}
		var p Profile
		if err := json.Unmarshal(doc, &p); err != nil {
			return nil, 0, fmt.Errorf("decode profile: %w", err)
		}
		items = append(items, Summarize(&p, RiskLevel(risk)))
	}
	return items, total, rows.Err()
}

func (r *PostgresStore) SaveRiskLevel(ctx context.Context, id uuid.UUID, level RiskLevel) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO patient_profile (id, risk_level) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET risk_level = EXCLUDED.risk_level`, id, string(level))
	if err != nil {
		return fmt.Errorf("save risk level %s: %w", id, err)
	}
	return nil
}

func (r *PostgresStore) LoadRiskLevel(ctx context.Context, id uuid.UUID) (RiskLevel, error) {
	var level *string
	err := r.db.QueryRow(ctx, `SELECT risk_level FROM patient_profile WHERE id = $1`, id).Scan(&level)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && level == nil) {
		return "", ErrProfileNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load risk level %s: %w", id, err)
	}
	return RiskLevel(*level), nil
}

func (r *PostgresStore) SetAuthenticated(ctx context.Context, id uuid.UUID, authenticated bool) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO patient_profile (id, authenticated) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET authenticated = EXCLUDED.authenticated`, id, authenticated)
	if err != nil {
		return fmt.Errorf("save auth flag %s: %w", id, err)
	}
	return nil
}

func (r *PostgresStore) IsAuthenticated(ctx context.Context, id uuid.UUID) (bool, error) {
	var authenticated bool
	err := r.db.QueryRow(ctx, `SELECT authenticated FROM patient_profile WHERE id = $1`, id).Scan(&authenticated)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load auth flag %s: %w", id, err)
	}
	return authenticated, nil
}
