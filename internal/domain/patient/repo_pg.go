package patient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/woundcare/woundcare/internal/platform/db"
	"github.com/woundcare/woundcare/internal/platform/genai/flows"
)

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	if q := db.QuerierFromContext(ctx); q != nil {
		return q
	}
	return r.pool
}

const patientCols = `id, name, age, avatar_url, avatar_hint, last_visit, risk_level, progress_summary, created_at, updated_at`

func (r *patientRepoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Age, &p.AvatarURL, &p.AvatarHint, &p.LastVisit,
		&p.RiskLevel, &p.ProgressSummary, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("patient scan: %w", err)
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patients (id, name, age, avatar_url, avatar_hint, last_visit, risk_level, progress_summary, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.Name, p.Age, p.AvatarURL, p.AvatarHint, p.LastVisit, p.RiskLevel, p.ProgressSummary, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("patient create: %w", err)
	}
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	p.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET name = $2, age = $3, avatar_url = $4, avatar_hint = $5,
			last_visit = $6, risk_level = $7, updated_at = $8
		WHERE id = $1`,
		p.ID, p.Name, p.Age, p.AvatarURL, p.AvatarHint, p.LastVisit, p.RiskLevel, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("patient update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("patient delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("patient count: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patients ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("patient list: %w", err)
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *patientRepoPG) SetProgressSummary(ctx context.Context, id uuid.UUID, summary string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE patients SET progress_summary = $2, updated_at = now() WHERE id = $1`, id, summary)
	if err != nil {
		return fmt.Errorf("patient summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// =========== Wound Repository ===========

type woundRepoPG struct{ pool *pgxpool.Pool }

func NewWoundRepoPG(pool *pgxpool.Pool) WoundRepository {
	return &woundRepoPG{pool: pool}
}

func (r *woundRepoPG) conn(ctx context.Context) db.Querier {
	if q := db.QuerierFromContext(ctx); q != nil {
		return q
	}
	return r.pool
}

const woundCols = `id, patient_id, entry_date, notes, image_url, image_hint, ai_assessment, created_at`

func (r *woundRepoPG) scanWound(row pgx.Row) (*WoundEntry, error) {
	var w WoundEntry
	var assessment []byte
	err := row.Scan(&w.ID, &w.PatientID, &w.Date, &w.Notes, &w.ImageURL, &w.ImageHint, &assessment, &w.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrWoundMissing
	}
	if err != nil {
		return nil, fmt.Errorf("wound scan: %w", err)
	}
	if len(assessment) > 0 {
		w.AIAssessment = &flows.RiskOutput{}
		if err := json.Unmarshal(assessment, w.AIAssessment); err != nil {
			return nil, fmt.Errorf("wound assessment: %w", err)
		}
	}
	return &w, nil
}

func (r *woundRepoPG) Create(ctx context.Context, w *WoundEntry) error {
	w.ID = uuid.New()
	w.CreatedAt = time.Now().UTC()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO wounds (id, patient_id, entry_date, notes, image_url, image_hint, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		w.ID, w.PatientID, w.Date, w.Notes, w.ImageURL, w.ImageHint, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("wound create: %w", err)
	}
	return nil
}

func (r *woundRepoPG) GetByID(ctx context.Context, patientID, woundID uuid.UUID) (*WoundEntry, error) {
	return r.scanWound(r.conn(ctx).QueryRow(ctx,
		`SELECT `+woundCols+` FROM wounds WHERE patient_id = $1 AND id = $2`, patientID, woundID))
}

func (r *woundRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]WoundEntry, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+woundCols+` FROM wounds WHERE patient_id = $1 ORDER BY entry_date DESC`, patientID)
	if err != nil {
		return nil, fmt.Errorf("wound list: %w", err)
	}
	defer rows.Close()
	items := []WoundEntry{}
	for rows.Next() {
		w, err := r.scanWound(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *w)
	}
	return items, rows.Err()
}

func (r *woundRepoPG) SetAssessment(ctx context.Context, patientID, woundID uuid.UUID, a *flows.RiskOutput) error {
	b, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("wound assessment: %w", err)
	}
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE wounds SET ai_assessment = $3 WHERE patient_id = $1 AND id = $2`, patientID, woundID, b)
	if err != nil {
		return fmt.Errorf("wound assessment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWoundMissing
	}
	return nil
}
