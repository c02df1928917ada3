package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/woundcare/woundcare/internal/platform/genai/flows"
)

// Assistant runs the AI flows behind the patient actions.
type Assistant interface {
	AssessRisk(ctx context.Context, in flows.RiskInput) (*flows.RiskOutput, error)
	SummarizeProgress(ctx context.Context, in flows.SummaryInput) (*flows.SummaryOutput, error)
}

type Service struct {
	patients PatientRepository
	wounds   WoundRepository
	ai       Assistant
	logger   zerolog.Logger
}

func NewService(patients PatientRepository, wounds WoundRepository, ai Assistant, logger zerolog.Logger) *Service {
	return &Service{patients: patients, wounds: wounds, ai: ai, logger: logger}
}

func validatePatient(p *Patient) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if p.Age < 0 || p.Age > 150 {
		return fmt.Errorf("%w: age must be between 0 and 150", ErrInvalid)
	}
	if p.RiskLevel == "" {
		p.RiskLevel = RiskLow
	}
	if !p.RiskLevel.Valid() {
		return fmt.Errorf("%w: invalid risk level %q", ErrInvalid, p.RiskLevel)
	}
	return nil
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if err := validatePatient(p); err != nil {
		return err
	}
	if err := s.patients.Create(ctx, p); err != nil {
		return err
	}
	p.Wounds = []WoundEntry{}
	return nil
}

// GetPatient returns the patient with its wound entries, newest first.
func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Wounds, err = s.wounds.ListByPatient(ctx, id); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	if err := validatePatient(p); err != nil {
		return err
	}
	return s.patients.Update(ctx, p)
}

func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	return s.patients.Delete(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}

// AddWound records a wound observation and moves the patient's last visit
// forward to its date.
func (s *Service) AddWound(ctx context.Context, w *WoundEntry) error {
	if strings.TrimSpace(w.Notes) == "" {
		return fmt.Errorf("%w: notes are required", ErrInvalid)
	}
	if w.Date.IsZero() {
		w.Date = time.Now().UTC()
	}
	p, err := s.patients.GetByID(ctx, w.PatientID)
	if err != nil {
		return err
	}
	if err := s.wounds.Create(ctx, w); err != nil {
		return err
	}
	if p.LastVisit == nil || w.Date.After(*p.LastVisit) {
		p.LastVisit = &w.Date
		if err := s.patients.Update(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// AssessWound runs the risk assessment flow on a wound photo. The result is
// stored on the wound when both the patient and the wound exist; it is
// returned either way.
func (s *Service) AssessWound(ctx context.Context, patientID, woundID uuid.UUID, notes, photoDataURI string) (*flows.RiskOutput, error) {
	if strings.TrimSpace(notes) == "" || photoDataURI == "" {
		return nil, fmt.Errorf("%w: notes and photo are required for assessment", ErrActionInput)
	}
	out, err := s.ai.AssessRisk(ctx, flows.RiskInput{PhotoDataURI: photoDataURI, Notes: notes})
	if err != nil {
		return nil, err
	}
	err = s.wounds.SetAssessment(ctx, patientID, woundID, out)
	switch {
	case errors.Is(err, ErrWoundMissing), errors.Is(err, ErrNotFound):
		s.logger.Debug().Str("patient_id", patientID.String()).Str("wound_id", woundID.String()).
			Msg("assessment not stored, wound does not exist")
	case err != nil:
		return nil, err
	}
	return out, nil
}

// SummarizeProgress runs the progress summary flow over the given photos and
// stores the summary on the patient when it exists.
func (s *Service) SummarizeProgress(ctx context.Context, patientID uuid.UUID, images []string, notes string) (*flows.SummaryOutput, error) {
	if len(images) == 0 || strings.TrimSpace(notes) == "" {
		return nil, fmt.Errorf("%w: images and notes are required for summarization", ErrActionInput)
	}
	out, err := s.ai.SummarizeProgress(ctx, flows.SummaryInput{Images: images, Notes: notes})
	if err != nil {
		return nil, err
	}
	err = s.patients.SetProgressSummary(ctx, patientID, out.Summary)
	switch {
	case errors.Is(err, ErrNotFound):
		s.logger.Debug().Str("patient_id", patientID.String()).Msg("summary not stored, patient does not exist")
	case err != nil:
		return nil, err
	}
	return out, nil
}
