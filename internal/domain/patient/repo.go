package patient

import (
	"context"

	"github.com/google/uuid"

	"github.com/woundcare/woundcare/internal/platform/genai/flows"
)

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	SetProgressSummary(ctx context.Context, id uuid.UUID, summary string) error
}

type WoundRepository interface {
	Create(ctx context.Context, w *WoundEntry) error
	GetByID(ctx context.Context, patientID, woundID uuid.UUID) (*WoundEntry, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]WoundEntry, error)
	SetAssessment(ctx context.Context, patientID, woundID uuid.UUID, a *flows.RiskOutput) error
}
