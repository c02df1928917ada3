package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Appointment, int, error)
	// ListUpcoming returns confirmed appointments starting at or after from,
	// soonest first.
	ListUpcoming(ctx context.Context, from time.Time, limit, offset int) ([]*Appointment, int, error)
	List(ctx context.Context, limit, offset int) ([]*Appointment, int, error)
}
