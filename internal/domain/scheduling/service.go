package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	appointments AppointmentRepository
	now          func() time.Time
}

func NewService(appt AppointmentRepository) *Service {
	return &Service{appointments: appt, now: time.Now}
}

func (s *Service) CreateAppointment(ctx context.Context, a *Appointment) error {
	if err := a.Validate(); err != nil {
		return err
	}
	return s.appointments.Create(ctx, a)
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

// UpdateAppointment replaces an appointment. A completed or canceled
// appointment can no longer be changed.
func (s *Service) UpdateAppointment(ctx context.Context, a *Appointment) error {
	if err := a.Validate(); err != nil {
		return err
	}
	cur, err := s.appointments.GetByID(ctx, a.ID)
	if err != nil {
		return err
	}
	if cur.Status != StatusConfirmed {
		return fmt.Errorf("%w: appointment is %s", ErrInvalid, cur.Status)
	}
	a.CreatedAt = cur.CreatedAt
	return s.appointments.Update(ctx, a)
}

// SetStatus moves a confirmed appointment to Completed or Canceled.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status Status) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !validStatuses[status] {
		return nil, fmt.Errorf("%w: invalid status %q", ErrInvalid, status)
	}
	if a.Status == status {
		return a, nil
	}
	if a.Status != StatusConfirmed {
		return nil, fmt.Errorf("%w: appointment is %s", ErrInvalid, a.Status)
	}
	a.Status = status
	if err := s.appointments.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	return s.appointments.Delete(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Appointment, int, error) {
	return s.appointments.ListByPatient(ctx, patientID, limit, offset)
}

// ListUpcoming returns confirmed appointments from now on.
func (s *Service) ListUpcoming(ctx context.Context, limit, offset int) ([]*Appointment, int, error) {
	return s.appointments.ListUpcoming(ctx, s.now().UTC(), limit, offset)
}

func (s *Service) ListAppointments(ctx context.Context, limit, offset int) ([]*Appointment, int, error) {
	return s.appointments.List(ctx, limit, offset)
}
