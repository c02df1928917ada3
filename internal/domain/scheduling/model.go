package scheduling

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("appointment not found")
	ErrInvalid  = errors.New("invalid appointment")
)

// Status of an appointment.
type Status string

const (
	StatusConfirmed Status = "Confirmed"
	StatusCompleted Status = "Completed"
	StatusCanceled  Status = "Canceled"
)

var validStatuses = map[Status]bool{
	StatusConfirmed: true, StatusCompleted: true, StatusCanceled: true,
}

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Appointment maps to the appointments table.
type Appointment struct {
	ID          uuid.UUID `db:"id" json:"id"`
	PatientID   string    `db:"patient_id" json:"patientId"`
	PatientName string    `db:"patient_name" json:"patientName"`
	Doctor      string    `db:"doctor" json:"doctor"`
	Date        string    `db:"appt_date" json:"date"`
	Time        string    `db:"appt_time" json:"time"`
	Status      Status    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// StartsAt combines Date and Time in loc.
func (a *Appointment) StartsAt(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout+" "+TimeLayout, a.Date+" "+a.Time, loc)
}

// Validate checks required fields and formats, defaulting the status to
// Confirmed.
func (a *Appointment) Validate() error {
	a.PatientName = strings.TrimSpace(a.PatientName)
	a.Doctor = strings.TrimSpace(a.Doctor)
	switch {
	case a.PatientID == "":
		return fmt.Errorf("%w: patientId is required", ErrInvalid)
	case a.PatientName == "":
		return fmt.Errorf("%w: patientName is required", ErrInvalid)
	case a.Doctor == "":
		return fmt.Errorf("%w: doctor is required", ErrInvalid)
	}
	if _, err := a.StartsAt(time.UTC); err != nil {
		return fmt.Errorf("%w: date must be YYYY-MM-DD and time HH:MM", ErrInvalid)
	}
	if a.Status == "" {
		a.Status = StatusConfirmed
	}
	if !validStatuses[a.Status] {
		return fmt.Errorf("%w: invalid status %q", ErrInvalid, a.Status)
	}
	return nil
}
