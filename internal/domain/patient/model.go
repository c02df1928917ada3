package patient

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/woundcare/woundcare/internal/platform/genai/flows"
)

var (
	ErrNotFound     = errors.New("patient not found")
	ErrWoundMissing = errors.New("wound not found")
	ErrInvalid      = errors.New("invalid patient")
	// ErrActionInput is returned when an AI action is called without the
	// inputs it needs.
	ErrActionInput = errors.New("missing action input")
)

// RiskLevel is the clinical risk grade shown on the patient list.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// Patient maps to the patients table.
type Patient struct {
	ID              uuid.UUID    `db:"id" json:"id"`
	Name            string       `db:"name" json:"name"`
	Age             int          `db:"age" json:"age"`
	AvatarURL       string       `db:"avatar_url" json:"avatarUrl"`
	AvatarHint      string       `db:"avatar_hint" json:"avatarHint,omitempty"`
	LastVisit       *time.Time   `db:"last_visit" json:"lastVisit,omitempty"`
	RiskLevel       RiskLevel    `db:"risk_level" json:"riskLevel"`
	ProgressSummary *string      `db:"progress_summary" json:"progressSummary,omitempty"`
	Wounds          []WoundEntry `db:"-" json:"wounds"`
	CreatedAt       time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updatedAt"`
}

// WoundEntry is one dated wound observation of a patient.
type WoundEntry struct {
	ID           uuid.UUID         `db:"id" json:"id"`
	PatientID    uuid.UUID         `db:"patient_id" json:"patientId"`
	Date         time.Time         `db:"entry_date" json:"date"`
	Notes        string            `db:"notes" json:"notes"`
	ImageURL     string            `db:"image_url" json:"imageUrl"`
	ImageHint    string            `db:"image_hint" json:"imageHint,omitempty"`
	AIAssessment *flows.RiskOutput `db:"ai_assessment" json:"aiAssessment,omitempty"`
	CreatedAt    time.Time         `db:"created_at" json:"createdAt"`
}
