package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/woundcare/woundcare/internal/domain/session"
	"github.com/woundcare/woundcare/internal/platform/docstore"
	"github.com/woundcare/woundcare/internal/platform/genai/flows"
)

// Collection ids of stored records.
const (
	CollectionUsers       = "users"
	CollectionAnamnesis   = "anamnesis"
	CollectionReports     = "reports"
	CollectionComparisons = "comparisons"
)

// TimeLayout is the fixed width timestamp format of createdAt fields. Fixed
// width keeps lexical and chronological order the same.
const TimeLayout = "2006-01-02T15:04:05.000Z"

var (
	ErrInvalidRecord = errors.New("invalid record")
	ErrNotFound      = errors.New("record not found")
)

var validate = validator.New()

// Kind tags the variant of a stored record.
type Kind string

const (
	KindRole       Kind = "role"
	KindAnamnesis  Kind = "anamnesis"
	KindReport     Kind = "report"
	KindComparison Kind = "comparison"
)

// KindOf returns the record kind stored at path, decided by the collection
// the document belongs to.
func KindOf(path string) (Kind, bool) {
	segs, err := docstore.Segments(path)
	if err != nil || len(segs)%2 != 0 {
		return "", false
	}
	switch {
	case len(segs) == 2 && segs[0] == CollectionUsers:
		return KindRole, true
	case len(segs) == 4 && segs[0] == CollectionUsers:
		switch segs[2] {
		case CollectionAnamnesis:
			return KindAnamnesis, true
		case CollectionReports:
			return KindReport, true
		case CollectionComparisons:
			return KindComparison, true
		}
	}
	return "", false
}

// RoleRecord is stored at users/{uid}.
type RoleRecord struct {
	Role session.Role `json:"role" validate:"required,oneof=professional patient"`
}

// AnamnesisRecord is an intake form stored at users/{uid}/anamnesis/{id}.
type AnamnesisRecord struct {
	PatientName    string `json:"patientName" validate:"required,min=2"`
	PatientID      string `json:"patientId,omitempty"`
	ProfessionalID string `json:"professionalId" validate:"required"`
	Complaint      string `json:"complaint" validate:"required,min=10"`
	History        string `json:"history" validate:"required,min=10"`
	Allergies      string `json:"allergies,omitempty"`
	Medications    string `json:"medications,omitempty"`
	CreatedAt      string `json:"createdAt"`
}

// Severity grades a wound report.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ReportRecord is a wound report stored at users/{uid}/reports/{id}.
type ReportRecord struct {
	PatientName    string   `json:"patientName" validate:"required,min=2"`
	PatientID      string   `json:"patientId" validate:"required"`
	ProfessionalID string   `json:"professionalId" validate:"required"`
	ReportContent  string   `json:"reportContent" validate:"required"`
	WoundType      string   `json:"woundType" validate:"required"`
	Severity       Severity `json:"severity" validate:"required,oneof=low medium high"`
	Progress       int      `json:"progress" validate:"min=0,max=100"`
	ImageDataURI   string   `json:"imageDataUri" validate:"required,datauri"`
	CreatedAt      string   `json:"createdAt"`
}

// ComparisonRecord is a persisted AI comparison of two reports, stored at
// users/{uid}/comparisons/{id}.
type ComparisonRecord struct {
	Report1ID      string              `json:"report1Id" validate:"required"`
	Report2ID      string              `json:"report2Id" validate:"required"`
	PatientID      string              `json:"patientId,omitempty"`
	PatientName    string              `json:"patientName,omitempty"`
	ProfessionalID string              `json:"professionalId" validate:"required"`
	Analysis       flows.CompareOutput `json:"analysis"`
	CreatedAt      string              `json:"createdAt"`
}

// Stats are the dashboard counters of a professional.
type Stats struct {
	Patients    int `json:"patients"`
	Anamnesis   int `json:"anamnesis"`
	Reports     int `json:"reports"`
	Comparisons int `json:"comparisons"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// toDocument converts a record into a document payload.
func toDocument(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return out, nil
}

// decode converts a document into a record and validates it.
func decode[T any](s *docstore.Snapshot) (T, error) {
	var v T
	b, err := json.Marshal(s.Data)
	if err != nil {
		return v, fmt.Errorf("%w: %s: %v", ErrInvalidRecord, s.Path, err)
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("%w: %s: %v", ErrInvalidRecord, s.Path, err)
	}
	if err := validate.Struct(v); err != nil {
		return v, fmt.Errorf("%w: %s: %v", ErrInvalidRecord, s.Path, err)
	}
	return v, nil
}

// DecodeRole decodes a role record.
func DecodeRole(s *docstore.Snapshot) (RoleRecord, error) { return decode[RoleRecord](s) }

// DecodeAnamnesis decodes an anamnesis record.
func DecodeAnamnesis(s *docstore.Snapshot) (AnamnesisRecord, error) {
	return decode[AnamnesisRecord](s)
}

// DecodeReport decodes a wound report.
func DecodeReport(s *docstore.Snapshot) (ReportRecord, error) { return decode[ReportRecord](s) }

// DecodeComparison decodes a comparison record.
func DecodeComparison(s *docstore.Snapshot) (ComparisonRecord, error) {
	return decode[ComparisonRecord](s)
}

// Decode decodes any record by the kind of its path.
func Decode(s *docstore.Snapshot) (any, error) {
	kind, ok := KindOf(s.Path)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a record path", ErrInvalidRecord, s.Path)
	}
	switch kind {
	case KindRole:
		return DecodeRole(s)
	case KindAnamnesis:
		return DecodeAnamnesis(s)
	case KindReport:
		return DecodeReport(s)
	default:
		return DecodeComparison(s)
	}
}
