package diagnosis

import (
	"net/mail"
	"strings"
	"time"

	"github.com/healthguard/healthguard/internal/platform/apperr"
)

type Status string

const (
	StatusPending        Status = "Pending"
	StatusCompleted      Status = "Completed"
	StatusRequiresReview Status = "RequiresReview"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusRequiresReview:
		return true
	}
	return false
}

// Source records which input mode produced a diagnosis.
type Source string

const (
	SourceFeatures Source = "features"
	SourceImage    Source = "image"
)

// Diagnosis maps to the diagnoses table. Label, Confidence, Features,
// ModelType and Source are fixed at creation.
type Diagnosis struct {
	ID            int64              `db:"id" json:"id"`
	PatientID     int64              `db:"patient_id" json:"patient_id"`
	DiagnosisDate time.Time          `db:"diagnosis_date" json:"diagnosis_date"`
	Label         string             `db:"label" json:"diagnose"`
	Confidence    float64            `db:"confidence" json:"confidence"`
	Features      map[string]float64 `db:"features" json:"features"`
	ModelType     *string            `db:"model_type" json:"model_type,omitempty"`
	Source        Source             `db:"source" json:"source"`
	DoctorNotes   string             `db:"doctor_notes" json:"doctor_notes"`
	Status        Status             `db:"status" json:"status"`
	ReviewedBy    *int64             `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time         `db:"reviewed_at" json:"reviewed_at,omitempty"`
}

// CreateInput carries exactly one of Features (with ModelType) or Image.
type CreateInput struct {
	PatientID   int64              `json:"patient_id"`
	Features    map[string]float64 `json:"features"`
	ModelType   string             `json:"model_type"`
	DoctorEmail string             `json:"doctor_email"`
	Image       []byte             `json:"-"`
}

func (in CreateInput) source() (Source, error) {
	hasFeatures := len(in.Features) > 0
	hasImage := len(in.Image) > 0
	switch {
	case hasFeatures && hasImage:
		return "", apperr.Validation("provide either features or an image, not both")
	case hasFeatures:
		if in.ModelType == "" {
			return "", apperr.Validation("model_type is required with features")
		}
		return SourceFeatures, nil
	case hasImage:
		return SourceImage, nil
	}
	return "", apperr.Validation("features or an image is required")
}

// doctorEmail returns the normalized alert recipient override, or "" when
// none was given.
func (in CreateInput) doctorEmail() (string, error) {
	email := strings.ToLower(strings.TrimSpace(in.DoctorEmail))
	if email == "" {
		return "", nil
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return "", apperr.Validation("doctor_email must be a valid address")
	}
	return email, nil
}

type ReviewInput struct {
	DoctorNotes string `json:"doctor_notes"`
	Status      Status `json:"status"`
}
