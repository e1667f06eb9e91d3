package patient

import (
	"net/mail"
	"strings"
	"time"

	"github.com/healthguard/healthguard/internal/platform/apperr"
	"github.com/healthguard/healthguard/internal/platform/auth"
)

const dateLayout = "2006-01-02"

// Patient maps to the patients table.
type Patient struct {
	ID             int64     `db:"id" json:"id"`
	UserID         int64     `db:"user_id" json:"user_id"`
	DoctorID       *int64    `db:"doctor_id" json:"doctor_id,omitempty"`
	Name           string    `db:"name" json:"name"`
	DateOfBirth    time.Time `db:"date_of_birth" json:"date_of_birth"`
	Gender         string    `db:"gender" json:"gender"`
	ContactNumber  string    `db:"contact_number" json:"contact_number"`
	Email          string    `db:"email" json:"email"`
	MedicalHistory string    `db:"medical_history" json:"medical_history"`
	VersionID      int       `db:"version_id" json:"version_id"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Resource is the ownership view the access guard evaluates.
func (p *Patient) Resource() auth.Resource {
	return auth.Resource{PatientUserID: p.UserID, PatientDoctorID: p.DoctorID}
}

// AssignedTo reports whether doctorID is the patient's current doctor.
func (p *Patient) AssignedTo(doctorID int64) bool {
	return p.DoctorID != nil && *p.DoctorID == doctorID
}

// PatientData holds the demographic fields a caller may write.
type PatientData struct {
	Name           string `json:"name"`
	DateOfBirth    string `json:"date_of_birth"`
	Gender         string `json:"gender"`
	ContactNumber  string `json:"contact_number"`
	Email          string `json:"email"`
	MedicalHistory string `json:"medical_history"`
}

// apply validates d and copies it onto p. Ids, ownership and doctor are
// never touched.
func (d PatientData) apply(p *Patient) error {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return apperr.Validation("name is required")
	}
	dob, err := time.Parse(dateLayout, strings.TrimSpace(d.DateOfBirth))
	if err != nil {
		return apperr.Validation("date_of_birth must be formatted as YYYY-MM-DD")
	}
	if dob.After(time.Now()) {
		return apperr.Validation("date_of_birth cannot be in the future")
	}
	gender := strings.TrimSpace(d.Gender)
	if gender == "" {
		return apperr.Validation("gender is required")
	}
	contact := strings.TrimSpace(d.ContactNumber)
	if contact == "" {
		return apperr.Validation("contact_number is required")
	}
	email := strings.ToLower(strings.TrimSpace(d.Email))
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return apperr.Validation("email must be a valid address")
	}

	p.Name = name
	p.DateOfBirth = dob
	p.Gender = gender
	p.ContactNumber = contact
	p.Email = email
	p.MedicalHistory = strings.TrimSpace(d.MedicalHistory)
	return nil
}

// CreateInput is the body of POST /patients. DoctorID is honoured for
// admins only; a doctor creating a patient becomes its doctor.
type CreateInput struct {
	UserID   int64  `json:"user_id"`
	DoctorID *int64 `json:"doctor_id"`
	PatientData
}

// UpdateInput is the body of PUT /patients/:id. A non-zero VersionID must
// match the stored version.
type UpdateInput struct {
	VersionID int `json:"version_id"`
	PatientData
}

type AssignDoctorInput struct {
	DoctorID int64 `json:"doctor_id"`
}
