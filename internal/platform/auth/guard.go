package auth

import (
	"fmt"

	"github.com/healthguard/healthguard/internal/platform/apperr"
)

// Operation names an action on a patient-owned record.
type Operation string

const (
	OpReadPatient     Operation = "patient.read"
	OpUpdatePatient   Operation = "patient.update"
	OpDeletePatient   Operation = "patient.delete"
	OpAssignDoctor    Operation = "patient.assign_doctor"
	OpCreateDiagnosis Operation = "diagnosis.create"
	OpReadDiagnosis   Operation = "diagnosis.read"
	OpReviewDiagnosis Operation = "diagnosis.review"
)

// operationRoles lists which roles may attempt each operation at all.
var operationRoles = map[Operation][]Role{
	OpReadPatient:     {RolePatient, RoleDoctor, RoleAdmin},
	OpUpdatePatient:   {RoleDoctor, RoleAdmin},
	OpDeletePatient:   {RoleDoctor, RoleAdmin},
	OpAssignDoctor:    {RoleDoctor, RoleAdmin},
	OpCreateDiagnosis: {RolePatient, RoleDoctor, RoleAdmin},
	OpReadDiagnosis:   {RolePatient, RoleDoctor, RoleAdmin},
	OpReviewDiagnosis: {RoleDoctor},
}

// Resource is the ownership view of a patient record.
type Resource struct {
	PatientUserID   int64
	PatientDoctorID *int64
}

// Denial distinguishes why a decision was negative.
type Denial int

const (
	DenyNone Denial = iota
	// DenyRole means the caller's role can never perform the operation.
	DenyRole
	// DenyOwnership means the record belongs to someone else.
	DenyOwnership
)

type Decision struct {
	Allowed bool
	Reason  string
	Denial  Denial
}

// Err converts a negative decision to an error. Ownership denials are
// reported as not found so callers cannot probe for other patients' records.
func (d Decision) Err(notFoundMsg string) error {
	switch {
	case d.Allowed:
		return nil
	case d.Denial == DenyRole:
		return apperr.Forbidden(d.Reason)
	default:
		return apperr.NotFound(notFoundMsg)
	}
}

// Authorize decides whether p may perform op on res. It is pure and is the
// only place ownership rules live.
func Authorize(op Operation, res Resource, p Principal) Decision {
	roles, known := operationRoles[op]
	if !known {
		return Decision{Reason: fmt.Sprintf("unknown operation %q", op), Denial: DenyRole}
	}
	if !hasRole(roles, p.Role) {
		return Decision{Reason: fmt.Sprintf("role %q may not perform %s", p.Role, op), Denial: DenyRole}
	}

	switch p.Role {
	case RoleAdmin:
		return Decision{Allowed: true, Reason: "admin"}
	case RoleDoctor:
		if res.PatientDoctorID != nil && *res.PatientDoctorID == p.UserID {
			return Decision{Allowed: true, Reason: "assigned doctor"}
		}
	case RolePatient:
		if res.PatientUserID == p.UserID {
			return Decision{Allowed: true, Reason: "record owner"}
		}
	}
	return Decision{Reason: "not the owner or assigned doctor", Denial: DenyOwnership}
}

// CheckRole runs only the role half of Authorize, before any record is
// loaded, so callers whose role can never perform op learn nothing about
// which records exist.
func CheckRole(op Operation, p Principal) error {
	roles, known := operationRoles[op]
	if !known || !hasRole(roles, p.Role) {
		return apperr.Forbidden(fmt.Sprintf("role %q may not perform %s", p.Role, op))
	}
	return nil
}

// CheckAssignment rejects a user assigning a patient to themself, whatever
// their role.
func CheckAssignment(doctorID, actingUserID int64) error {
	if doctorID == actingUserID {
		return apperr.InvalidOperation("cannot assign a patient to yourself")
	}
	return nil
}

func hasRole(roles []Role, r Role) bool {
	for _, have := range roles {
		if have == r {
			return true
		}
	}
	return false
}
