package patient

import (
	"context"

	"github.com/healthguard/healthguard/internal/platform/apperr"
	"github.com/healthguard/healthguard/internal/platform/auth"
	"github.com/healthguard/healthguard/internal/platform/db"
)

const notFoundMsg = "patient not found"

type Service struct {
	patients PatientRepository
	users    UserLookup
	tx       db.TxRunner
}

func NewService(patients PatientRepository, users UserLookup, tx db.TxRunner) *Service {
	return &Service{patients: patients, users: users, tx: tx}
}

// CreateOrUpdateSelfRecord creates the calling patient's own record, or
// overwrites its demographics when one exists.
func (s *Service) CreateOrUpdateSelfRecord(ctx context.Context, p auth.Principal, in PatientData) (*Patient, bool, error) {
	if !p.Is(auth.RolePatient) {
		return nil, false, apperr.Forbidden("only patients maintain their own record")
	}
	pat := &Patient{UserID: p.UserID}
	if err := in.apply(pat); err != nil {
		return nil, false, err
	}
	created, err := s.patients.UpsertByUserID(ctx, pat)
	if err != nil {
		return nil, false, err
	}
	return pat, created, nil
}

// AssignDoctor sets the patient's doctor. Self-assignment is rejected before
// anything else, whatever the caller's role.
func (s *Service) AssignDoctor(ctx context.Context, p auth.Principal, patientID, doctorID int64) (*Patient, error) {
	if err := auth.CheckAssignment(doctorID, p.UserID); err != nil {
		return nil, err
	}
	if err := auth.CheckRole(auth.OpAssignDoctor, p); err != nil {
		return nil, err
	}

	var pat *Patient
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		pat, err = s.patients.GetByIDForUpdate(ctx, patientID)
		if err != nil {
			return err
		}
		if err := auth.Authorize(auth.OpAssignDoctor, pat.Resource(), p).Err(notFoundMsg); err != nil {
			return err
		}
		if pat.AssignedTo(doctorID) {
			return nil
		}
		if err := s.requireDoctor(ctx, doctorID); err != nil {
			return err
		}
		if err := s.patients.SetDoctor(ctx, patientID, doctorID); err != nil {
			return err
		}
		pat.DoctorID = &doctorID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pat, nil
}

// CreatePatient registers a record for an existing Patient-role user. A
// doctor creating a record becomes its doctor.
func (s *Service) CreatePatient(ctx context.Context, p auth.Principal, in CreateInput) (*Patient, error) {
	if !p.Is(auth.RoleAdmin) && !p.Is(auth.RoleDoctor) {
		return nil, apperr.Forbidden("only doctors and admins create patient records")
	}
	if in.UserID <= 0 {
		return nil, apperr.Validation("user_id is required")
	}

	pat := &Patient{UserID: in.UserID}
	if err := in.apply(pat); err != nil {
		return nil, err
	}

	switch {
	case p.Is(auth.RoleDoctor):
		pat.DoctorID = &p.UserID
	case in.DoctorID != nil:
		if err := auth.CheckAssignment(*in.DoctorID, p.UserID); err != nil {
			return nil, err
		}
		if err := s.requireDoctor(ctx, *in.DoctorID); err != nil {
			return nil, err
		}
		pat.DoctorID = in.DoctorID
	}

	owner, err := s.users.GetByID(ctx, in.UserID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.Validation("user %d does not exist", in.UserID)
		}
		return nil, err
	}
	if owner.Role != auth.RolePatient {
		return nil, apperr.Validation("user %d is not a patient", in.UserID)
	}

	if err := s.patients.Create(ctx, pat); err != nil {
		return nil, err
	}
	return pat, nil
}

func (s *Service) GetPatient(ctx context.Context, p auth.Principal, id int64) (*Patient, error) {
	if err := auth.CheckRole(auth.OpReadPatient, p); err != nil {
		return nil, err
	}
	pat, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(auth.OpReadPatient, pat.Resource(), p).Err(notFoundMsg); err != nil {
		return nil, err
	}
	return pat, nil
}

// GetPatientByUserID returns the caller's own record.
func (s *Service) GetPatientByUserID(ctx context.Context, p auth.Principal) (*Patient, error) {
	return s.patients.GetByUserID(ctx, p.UserID)
}

// ListPatients returns every record to admins and the assigned ones to
// doctors.
func (s *Service) ListPatients(ctx context.Context, p auth.Principal, limit, offset int) ([]*Patient, int, error) {
	switch p.Role {
	case auth.RoleAdmin:
		return s.patients.List(ctx, limit, offset)
	case auth.RoleDoctor:
		return s.patients.ListByDoctor(ctx, p.UserID, limit, offset)
	}
	return nil, 0, apperr.Forbidden("patients cannot list records")
}

func (s *Service) UpdatePatient(ctx context.Context, p auth.Principal, id int64, in UpdateInput) (*Patient, error) {
	if err := auth.CheckRole(auth.OpUpdatePatient, p); err != nil {
		return nil, err
	}
	pat, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(auth.OpUpdatePatient, pat.Resource(), p).Err(notFoundMsg); err != nil {
		return nil, err
	}
	if err := in.apply(pat); err != nil {
		return nil, err
	}
	pat.VersionID = in.VersionID
	if err := s.patients.Update(ctx, pat); err != nil {
		return nil, err
	}
	return pat, nil
}

// DeletePatient removes the record and, through the foreign key, its
// diagnoses.
func (s *Service) DeletePatient(ctx context.Context, p auth.Principal, id int64) error {
	if err := auth.CheckRole(auth.OpDeletePatient, p); err != nil {
		return err
	}
	pat, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := auth.Authorize(auth.OpDeletePatient, pat.Resource(), p).Err(notFoundMsg); err != nil {
		return err
	}
	return s.patients.Delete(ctx, id)
}

func (s *Service) requireDoctor(ctx context.Context, doctorID int64) error {
	u, err := s.users.GetByID(ctx, doctorID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return apperr.Validation("doctor %d does not exist", doctorID)
		}
		return err
	}
	if u.Role != auth.RoleDoctor {
		return apperr.Validation("user %d is not a doctor", doctorID)
	}
	return nil
}
