package patient

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthguard/healthguard/internal/platform/apperr"
	"github.com/healthguard/healthguard/internal/platform/db"
)

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewPatientRepo(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const patientCols = `id, user_id, doctor_id, name, date_of_birth, gender, contact_number,
	email, medical_history, version_id, created_at, updated_at`

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (user_id, doctor_id, name, date_of_birth, gender, contact_number, email, medical_history)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, version_id, created_at, updated_at`,
		p.UserID, p.DoctorID, p.Name, p.DateOfBirth, p.Gender, p.ContactNumber, p.Email, p.MedicalHistory,
	).Scan(&p.ID, &p.VersionID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return translate(err, "patient create")
	}
	return nil
}

// UpsertByUserID relies on the patients_user_id_key constraint; concurrent
// calls for one user serialize on it and the last writer's demographics win.
func (r *patientRepoPG) UpsertByUserID(ctx context.Context, p *Patient) (bool, error) {
	var created bool
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (user_id, name, date_of_birth, gender, contact_number, email, medical_history)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			name = EXCLUDED.name,
			date_of_birth = EXCLUDED.date_of_birth,
			gender = EXCLUDED.gender,
			contact_number = EXCLUDED.contact_number,
			email = EXCLUDED.email,
			medical_history = EXCLUDED.medical_history,
			version_id = patients.version_id + 1,
			updated_at = NOW()
		RETURNING `+patientCols+`, (xmax = 0)`,
		p.UserID, p.Name, p.DateOfBirth, p.Gender, p.ContactNumber, p.Email, p.MedicalHistory,
	).Scan(
		&p.ID, &p.UserID, &p.DoctorID, &p.Name, &p.DateOfBirth, &p.Gender, &p.ContactNumber,
		&p.Email, &p.MedicalHistory, &p.VersionID, &p.CreatedAt, &p.UpdatedAt, &created,
	)
	if err != nil {
		return false, translate(err, "patient upsert")
	}
	return created, nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id int64) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "patient get by id")
	}
	return p, nil
}

func (r *patientRepoPG) GetByIDForUpdate(ctx context.Context, id int64) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, translate(err, "patient get for update")
	}
	return p, nil
}

func (r *patientRepoPG) GetByUserID(ctx context.Context, userID int64) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE user_id = $1`, userID))
	if err != nil {
		return nil, translate(err, "patient get by user id")
	}
	return p, nil
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("patient count: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patients ORDER BY name, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("patient list: %w", err)
	}
	patients, err := collectPatients(rows)
	return patients, total, err
}

func (r *patientRepoPG) ListByDoctor(ctx context.Context, doctorID int64, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients WHERE doctor_id = $1`, doctorID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("patient count by doctor: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patients WHERE doctor_id = $1 ORDER BY name, id LIMIT $2 OFFSET $3`,
		doctorID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("patient list by doctor: %w", err)
	}
	patients, err := collectPatients(rows)
	return patients, total, err
}

// Update writes demographics. A non-zero VersionID must match the stored
// row, otherwise the update is rejected as a conflict.
func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patients SET
			name = $2, date_of_birth = $3, gender = $4, contact_number = $5, email = $6,
			medical_history = $7, version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1 AND ($8 = 0 OR version_id = $8)
		RETURNING version_id, updated_at`,
		p.ID, p.Name, p.DateOfBirth, p.Gender, p.ContactNumber, p.Email, p.MedicalHistory, p.VersionID,
	).Scan(&p.VersionID, &p.UpdatedAt)
	if err == nil {
		return nil
	}
	if !db.IsNoRows(err) {
		return fmt.Errorf("patient update: %w", err)
	}

	var exists bool
	if err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM patients WHERE id = $1)`, p.ID).Scan(&exists); err != nil {
		return fmt.Errorf("patient update: %w", err)
	}
	if exists {
		return apperr.Conflict("patient was modified by another request; reload and retry")
	}
	return apperr.NotFound("patient not found")
}

func (r *patientRepoPG) SetDoctor(ctx context.Context, id, doctorID int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET doctor_id = $2, version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1`, id, doctorID)
	if err != nil {
		return translate(err, "patient set doctor")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient not found")
	}
	return nil
}

// Delete removes the patient; diagnoses cascade.
func (r *patientRepoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("patient delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient not found")
	}
	return nil
}

func translate(err error, op string) error {
	switch {
	case db.IsNoRows(err):
		return apperr.NotFound("patient not found")
	case db.IsUniqueViolation(err) && db.ConstraintName(err) == "patients_user_id_key":
		return apperr.Conflict("user already has a patient record")
	case db.IsForeignKeyViolation(err):
		return apperr.Validation("referenced user does not exist")
	}
	return fmt.Errorf("%s: %w", op, err)
}

func collectPatients(rows pgx.Rows) ([]*Patient, error) {
	defer rows.Close()
	var patients []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		patients = append(patients, p)
	}
	return patients, rows.Err()
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID, &p.UserID, &p.DoctorID, &p.Name, &p.DateOfBirth, &p.Gender, &p.ContactNumber,
		&p.Email, &p.MedicalHistory, &p.VersionID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
