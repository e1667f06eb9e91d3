package diagnosis

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthguard/healthguard/internal/platform/apperr"
	"github.com/healthguard/healthguard/internal/platform/db"
)

type diagnosisRepoPG struct {
	pool *pgxpool.Pool
}

func NewDiagnosisRepo(pool *pgxpool.Pool) DiagnosisRepository {
	return &diagnosisRepoPG{pool: pool}
}

func (r *diagnosisRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const diagnosisCols = `id, patient_id, diagnosis_date, label, confidence, features, model_type,
	source, doctor_notes, status, reviewed_by, reviewed_at`

func (r *diagnosisRepoPG) Create(ctx context.Context, d *Diagnosis) error {
	features := d.Features
	if features == nil {
		features = map[string]float64{}
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO diagnoses (patient_id, label, confidence, features, model_type, source, doctor_notes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, diagnosis_date`,
		d.PatientID, d.Label, d.Confidence, features, d.ModelType, string(d.Source), d.DoctorNotes, string(d.Status),
	).Scan(&d.ID, &d.DiagnosisDate)
	if err != nil {
		return translate(err, "diagnosis create")
	}
	d.Features = features
	return nil
}

func (r *diagnosisRepoPG) GetByID(ctx context.Context, id int64) (*Diagnosis, error) {
	d, err := scanDiagnosis(r.conn(ctx).QueryRow(ctx, `SELECT `+diagnosisCols+` FROM diagnoses WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "diagnosis get by id")
	}
	return d, nil
}

func (r *diagnosisRepoPG) GetByIDForUpdate(ctx context.Context, id int64) (*Diagnosis, error) {
	d, err := scanDiagnosis(r.conn(ctx).QueryRow(ctx, `SELECT `+diagnosisCols+` FROM diagnoses WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, translate(err, "diagnosis get for update")
	}
	return d, nil
}

// UpdateReview writes only the review columns.
func (r *diagnosisRepoPG) UpdateReview(ctx context.Context, id int64, notes string, status Status, reviewerID int64, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE diagnoses SET doctor_notes = $2, status = $3, reviewed_by = $4, reviewed_at = $5
		WHERE id = $1`, id, notes, string(status), reviewerID, at)
	if err != nil {
		return translate(err, "diagnosis update review")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("diagnosis not found")
	}
	return nil
}

func (r *diagnosisRepoPG) ListByPatient(ctx context.Context, patientID int64, limit, offset int) ([]*Diagnosis, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM diagnoses WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("diagnosis count: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+diagnosisCols+` FROM diagnoses
		WHERE patient_id = $1 ORDER BY diagnosis_date DESC, id DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("diagnosis list: %w", err)
	}
	defer rows.Close()

	var out []*Diagnosis
	for rows.Next() {
		d, err := scanDiagnosis(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("diagnosis scan: %w", err)
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

func translate(err error, op string) error {
	switch {
	case db.IsNoRows(err):
		return apperr.NotFound("diagnosis not found")
	case db.IsForeignKeyViolation(err):
		return apperr.NotFound("patient not found")
	case db.IsCheckViolation(err):
		return apperr.Wrap(apperr.KindPredictionUnavailable, "prediction result rejected", err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func scanDiagnosis(row pgx.Row) (*Diagnosis, error) {
	var (
		d      Diagnosis
		source string
		status string
	)
	err := row.Scan(
		&d.ID, &d.PatientID, &d.DiagnosisDate, &d.Label, &d.Confidence, &d.Features, &d.ModelType,
		&source, &d.DoctorNotes, &status, &d.ReviewedBy, &d.ReviewedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Source = Source(source)
	d.Status = Status(status)
	return &d, nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
