package diagnosis

import (
	"context"
	"time"
)

type DiagnosisRepository interface {
	// Create inserts d and fills in ID and DiagnosisDate.
	Create(ctx context.Context, d *Diagnosis) error
	GetByID(ctx context.Context, id int64) (*Diagnosis, error)
	// GetByIDForUpdate locks the row; it must run inside a transaction.
	GetByIDForUpdate(ctx context.Context, id int64) (*Diagnosis, error)
	UpdateReview(ctx context.Context, id int64, notes string, status Status, reviewerID int64, at time.Time) error
	ListByPatient(ctx context.Context, patientID int64, limit, offset int) ([]*Diagnosis, int, error)
}
