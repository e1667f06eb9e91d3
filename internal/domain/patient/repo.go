package patient

import (
	"context"

	"github.com/healthguard/healthguard/internal/domain/account"
)

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	// UpsertByUserID inserts the caller's record or overwrites its
	// demographics in one statement. It reports whether a row was created.
	UpsertByUserID(ctx context.Context, p *Patient) (created bool, err error)
	GetByID(ctx context.Context, id int64) (*Patient, error)
	// GetByIDForUpdate locks the row; it must run inside a transaction.
	GetByIDForUpdate(ctx context.Context, id int64) (*Patient, error)
	GetByUserID(ctx context.Context, userID int64) (*Patient, error)
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	ListByDoctor(ctx context.Context, doctorID int64, limit, offset int) ([]*Patient, int, error)
	Update(ctx context.Context, p *Patient) error
	SetDoctor(ctx context.Context, id, doctorID int64) error
	Delete(ctx context.Context, id int64) error
}

// UserLookup is the read-only view of accounts the registry needs.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*account.User, error)
}
