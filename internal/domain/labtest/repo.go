package labtest

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, t *Test) error
	GetByID(ctx context.Context, id uuid.UUID) (*Test, error)
	GetByCode(ctx context.Context, code string) (*Test, error)
	// GetForUpdate locks the test row for the remainder of the current
	// transaction. Callers must run inside a transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Test, error)
	Update(ctx context.Context, t *Test) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Test, int, error)
}

type ListFilter struct {
	Status      Status
	Category    string
	PatientID   uuid.UUID
	RequestedBy uuid.UUID
}
