package identity

import (
	"context"

	"github.com/google/uuid"
)

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	// Search matches params["name"] against first/last name and
	// params["email"] against email, both case-insensitive substrings.
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Patient, int, error)
}

type DentistRepository interface {
	Create(ctx context.Context, d *Dentist) error
	GetByID(ctx context.Context, id uuid.UUID) (*Dentist, error)
	GetByUserID(ctx context.Context, userID string) (*Dentist, error)
	SetUserID(ctx context.Context, id uuid.UUID, userID *string) error
	List(ctx context.Context, limit, offset int) ([]*Dentist, int, error)
}
