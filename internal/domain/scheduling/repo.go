package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AppointmentFilter narrows Search. Zero values are ignored.
type AppointmentFilter struct {
	PatientID uuid.UUID
	DentistID uuid.UUID
	Status    string
	From      time.Time
	To        time.Time
}

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, completedAt *time.Time) error
	Search(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error)
}

type RecallRepository interface {
	Create(ctx context.Context, r *Recall) error
	GetByID(ctx context.Context, id uuid.UUID) (*Recall, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Recall, int, error)
	ListDue(ctx context.Context, before time.Time, limit, offset int) ([]*Recall, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}
