package clinical

import (
	"context"

	"github.com/google/uuid"
)

type TreatmentRepository interface {
	Create(ctx context.Context, t *Treatment) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Treatment, int, error)
	ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*Treatment, error)
}

type NoteRepository interface {
	Create(ctx context.Context, n *ClinicalNote) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*ClinicalNote, int, error)
	ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*ClinicalNote, error)
}

type PrescriptionRepository interface {
	Create(ctx context.Context, p *Prescription) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error)
	ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*Prescription, error)
}
