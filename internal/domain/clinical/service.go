package clinical

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Service struct {
	treatments    TreatmentRepository
	notes         NoteRepository
	prescriptions PrescriptionRepository
}

func NewService(treatments TreatmentRepository, notes NoteRepository, prescriptions PrescriptionRepository) *Service {
	return &Service{treatments: treatments, notes: notes, prescriptions: prescriptions}
}

// -- Treatment --

func (s *Service) CreateTreatment(ctx context.Context, t *Treatment) error {
	if t.AppointmentID == uuid.Nil || t.PatientID == uuid.Nil || t.DentistID == uuid.Nil {
		return fmt.Errorf("appointment_id, patient_id and dentist_id are required")
	}
	if strings.TrimSpace(t.ProcedureName) == "" {
		return fmt.Errorf("procedure_name is required")
	}
	if t.Quantity < 1 {
		return fmt.Errorf("quantity must be at least 1")
	}
	if t.UnitPriceCents < 0 {
		return fmt.Errorf("unit_price_cents must not be negative")
	}
	if t.Status == "" {
		t.Status = "completed"
	}
	return s.treatments.Create(ctx, t)
}

func (s *Service) ListTreatmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Treatment, int, error) {
	return s.treatments.ListByPatient(ctx, patientID, limit, offset)
}

// -- ClinicalNote --

func (s *Service) CreateNote(ctx context.Context, n *ClinicalNote) error {
	if n.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	n.Content = strings.TrimSpace(n.Content)
	if n.Content == "" {
		return fmt.Errorf("content is required")
	}
	if n.NoteType == "" {
		n.NoteType = NoteGeneral
	}
	if !validNoteTypes[n.NoteType] {
		return fmt.Errorf("invalid note_type: %s", n.NoteType)
	}
	return s.notes.Create(ctx, n)
}

func (s *Service) ListNotesByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*ClinicalNote, int, error) {
	return s.notes.ListByPatient(ctx, patientID, limit, offset)
}

// -- Prescription --

func (s *Service) CreatePrescription(ctx context.Context, p *Prescription) error {
	if p.PatientID == uuid.Nil || p.DentistID == uuid.Nil {
		return fmt.Errorf("patient_id and dentist_id are required")
	}
	p.Medication = strings.TrimSpace(p.Medication)
	if p.Medication == "" {
		return fmt.Errorf("medication is required")
	}
	return s.prescriptions.Create(ctx, p)
}

func (s *Service) ListPrescriptionsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	return s.prescriptions.ListByPatient(ctx, patientID, limit, offset)
}

// VisitRecord is everything charted during one appointment.
type VisitRecord struct {
	AppointmentID uuid.UUID       `json:"appointment_id"`
	Treatments    []*Treatment    `json:"treatments"`
	Notes         []*ClinicalNote `json:"notes"`
	Prescriptions []*Prescription `json:"prescriptions"`
}

func (s *Service) GetVisitRecord(ctx context.Context, appointmentID uuid.UUID) (*VisitRecord, error) {
	rec := &VisitRecord{AppointmentID: appointmentID}
	var err error
	if rec.Treatments, err = s.treatments.ListByAppointment(ctx, appointmentID); err != nil {
		return nil, fmt.Errorf("list treatments: %w", err)
	}
	if rec.Notes, err = s.notes.ListByAppointment(ctx, appointmentID); err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	if rec.Prescriptions, err = s.prescriptions.ListByAppointment(ctx, appointmentID); err != nil {
		return nil, fmt.Errorf("list prescriptions: %w", err)
	}
	return rec, nil
}
