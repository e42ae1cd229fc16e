package clinical

import (
	"time"

	"github.com/google/uuid"
)

// Treatment maps to the treatments table: one performed procedure line.
type Treatment struct {
	ID              uuid.UUID `db:"id" json:"id"`
	AppointmentID   uuid.UUID `db:"appointment_id" json:"appointment_id"`
	PatientID       uuid.UUID `db:"patient_id" json:"patient_id"`
	DentistID       uuid.UUID `db:"dentist_id" json:"dentist_id"`
	ProcedureKey    *string   `db:"procedure_key" json:"procedure_key,omitempty"`
	ProcedureName   string    `db:"procedure_name" json:"procedure_name"`
	Tooth           *string   `db:"tooth" json:"tooth,omitempty"`
	Quantity        int       `db:"quantity" json:"quantity"`
	UnitPriceCents  int64     `db:"unit_price_cents" json:"unit_price_cents"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	Status          string    `db:"status" json:"status"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

const (
	NoteGeneral         = "general"
	NoteClinicalOutcome = "clinical_outcome"
	NoteTreatmentPlan   = "treatment_plan"
	NoteMedicalHistory  = "medical_history"
)

var validNoteTypes = map[string]bool{
	NoteGeneral: true, NoteClinicalOutcome: true, NoteTreatmentPlan: true, NoteMedicalHistory: true,
}

// ClinicalNote maps to the clinical_notes table.
type ClinicalNote struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	AppointmentID *uuid.UUID `db:"appointment_id" json:"appointment_id,omitempty"`
	PatientID     uuid.UUID  `db:"patient_id" json:"patient_id"`
	DentistID     *uuid.UUID `db:"dentist_id" json:"dentist_id,omitempty"`
	NoteType      string     `db:"note_type" json:"note_type"`
	Content       string     `db:"content" json:"content"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// Prescription maps to the prescriptions table.
type Prescription struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	AppointmentID *uuid.UUID `db:"appointment_id" json:"appointment_id,omitempty"`
	PatientID     uuid.UUID  `db:"patient_id" json:"patient_id"`
	DentistID     uuid.UUID  `db:"dentist_id" json:"dentist_id"`
	Medication    string     `db:"medication" json:"medication"`
	Dosage        *string    `db:"dosage" json:"dosage,omitempty"`
	Frequency     *string    `db:"frequency" json:"frequency,omitempty"`
	Duration      *string    `db:"duration" json:"duration,omitempty"`
	Instructions  *string    `db:"instructions" json:"instructions,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}
