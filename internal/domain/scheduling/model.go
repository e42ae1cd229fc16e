package scheduling

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusScheduled = "scheduled"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no_show"
)

// Appointment maps to the appointments table.
type Appointment struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	PatientID            uuid.UUID  `db:"patient_id" json:"patient_id"`
	DentistID            uuid.UUID  `db:"dentist_id" json:"dentist_id"`
	StartTime            time.Time  `db:"start_time" json:"start_time"`
	EndTime              time.Time  `db:"end_time" json:"end_time"`
	Status               string     `db:"status" json:"status"`
	Reason               *string    `db:"reason" json:"reason,omitempty"`
	Notes                *string    `db:"notes" json:"notes,omitempty"`
	TreatmentCompletedAt *time.Time `db:"treatment_completed_at" json:"treatment_completed_at,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

const (
	RecallPending   = "pending"
	RecallContacted = "contacted"
	RecallScheduled = "scheduled"
	RecallDismissed = "dismissed"
)

// Recall maps to the recalls table: a reminder to bring a patient back.
type Recall struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	PatientID     uuid.UUID  `db:"patient_id" json:"patient_id"`
	DentistID     *uuid.UUID `db:"dentist_id" json:"dentist_id,omitempty"`
	AppointmentID *uuid.UUID `db:"appointment_id" json:"appointment_id,omitempty"`
	IntervalLabel string     `db:"interval_label" json:"interval_label"`
	DueDate       time.Time  `db:"due_date" json:"due_date"`
	Reason        *string    `db:"reason" json:"reason,omitempty"`
	Status        string     `db:"status" json:"status"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

type recallInterval struct {
	months, days int
}

var recallIntervals = map[string]recallInterval{
	"1w":  {days: 7},
	"2w":  {days: 14},
	"1m":  {months: 1},
	"3m":  {months: 3},
	"6m":  {months: 6},
	"12m": {months: 12},
}

// ValidRecallInterval reports whether label is a supported next-visit choice.
func ValidRecallInterval(label string) bool {
	_, ok := recallIntervals[label]
	return ok
}

// RecallDueDate returns the calendar date label after from.
func RecallDueDate(from time.Time, label string) (time.Time, bool) {
	iv, ok := recallIntervals[label]
	if !ok {
		return time.Time{}, false
	}
	d := from.AddDate(0, iv.months, iv.days)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), true
}
