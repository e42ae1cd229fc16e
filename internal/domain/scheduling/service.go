package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	appointments AppointmentRepository
	recalls      RecallRepository
	now          func() time.Time
}

func NewService(appointments AppointmentRepository, recalls RecallRepository) *Service {
	return &Service{appointments: appointments, recalls: recalls, now: time.Now}
}

// -- Appointment --

// allowedTransitions lists, per status, the statuses it may move to.
// Re-applying the current status is always allowed.
var allowedTransitions = map[string]map[string]bool{
	StatusScheduled: {StatusConfirmed: true, StatusCompleted: true, StatusCancelled: true, StatusNoShow: true},
	StatusConfirmed: {StatusCompleted: true, StatusCancelled: true, StatusNoShow: true, StatusScheduled: true},
	StatusCancelled: {StatusScheduled: true},
	StatusNoShow:    {StatusScheduled: true},
	StatusCompleted: {},
}

func validAppointmentStatus(s string) bool {
	_, ok := allowedTransitions[s]
	return ok
}

// CanTransition reports whether an appointment in from may move to to.
func CanTransition(from, to string) bool {
	if from == to {
		return validAppointmentStatus(to)
	}
	return allowedTransitions[from][to]
}

func (s *Service) CreateAppointment(ctx context.Context, a *Appointment) error {
	if a.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if a.DentistID == uuid.Nil {
		return fmt.Errorf("dentist_id is required")
	}
	if a.StartTime.IsZero() || a.EndTime.IsZero() {
		return fmt.Errorf("start_time and end_time are required")
	}
	if !a.EndTime.After(a.StartTime) {
		return fmt.Errorf("end_time must be after start_time")
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	if a.Status != StatusScheduled && a.Status != StatusConfirmed {
		return fmt.Errorf("new appointments must be scheduled or confirmed, got %s", a.Status)
	}
	return s.appointments.Create(ctx, a)
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

func (s *Service) SearchAppointments(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	if f.Status != "" && !validAppointmentStatus(f.Status) {
		return nil, 0, fmt.Errorf("invalid appointment status: %s", f.Status)
	}
	return s.appointments.Search(ctx, f, limit, offset)
}

// UpdateAppointmentStatus moves an appointment to status, enforcing the
// transition table. Moving to completed stamps treatment_completed_at.
func (s *Service) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, status string) (*Appointment, error) {
	if !validAppointmentStatus(status) {
		return nil, fmt.Errorf("invalid appointment status: %s", status)
	}
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(a.Status, status) {
		return nil, fmt.Errorf("cannot change appointment status from %s to %s", a.Status, status)
	}
	var completedAt *time.Time
	if status == StatusCompleted && a.Status != StatusCompleted {
		now := s.now().UTC()
		completedAt = &now
	}
	if err := s.appointments.UpdateStatus(ctx, id, status, completedAt); err != nil {
		return nil, err
	}
	a.Status = status
	if completedAt != nil {
		a.TreatmentCompletedAt = completedAt
	}
	return a, nil
}

// -- Recall --

var validRecallStatuses = map[string]bool{
	RecallPending: true, RecallContacted: true, RecallScheduled: true, RecallDismissed: true,
}

func (s *Service) CreateRecall(ctx context.Context, r *Recall) error {
	if r.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if !ValidRecallInterval(r.IntervalLabel) {
		return fmt.Errorf("invalid recall interval: %s", r.IntervalLabel)
	}
	if r.DueDate.IsZero() {
		r.DueDate, _ = RecallDueDate(s.now(), r.IntervalLabel)
	}
	if r.Status == "" {
		r.Status = RecallPending
	}
	if !validRecallStatuses[r.Status] {
		return fmt.Errorf("invalid recall status: %s", r.Status)
	}
	return s.recalls.Create(ctx, r)
}

// ScheduleRecall records the next-visit choice made when a visit is
// completed. The due date counts from the appointment start.
func (s *Service) ScheduleRecall(ctx context.Context, a *Appointment, label, reason string) (*Recall, error) {
	due, ok := RecallDueDate(a.StartTime, label)
	if !ok {
		return nil, fmt.Errorf("invalid recall interval: %s", label)
	}
	dentistID, apptID := a.DentistID, a.ID
	r := &Recall{
		PatientID:     a.PatientID,
		DentistID:     &dentistID,
		AppointmentID: &apptID,
		IntervalLabel: label,
		DueDate:       due,
	}
	if reason != "" {
		r.Reason = &reason
	}
	if err := s.CreateRecall(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) GetRecall(ctx context.Context, id uuid.UUID) (*Recall, error) {
	return s.recalls.GetByID(ctx, id)
}

func (s *Service) ListRecallsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Recall, int, error) {
	return s.recalls.ListByPatient(ctx, patientID, limit, offset)
}

// ListDueRecalls returns pending recalls due before the given time, or
// before now when before is zero.
func (s *Service) ListDueRecalls(ctx context.Context, before time.Time, limit, offset int) ([]*Recall, int, error) {
	if before.IsZero() {
		before = s.now()
	}
	return s.recalls.ListDue(ctx, before, limit, offset)
}

func (s *Service) UpdateRecallStatus(ctx context.Context, id uuid.UUID, status string) error {
	if !validRecallStatuses[status] {
		return fmt.Errorf("invalid recall status: %s", status)
	}
	return s.recalls.UpdateStatus(ctx, id, status)
}
