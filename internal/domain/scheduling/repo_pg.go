package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dentdesk/dentdesk/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// -- Appointment --

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const apptCols = `id, patient_id, dentist_id, start_time, end_time, status, reason, notes,
	treatment_completed_at, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.DentistID, &a.StartTime, &a.EndTime, &a.Status,
		&a.Reason, &a.Notes, &a.TreatmentCompletedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, dentist_id, start_time, end_time, status, reason, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.DentistID, a.StartTime, a.EndTime, a.Status, a.Reason, a.Notes,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1`, id))
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string, completedAt *time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments
		   SET status = $2,
		       treatment_completed_at = COALESCE($3, treatment_completed_at),
		       updated_at = NOW()
		 WHERE id = $1`, id, status, completedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *appointmentRepoPG) Search(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	q := db.NewQuery("appointments", apptCols)
	if f.PatientID != uuid.Nil {
		q.Eq("patient_id", f.PatientID)
	}
	if f.DentistID != uuid.Nil {
		q.Eq("dentist_id", f.DentistID)
	}
	if f.Status != "" {
		q.Eq("status", f.Status)
	}
	if !f.From.IsZero() {
		q.Since("start_time", f.From)
	}
	if !f.To.IsZero() {
		q.Before("start_time", f.To)
	}
	q.OrderBy("start_time")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

// -- Recall --

type recallRepoPG struct{ pool *pgxpool.Pool }

func NewRecallRepoPG(pool *pgxpool.Pool) RecallRepository {
	return &recallRepoPG{pool: pool}
}

func (r *recallRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const recallCols = `id, patient_id, dentist_id, appointment_id, interval_label, due_date,
	reason, status, created_at`

func scanRecall(row pgx.Row) (*Recall, error) {
	var rc Recall
	err := row.Scan(&rc.ID, &rc.PatientID, &rc.DentistID, &rc.AppointmentID, &rc.IntervalLabel,
		&rc.DueDate, &rc.Reason, &rc.Status, &rc.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rc, nil
}

func (r *recallRepoPG) Create(ctx context.Context, rc *Recall) error {
	rc.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO recalls (id, patient_id, dentist_id, appointment_id, interval_label, due_date, reason, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at`,
		rc.ID, rc.PatientID, rc.DentistID, rc.AppointmentID, rc.IntervalLabel, rc.DueDate, rc.Reason, rc.Status,
	).Scan(&rc.CreatedAt)
}

func (r *recallRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Recall, error) {
	return scanRecall(r.conn(ctx).QueryRow(ctx, `SELECT `+recallCols+` FROM recalls WHERE id = $1`, id))
}

func (r *recallRepoPG) list(ctx context.Context, q *db.Query, limit, offset int) ([]*Recall, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Recall
	for rows.Next() {
		rc, err := scanRecall(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rc)
	}
	return items, total, rows.Err()
}

func (r *recallRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Recall, int, error) {
	q := db.NewQuery("recalls", recallCols)
	q.Eq("patient_id", patientID)
	q.OrderBy("due_date DESC")
	return r.list(ctx, q, limit, offset)
}

func (r *recallRepoPG) ListDue(ctx context.Context, before time.Time, limit, offset int) ([]*Recall, int, error) {
	q := db.NewQuery("recalls", recallCols)
	q.Eq("status", RecallPending)
	q.Before("due_date", before)
	q.OrderBy("due_date")
	return r.list(ctx, q, limit, offset)
}

func (r *recallRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE recalls SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
