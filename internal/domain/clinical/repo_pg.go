package clinical

import (
	"context"

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

type pgRepo struct{ pool *pgxpool.Pool }

func (r *pgRepo) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

// collect drains rows through scan.
func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]*T, error) {
	defer rows.Close()
	var out []*T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// -- Treatment --

type treatmentRepoPG struct{ pgRepo }

func NewTreatmentRepoPG(pool *pgxpool.Pool) TreatmentRepository {
	return &treatmentRepoPG{pgRepo{pool: pool}}
}

const treatmentCols = `id, appointment_id, patient_id, dentist_id, procedure_key, procedure_name,
	tooth, quantity, unit_price_cents, duration_minutes, status, created_at`

func scanTreatment(row pgx.Row) (*Treatment, error) {
	var t Treatment
	err := row.Scan(&t.ID, &t.AppointmentID, &t.PatientID, &t.DentistID, &t.ProcedureKey, &t.ProcedureName,
		&t.Tooth, &t.Quantity, &t.UnitPriceCents, &t.DurationMinutes, &t.Status, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *treatmentRepoPG) Create(ctx context.Context, t *Treatment) error {
	t.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO treatments (id, appointment_id, patient_id, dentist_id, procedure_key, procedure_name,
			tooth, quantity, unit_price_cents, duration_minutes, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at`,
		t.ID, t.AppointmentID, t.PatientID, t.DentistID, t.ProcedureKey, t.ProcedureName,
		t.Tooth, t.Quantity, t.UnitPriceCents, t.DurationMinutes, t.Status,
	).Scan(&t.CreatedAt)
}

func (r *treatmentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Treatment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM treatments WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+treatmentCols+` FROM treatments WHERE patient_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows, scanTreatment)
	return items, total, err
}

func (r *treatmentRepoPG) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*Treatment, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+treatmentCols+` FROM treatments WHERE appointment_id = $1 ORDER BY created_at`, appointmentID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanTreatment)
}

// -- ClinicalNote --

type noteRepoPG struct{ pgRepo }

func NewNoteRepoPG(pool *pgxpool.Pool) NoteRepository {
	return &noteRepoPG{pgRepo{pool: pool}}
}

const noteCols = `id, appointment_id, patient_id, dentist_id, note_type, content, created_at`

func scanNote(row pgx.Row) (*ClinicalNote, error) {
	var n ClinicalNote
	if err := row.Scan(&n.ID, &n.AppointmentID, &n.PatientID, &n.DentistID, &n.NoteType, &n.Content, &n.CreatedAt); err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *noteRepoPG) Create(ctx context.Context, n *ClinicalNote) error {
	n.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO clinical_notes (id, appointment_id, patient_id, dentist_id, note_type, content)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`,
		n.ID, n.AppointmentID, n.PatientID, n.DentistID, n.NoteType, n.Content,
	).Scan(&n.CreatedAt)
}

func (r *noteRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*ClinicalNote, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM clinical_notes WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+noteCols+` FROM clinical_notes WHERE patient_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows, scanNote)
	return items, total, err
}

func (r *noteRepoPG) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*ClinicalNote, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+noteCols+` FROM clinical_notes WHERE appointment_id = $1 ORDER BY created_at`, appointmentID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanNote)
}

// -- Prescription --

type prescriptionRepoPG struct{ pgRepo }

func NewPrescriptionRepoPG(pool *pgxpool.Pool) PrescriptionRepository {
	return &prescriptionRepoPG{pgRepo{pool: pool}}
}

const rxCols = `id, appointment_id, patient_id, dentist_id, medication, dosage, frequency,
	duration, instructions, created_at`

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.AppointmentID, &p.PatientID, &p.DentistID, &p.Medication, &p.Dosage,
		&p.Frequency, &p.Duration, &p.Instructions, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *prescriptionRepoPG) Create(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO prescriptions (id, appointment_id, patient_id, dentist_id, medication, dosage,
			frequency, duration, instructions)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at`,
		p.ID, p.AppointmentID, p.PatientID, p.DentistID, p.Medication, p.Dosage,
		p.Frequency, p.Duration, p.Instructions,
	).Scan(&p.CreatedAt)
}

func (r *prescriptionRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM prescriptions WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+rxCols+` FROM prescriptions WHERE patient_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows, scanPrescription)
	return items, total, err
}

func (r *prescriptionRepoPG) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*Prescription, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+rxCols+` FROM prescriptions WHERE appointment_id = $1 ORDER BY created_at`, appointmentID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPrescription)
}
