package identity

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

func connFor(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// -- Patient --

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const patientCols = `id, first_name, last_name, email, phone, date_of_birth,
	address, notes, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.Phone, &p.DateOfBirth,
		&p.Address, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (id, first_name, last_name, email, phone, date_of_birth, address, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		p.ID, p.FirstName, p.LastName, p.Email, p.Phone, p.DateOfBirth, p.Address, p.Notes,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET first_name=$2, last_name=$3, email=$4, phone=$5,
			date_of_birth=$6, address=$7, notes=$8, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, p.Email, p.Phone, p.DateOfBirth, p.Address, p.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	return err
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return r.Search(ctx, nil, limit, offset)
}

func (r *patientRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Patient, int, error) {
	q := db.NewQuery("patients", patientCols)
	if name := params["name"]; name != "" {
		q.Contains(name, "first_name", "last_name", "first_name || ' ' || last_name")
	}
	if email := params["email"]; email != "" {
		q.Contains(email, "email")
	}
	q.OrderBy("last_name, first_name")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

// -- Dentist --

type dentistRepoPG struct{ pool *pgxpool.Pool }

func NewDentistRepoPG(pool *pgxpool.Pool) DentistRepository {
	return &dentistRepoPG{pool: pool}
}

func (r *dentistRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const dentistCols = `id, first_name, last_name, email, specialty, user_id, created_at`

func scanDentist(row pgx.Row) (*Dentist, error) {
	var d Dentist
	if err := row.Scan(&d.ID, &d.FirstName, &d.LastName, &d.Email, &d.Specialty, &d.UserID, &d.CreatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *dentistRepoPG) Create(ctx context.Context, d *Dentist) error {
	d.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO dentists (id, first_name, last_name, email, specialty, user_id)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`,
		d.ID, d.FirstName, d.LastName, d.Email, d.Specialty, d.UserID,
	).Scan(&d.CreatedAt)
}

func (r *dentistRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Dentist, error) {
	return scanDentist(r.conn(ctx).QueryRow(ctx, `SELECT `+dentistCols+` FROM dentists WHERE id = $1`, id))
}

func (r *dentistRepoPG) GetByUserID(ctx context.Context, userID string) (*Dentist, error) {
	return scanDentist(r.conn(ctx).QueryRow(ctx, `SELECT `+dentistCols+` FROM dentists WHERE user_id = $1`, userID))
}

func (r *dentistRepoPG) SetUserID(ctx context.Context, id uuid.UUID, userID *string) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE dentists SET user_id = $2 WHERE id = $1`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *dentistRepoPG) List(ctx context.Context, limit, offset int) ([]*Dentist, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM dentists`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+dentistCols+` FROM dentists ORDER BY last_name, first_name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Dentist
	for rows.Next() {
		d, err := scanDentist(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}
