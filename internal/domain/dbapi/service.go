package dbapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dentdesk/dentdesk/internal/domain/scheduling"
	"github.com/dentdesk/dentdesk/internal/platform/auth"
	"github.com/dentdesk/dentdesk/internal/platform/db"
)

type Service struct {
	store           Store
	lowStockDefault int
}

func NewService(store Store, lowStockDefault int) *Service {
	return &Service{store: store, lowStockDefault: lowStockDefault}
}

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, args...))
}

// Execute dispatches req. method is the HTTP verb it arrived with; write
// actions are refused unless it is POST.
func (s *Service) Execute(ctx context.Context, method string, req Request) (*Result, error) {
	action := strings.TrimSpace(req.Action)
	switch {
	case action == "":
		return nil, badRequest("action is required")
	case action == ActionCustomQuery:
		return nil, ErrCustomQueryDisabled
	case IsWriteAction(action):
		if method != http.MethodPost {
			return nil, ErrMethodNotAllowed
		}
		if !auth.HasRole(ctx, auth.RoleDentist) {
			return nil, ErrForbidden
		}
	case !IsReadAction(action):
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}

	switch action {
	case ActionListTables:
		return &Result{Data: Tables()}, nil
	case ActionReadTable:
		return s.readTable(ctx, req)
	case ActionGetRecord:
		return s.getRecord(ctx, req.Table, req.ID)
	case ActionCountRecords:
		stmt, err := buildCount(req.Table, req.Filters)
		if err != nil {
			return nil, err
		}
		n, err := s.count(ctx, stmt.SQL, stmt.Args...)
		if err != nil {
			return nil, err
		}
		return &Result{Data: map[string]int{"count": n}, Count: &n}, nil
	case ActionListAppointments:
		return s.listAppointments(ctx, req)
	case ActionGetAppointment:
		return s.getRecord(ctx, "appointments", req.ID)
	case ActionSearchPatients:
		return s.searchPatients(ctx, req)
	case ActionGetPatient:
		return s.getRecord(ctx, "patients", req.ID)
	case ActionListInvoices:
		return s.listInvoices(ctx, req)
	case ActionGetInventory:
		q := db.NewQuery("inventory_items", "*")
		if req.Search != "" {
			q.Contains(req.Search, "name", "sku")
		}
		q.OrderBy("name ASC")
		return s.page(ctx, q, req)
	case ActionLowStockItems:
		q := db.NewQuery("inventory_items", "*")
		q.Add(fmt.Sprintf("quantity < CASE WHEN low_stock_threshold > 0 THEN low_stock_threshold ELSE $%d END", q.Idx()), s.lowStockDefault)
		q.OrderBy("quantity ASC, name ASC")
		return s.page(ctx, q, req)
	case ActionInsertRecord:
		stmt, err := buildInsert(req.Table, req.Data)
		if err != nil {
			return nil, err
		}
		return s.one(ctx, stmt)
	case ActionUpdateRecord:
		if err := checkID(req.ID); err != nil {
			return nil, err
		}
		stmt, err := buildUpdate(req.Table, req.ID, req.Data)
		if err != nil {
			return nil, err
		}
		return s.one(ctx, stmt)
	case ActionDeleteRecord:
		if err := checkID(req.ID); err != nil {
			return nil, err
		}
		stmt, err := buildDelete(req.Table, req.ID)
		if err != nil {
			return nil, err
		}
		n, err := s.store.Exec(ctx, stmt.SQL, stmt.Args...)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, pgx.ErrNoRows
		}
		return &Result{Data: map[string]interface{}{"deleted": true, "id": req.ID}}, nil
	case ActionCreateAppointment:
		return s.createAppointment(ctx, req.Data)
	case ActionUpdateAppointmentStatus:
		return s.updateAppointmentStatus(ctx, req)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownAction, action)
}

func checkID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return badRequest("a valid id is required")
	}
	return nil
}

func (s *Service) readTable(ctx context.Context, req Request) (*Result, error) {
	asc := req.Ascending == nil || *req.Ascending
	stmt, err := buildSelect(req.Table, req.Filters, req.OrderBy, asc, req.Limit, req.Offset)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.Rows(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	n := len(rows)
	return &Result{Data: rows, Count: &n}, nil
}

func (s *Service) getRecord(ctx context.Context, table, id string) (*Result, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	stmt, err := buildGet(table, id)
	if err != nil {
		return nil, err
	}
	return s.one(ctx, stmt)
}

func (s *Service) one(ctx context.Context, stmt Statement) (*Result, error) {
	rows, err := s.store.Rows(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, pgx.ErrNoRows
	}
	return &Result{Data: rows[0]}, nil
}

func (s *Service) count(ctx context.Context, sql string, args ...interface{}) (int, error) {
	rows, err := s.store.Rows(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	switch v := rows[0]["count"].(type) {
	case int64:
		return int(v), nil
	case int:
		return v, nil
	}
	return 0, nil
}

// page runs a named list query with its total count.
func (s *Service) page(ctx context.Context, q *db.Query, req Request) (*Result, error) {
	total, err := s.count(ctx, q.CountSQL(), q.CountArgs()...)
	if err != nil {
		return nil, err
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}
	rows, err := s.store.Rows(ctx, q.DataSQL(), q.DataArgs(clampLimit(req.Limit), offset)...)
	if err != nil {
		return nil, err
	}
	return &Result{Data: rows, Count: &total}, nil
}

func filterString(f map[string]interface{}, key string) string {
	if v, ok := f[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func (s *Service) listAppointments(ctx context.Context, req Request) (*Result, error) {
	q := db.NewQuery("appointments", "*")
	for _, col := range []string{"dentist_id", "patient_id"} {
		if v := filterString(req.Filters, col); v != "" {
			if err := checkID(v); err != nil {
				return nil, badRequest("invalid %s", col)
			}
			q.Eq(col, v)
		}
	}
	if v := filterString(req.Filters, "status"); v != "" {
		q.Eq("status", v)
	}
	if v := filterString(req.Filters, "from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, badRequest("from must be RFC3339")
		}
		q.Since("start_time", t)
	}
	if v := filterString(req.Filters, "to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, badRequest("to must be RFC3339")
		}
		q.Before("start_time", t)
	}
	q.OrderBy("start_time ASC")
	return s.page(ctx, q, req)
}

func (s *Service) searchPatients(ctx context.Context, req Request) (*Result, error) {
	term := strings.TrimSpace(req.Search)
	if term == "" {
		term = filterString(req.Filters, "search")
	}
	q := db.NewQuery("patients", "*")
	if term != "" {
		q.Contains(term, "first_name", "last_name", "email", "phone")
	}
	q.OrderBy("last_name ASC, first_name ASC")
	return s.page(ctx, q, req)
}

func (s *Service) listInvoices(ctx context.Context, req Request) (*Result, error) {
	q := db.NewQuery("invoices", "*")
	if v := filterString(req.Filters, "patient_id"); v != "" {
		if err := checkID(v); err != nil {
			return nil, badRequest("invalid patient_id")
		}
		q.Eq("patient_id", v)
	}
	if v := filterString(req.Filters, "status"); v != "" {
		q.Eq("status", v)
	}
	q.OrderBy("created_at DESC")
	return s.page(ctx, q, req)
}

var appointmentFields = map[string]bool{
	"patient_id": true, "dentist_id": true, "start_time": true, "end_time": true,
	"status": true, "reason": true, "notes": true,
}

func (s *Service) createAppointment(ctx context.Context, data map[string]interface{}) (*Result, error) {
	for k := range data {
		if !appointmentFields[k] {
			return nil, badRequest("unexpected field %q", k)
		}
	}
	for _, k := range []string{"patient_id", "dentist_id"} {
		if err := checkID(filterString(data, k)); err != nil {
			return nil, badRequest("%s is required", k)
		}
	}
	start, err := time.Parse(time.RFC3339, filterString(data, "start_time"))
	if err != nil {
		return nil, badRequest("start_time must be RFC3339")
	}
	end, err := time.Parse(time.RFC3339, filterString(data, "end_time"))
	if err != nil {
		return nil, badRequest("end_time must be RFC3339")
	}
	if !end.After(start) {
		return nil, badRequest("end_time must be after start_time")
	}
	if filterString(data, "status") == "" {
		data["status"] = scheduling.StatusScheduled
	}
	data["start_time"], data["end_time"] = start, end
	stmt, err := buildInsert("appointments", data)
	if err != nil {
		return nil, err
	}
	return s.one(ctx, stmt)
}

func (s *Service) updateAppointmentStatus(ctx context.Context, req Request) (*Result, error) {
	status := filterString(req.Data, "status")
	if status == "" {
		return nil, badRequest("data.status is required")
	}
	current, err := s.getRecord(ctx, "appointments", req.ID)
	if err != nil {
		return nil, err
	}
	from, _ := current.Data.(Record)["status"].(string)
	if !scheduling.CanTransition(from, status) {
		return nil, badRequest("cannot change appointment status from %s to %s", from, status)
	}
	return s.one(ctx, Statement{
		SQL: `UPDATE appointments SET status = $2,
			treatment_completed_at = CASE WHEN $2 = 'completed' THEN NOW() ELSE treatment_completed_at END,
			updated_at = NOW()
			WHERE id = $1 RETURNING *`,
		Args: []interface{}{req.ID, status},
	})
}
