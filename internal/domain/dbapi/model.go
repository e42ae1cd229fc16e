// Package dbapi is the generic database proxy: a single endpoint that
// dispatches named actions to parameterized queries over an allowlist of
// practice tables.
package dbapi

import (
	"errors"
	"regexp"
	"sort"
)

// Read actions are served under GET and POST.
const (
	ActionReadTable        = "read_table"
	ActionGetRecord        = "get_record"
	ActionCountRecords     = "count_records"
	ActionListAppointments = "list_appointments"
	ActionGetAppointment   = "get_appointment"
	ActionSearchPatients   = "search_patients"
	ActionGetPatient       = "get_patient"
	ActionListInvoices     = "list_invoices"
	ActionGetInventory     = "get_inventory"
	ActionLowStockItems    = "low_stock_items"
	ActionListTables       = "list_tables"
)

// Write actions are POST only.
const (
	ActionInsertRecord            = "insert_record"
	ActionUpdateRecord            = "update_record"
	ActionDeleteRecord            = "delete_record"
	ActionCreateAppointment       = "create_appointment"
	ActionUpdateAppointmentStatus = "update_appointment_status"
	ActionCustomQuery             = "custom_query"
)

var readActions = map[string]bool{
	ActionReadTable: true, ActionGetRecord: true, ActionCountRecords: true,
	ActionListAppointments: true, ActionGetAppointment: true, ActionSearchPatients: true,
	ActionGetPatient: true, ActionListInvoices: true, ActionGetInventory: true,
	ActionLowStockItems: true, ActionListTables: true,
}

var writeActions = map[string]bool{
	ActionInsertRecord: true, ActionUpdateRecord: true, ActionDeleteRecord: true,
	ActionCreateAppointment: true, ActionUpdateAppointmentStatus: true,
}

func IsReadAction(a string) bool  { return readActions[a] }
func IsWriteAction(a string) bool { return writeActions[a] }

var (
	ErrCustomQueryDisabled = errors.New("custom queries are disabled for security reasons")
	ErrUnknownAction       = errors.New("unknown action")
	ErrMethodNotAllowed    = errors.New("write actions require POST")
	ErrForbidden           = errors.New("write actions require the admin or dentist role")
	ErrTableNotAllowed     = errors.New("table is not allowed")
	ErrInvalidColumn       = errors.New("invalid column name")
	ErrBadRequest          = errors.New("bad request")
)

var allowedTables = map[string]bool{
	"patients":              true,
	"dentists":              true,
	"appointments":          true,
	"recalls":               true,
	"treatments":            true,
	"clinical_notes":        true,
	"prescriptions":         true,
	"invoices":              true,
	"invoice_items":         true,
	"inventory_items":       true,
	"inventory_adjustments": true,
	"notifications":         true,
}

// Tables returns the allowlist, sorted.
func Tables() []string {
	out := make([]string, 0, len(allowedTables))
	for t := range allowedTables {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

var columnPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Request is the action envelope, read from the POST body or GET query.
type Request struct {
	Action    string                 `json:"action"`
	Table     string                 `json:"table,omitempty"`
	ID        string                 `json:"id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Filters   map[string]interface{} `json:"filters,omitempty"`
	OrderBy   string                 `json:"order_by,omitempty"`
	Ascending *bool                  `json:"ascending,omitempty"`
	Limit     int                    `json:"limit,omitempty"`
	Offset    int                    `json:"offset,omitempty"`
	Search    string                 `json:"search,omitempty"`
	Query     string                 `json:"query,omitempty"`
}

// Record is one row keyed by column name.
type Record map[string]interface{}

// Result is the response envelope. Count is set for list and count actions.
type Result struct {
	Data  interface{} `json:"data"`
	Count *int        `json:"count,omitempty"`
}
