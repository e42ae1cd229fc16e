package dataimport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dentdesk/dentdesk/internal/domain/identity"
)

// PatientCreator is satisfied by identity.Service.
type PatientCreator interface {
	CreatePatient(ctx context.Context, p *identity.Patient) error
}

type Service struct {
	patients PatientCreator
	logger   zerolog.Logger
}

func NewService(patients PatientCreator, logger zerolog.Logger) *Service {
	return &Service{patients: patients, logger: logger}
}

type Preview struct {
	Headers []string     `json:"headers"`
	Mapping []Suggestion `json:"mapping"`
	Sample  [][]string   `json:"sample"`
	Total   int          `json:"total_rows"`
}

func (s *Service) Preview(t *Table) *Preview {
	n := len(t.Rows)
	if n > sampleSize {
		n = sampleSize
	}
	return &Preview{
		Headers: t.Headers,
		Mapping: SuggestMapping(t),
		Sample:  t.Rows[:n],
		Total:   len(t.Rows),
	}
}

// RowError reports a row that could not be imported. Row is the 1-based line
// in the file, header included.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

type Result struct {
	Imported int        `json:"imported"`
	Skipped  int        `json:"skipped"`
	Errors   []RowError `json:"errors"`
	DryRun   bool       `json:"dry_run,omitempty"`
}

// ImportPatients creates one patient per row. A nil mapping uses the
// suggested one. Rows without a first or last name are skipped; rows that
// fail validation or insertion are reported and the import continues.
func (s *Service) ImportPatients(ctx context.Context, t *Table, m Mapping, dryRun bool) (*Result, error) {
	if m == nil {
		m = ToMapping(SuggestMapping(t))
	}
	if _, ok := m[FieldFirstName]; !ok {
		return nil, fmt.Errorf("no column is mapped to %s", FieldFirstName)
	}
	if _, ok := m[FieldLastName]; !ok {
		return nil, fmt.Errorf("no column is mapped to %s", FieldLastName)
	}

	res := &Result{Errors: []RowError{}, DryRun: dryRun}
	for i, row := range t.Rows {
		line := t.Line(i)
		p, err := patientFromRow(row, m)
		if err != nil {
			res.Errors = append(res.Errors, RowError{Row: line, Message: err.Error()})
			continue
		}
		if p == nil {
			res.Skipped++
			continue
		}
		if dryRun {
			res.Imported++
			continue
		}
		if err := s.patients.CreatePatient(ctx, p); err != nil {
			res.Errors = append(res.Errors, RowError{Row: line, Message: err.Error()})
			continue
		}
		res.Imported++
	}

	s.logger.Info().
		Int("imported", res.Imported).
		Int("skipped", res.Skipped).
		Int("errors", len(res.Errors)).
		Bool("dry_run", dryRun).
		Msg("patient import finished")
	return res, nil
}

func cell(row []string, m Mapping, field string) string {
	col, ok := m[field]
	if !ok || col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// patientFromRow returns nil, nil for rows that should be skipped.
func patientFromRow(row []string, m Mapping) (*identity.Patient, error) {
	p := &identity.Patient{
		FirstName: cell(row, m, FieldFirstName),
		LastName:  cell(row, m, FieldLastName),
		Email:     optional(strings.ToLower(cell(row, m, FieldEmail))),
		Phone:     optional(cell(row, m, FieldPhone)),
		Address:   optional(cell(row, m, FieldAddress)),
		Notes:     optional(cell(row, m, FieldNotes)),
	}
	if p.FirstName == "" || p.LastName == "" {
		return nil, nil
	}
	if v := cell(row, m, FieldDateOfBirth); v != "" {
		dob, err := ParseDate(v)
		if err != nil {
			return nil, err
		}
		p.DateOfBirth = &dob
	}
	return p, nil
}

var dateLayouts = []string{"2006-01-02", "02/01/2006", "2/1/2006", "02.01.2006", "2.1.2006", "02-01-2006", "2-1-2006"}

// ParseDate accepts ISO dates and day-first dates with /, . or -
// separators.
func ParseDate(v string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", v)
}
