package dataimport

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/dentdesk/dentdesk/internal/domain/identity"
)

type mockPatients struct {
	created []*identity.Patient
	failOn  string
}

func (m *mockPatients) CreatePatient(_ context.Context, p *identity.Patient) error {
	if m.failOn != "" && p.LastName == m.failOn {
		return errors.New("duplicate patient")
	}
	m.created = append(m.created, p)
	return nil
}

const frenchCSV = "\xef\xbb\xbfPrénom;Nom;E-mail;GSM;Date de naissance;Adresse;Remarques\n" +
	"Marie;Dubois;Marie@Example.be;+32 470 12 34 56;14/03/1985;Rue Haute 12, Bruxelles;allergic to latex\n" +
	"Jan;Peeters;jan@example.be;0470 99 88 77;1990-07-01;Kerkstraat 5;\n" +
	";Janssens;;;;;\n" +
	";;;;;;\n"

func mustRead(t *testing.T, name, content string) *Table {
	t.Helper()
	tbl, err := ReadFile(name, strings.NewReader(content))
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return tbl
}

func TestReadCSV_SemicolonAndBOM(t *testing.T) {
	tbl := mustRead(t, "patients.csv", frenchCSV)
	if tbl.Headers[0] != "Prénom" || len(tbl.Headers) != 7 {
		t.Fatalf("unexpected headers %q", tbl.Headers)
	}
	if len(tbl.Rows) != 3 {
		t.Fatalf("expected blank line dropped and 3 rows, got %d", len(tbl.Rows))
	}
	if tbl.Rows[2][1] != "Janssens" {
		t.Errorf("unexpected row %q", tbl.Rows[2])
	}
}

func TestReadCSV_CommaAndShortRows(t *testing.T) {
	tbl := mustRead(t, "export.csv", "first_name,last_name,phone\nAna,Silva\n")
	if len(tbl.Rows) != 1 || len(tbl.Rows[0]) != 3 || tbl.Rows[0][2] != "" {
		t.Errorf("expected short row padded, got %q", tbl.Rows)
	}
}

func TestReadFile_Errors(t *testing.T) {
	if _, err := ReadFile("patients.pdf", strings.NewReader("x")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
	if _, err := ReadFile("empty.csv", strings.NewReader("\n\n")); !errors.Is(err, ErrEmptyFile) {
		t.Errorf("expected ErrEmptyFile, got %v", err)
	}
}

func TestReadXLSX_FirstSheet(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	f.SetSheetRow(sheet, "A1", &[]interface{}{"Voornaam", "Achternaam", "Telefoon"})
	f.SetSheetRow(sheet, "A2", &[]interface{}{"Lotte", "Claes", "0486 11 22 33"})
	f.NewSheet("Other")
	f.SetSheetRow("Other", "A1", &[]interface{}{"ignored"})
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	tbl, err := ReadFile("patienten.xlsx", buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(tbl.Headers, []string{"Voornaam", "Achternaam", "Telefoon"}) {
		t.Errorf("unexpected headers %q", tbl.Headers)
	}
	m := ToMapping(SuggestMapping(tbl))
	want := Mapping{FieldFirstName: 0, FieldLastName: 1, FieldPhone: 2}
	if !reflect.DeepEqual(m, want) {
		t.Errorf("got mapping %v, want %v", m, want)
	}
}

func TestSuggestMapping(t *testing.T) {
	tbl := mustRead(t, "patients.csv", frenchCSV)
	got := ToMapping(SuggestMapping(tbl))
	want := Mapping{
		FieldFirstName:   0,
		FieldLastName:    1,
		FieldEmail:       2,
		FieldPhone:       3,
		FieldDateOfBirth: 4,
		FieldAddress:     5,
		FieldNotes:       6,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestSuggestMapping_ValuesOnly(t *testing.T) {
	tbl := &Table{
		Headers: []string{"col1", "col2", "col3"},
		Rows: [][]string{
			{"a@b.be", "x", "2001-02-03"},
			{"c@d.be", "y", "1999-12-31"},
			{"", "z", ""},
		},
	}
	got := ToMapping(SuggestMapping(tbl))
	if got[FieldEmail] != 0 {
		t.Errorf("expected email from values, got %v", got)
	}
	if got[FieldDateOfBirth] != 2 {
		t.Errorf("expected dob from values, got %v", got)
	}
	if len(got) != 2 {
		t.Errorf("expected only two fields above the minimum score, got %v", got)
	}
}

func TestSuggestMapping_EachColumnOnce(t *testing.T) {
	tbl := &Table{Headers: []string{"Mobile phone"}, Rows: [][]string{{"0470 12 34 56"}}}
	got := SuggestMapping(tbl)
	if len(got) != 1 || got[0].Field != FieldPhone || got[0].Score != 4 {
		t.Errorf("unexpected suggestions %+v", got)
	}
}

func TestResolveMapping(t *testing.T) {
	tbl := mustRead(t, "patients.csv", frenchCSV)
	m, err := ResolveMapping(tbl, map[string]string{"first_name": "prénom", "last_name": "NOM"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(m, Mapping{FieldFirstName: 0, FieldLastName: 1}) {
		t.Errorf("unexpected mapping %v", m)
	}
	if _, err := ResolveMapping(tbl, map[string]string{"shoe_size": "Nom"}); err == nil {
		t.Error("expected error for unknown field")
	}
	if _, err := ResolveMapping(tbl, map[string]string{"first_name": "Voornaam"}); err == nil {
		t.Error("expected error for missing column")
	}
	if _, err := ResolveMapping(tbl, map[string]string{"first_name": "Nom", "last_name": "Nom"}); err == nil {
		t.Error("expected error for a column mapped twice")
	}
}

func TestImportPatients(t *testing.T) {
	tbl := mustRead(t, "patients.csv", frenchCSV)
	repo := &mockPatients{}
	svc := NewService(repo, zerolog.Nop())

	res, err := svc.ImportPatients(context.Background(), tbl, nil, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Imported != 2 || res.Skipped != 1 || len(res.Errors) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	marie := repo.created[0]
	if marie.FirstName != "Marie" || *marie.Email != "marie@example.be" {
		t.Errorf("unexpected patient %+v", marie)
	}
	if marie.DateOfBirth == nil || marie.DateOfBirth.Format("2006-01-02") != "1985-03-14" {
		t.Errorf("expected day-first date, got %v", marie.DateOfBirth)
	}
	if repo.created[1].Notes != nil {
		t.Error("expected empty notes to stay nil")
	}
}

func TestImportPatients_RowErrors(t *testing.T) {
	tbl := &Table{
		Headers: []string{"first_name", "last_name", "date_of_birth"},
		Rows: [][]string{
			{"Ana", "Silva", "31/31/2000"},
			{"Rui", "Costa", ""},
			{"Eva", "Dupont", "2000-01-01"},
		},
	}
	repo := &mockPatients{failOn: "Costa"}
	res, err := NewService(repo, zerolog.Nop()).ImportPatients(context.Background(), tbl, nil, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Imported != 1 || len(res.Errors) != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Errors[0].Row != 2 || res.Errors[1].Row != 3 {
		t.Errorf("expected file line numbers 2 and 3, got %+v", res.Errors)
	}
}

func TestImportPatients_RowErrorsKeepSourceLines(t *testing.T) {
	csvFile := "first_name,last_name,date_of_birth\n" +
		"Ana,Silva,2000-01-01\n" +
		"\n" +
		",,\n" +
		"Rui,Costa,31/31/2000\n"

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	f.SetSheetRow(sheet, "A1", &[]interface{}{"first_name", "last_name", "date_of_birth"})
	f.SetSheetRow(sheet, "A2", &[]interface{}{"Ana", "Silva", "2000-01-01"})
	f.SetSheetRow(sheet, "A5", &[]interface{}{"Rui", "Costa", "31/31/2000"})
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	tests := []struct {
		name string
		tbl  *Table
	}{
		{"csv", mustRead(t, "patients.csv", csvFile)},
		{"xlsx", mustRead(t, "patients.xlsx", buf.String())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if len(tt.tbl.Rows) != 2 {
				t.Fatalf("expected 2 rows after dropping blanks, got %d", len(tt.tbl.Rows))
			}
			res, err := NewService(&mockPatients{}, zerolog.Nop()).ImportPatients(context.Background(), tt.tbl, nil, true)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(res.Errors) != 1 || res.Errors[0].Row != 5 {
				t.Errorf("expected an error on line 5, got %+v", res.Errors)
			}
		})
	}
}

func TestImportPatients_DryRunWritesNothing(t *testing.T) {
	tbl := mustRead(t, "patients.csv", frenchCSV)
	repo := &mockPatients{}
	res, err := NewService(repo, zerolog.Nop()).ImportPatients(context.Background(), tbl, nil, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Imported != 2 || !res.DryRun || len(repo.created) != 0 {
		t.Errorf("unexpected dry run %+v, created %d", res, len(repo.created))
	}
}

func TestImportPatients_RequiresNameColumns(t *testing.T) {
	tbl := &Table{Headers: []string{"email"}, Rows: [][]string{{"a@b.be"}}}
	if _, err := NewService(&mockPatients{}, zerolog.Nop()).ImportPatients(context.Background(), tbl, nil, false); err == nil {
		t.Fatal("expected error without name columns")
	}
}

func TestParseDate(t *testing.T) {
	for _, v := range []string{"1985-03-14", "14/03/1985", "14.03.1985", "14-03-1985", "4/3/1985"} {
		if _, err := ParseDate(v); err != nil {
			t.Errorf("ParseDate(%q): %v", v, err)
		}
	}
	if _, err := ParseDate("March 14"); err == nil {
		t.Error("expected error")
	}
}
