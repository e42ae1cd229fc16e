// Package dataimport loads patient lists exported from other practice
// software. Files are read as a header row plus data rows, columns are
// matched to patient fields by a scored guess the caller can override, and
// each mapped row becomes a patient.
package dataimport

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format, expected .csv or .xlsx")
	ErrEmptyFile         = errors.New("file has no header row")
)

// Table is a parsed file. Every row has len(Headers) cells. Lines holds
// the 1-based source line (or sheet row) of each row, since blank records
// are dropped.
type Table struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
	Lines   []int      `json:"lines,omitempty"`
}

// Line returns the source line of row i. Tables built without Lines assume
// one header line and no gaps.
func (t *Table) Line(i int) int {
	if i < len(t.Lines) {
		return t.Lines[i]
	}
	return i + 2
}

// ReadFile parses r according to the extension of name.
func ReadFile(name string, r io.Reader) (*Table, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		return ReadCSV(r)
	case ".xlsx", ".xlsm":
		return ReadXLSX(r)
	}
	return nil, ErrUnsupportedFormat
}

// ReadCSV reads comma or semicolon separated text. The separator is taken
// from whichever occurs more often in the header line.
func ReadCSV(r io.Reader) (*Table, error) {
	br := bufio.NewReader(r)
	if bom, _ := br.Peek(3); bytes.Equal(bom, []byte("\xef\xbb\xbf")) {
		br.Discard(3)
	}
	head, err := br.Peek(4096)
	if err != nil && err != io.EOF && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, err
	}
	first := head
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		first = head[:i]
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	if bytes.Count(first, []byte(";")) > bytes.Count(first, []byte(",")) {
		cr.Comma = ';'
	}
	var records [][]string
	var lines []int
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line, _ := cr.FieldPos(0)
		records = append(records, rec)
		lines = append(lines, line)
	}
	return newTable(records, lines)
}

// ReadXLSX reads the first sheet of a workbook.
func ReadXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, ErrEmptyFile
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	lines := make([]int, len(rows))
	for i := range rows {
		lines[i] = i + 1
	}
	return newTable(rows, lines)
}

func newTable(records [][]string, lines []int) (*Table, error) {
	var rows [][]string
	var kept []int
	for i, rec := range records {
		if !blank(rec) {
			rows = append(rows, rec)
			kept = append(kept, lines[i])
		}
	}
	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}

	t := &Table{Headers: make([]string, len(rows[0]))}
	for i, h := range rows[0] {
		t.Headers[i] = strings.TrimSpace(h)
	}
	for n, rec := range rows[1:] {
		row := make([]string, len(t.Headers))
		for i := range row {
			if i < len(rec) {
				row[i] = strings.TrimSpace(rec[i])
			}
		}
		t.Rows = append(t.Rows, row)
		t.Lines = append(t.Lines, kept[n+1])
	}
	return t, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
