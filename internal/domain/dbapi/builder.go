package dbapi

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Statement is a SQL string with its bind arguments.
type Statement struct {
	SQL  string
	Args []interface{}
}

func checkTable(table string) (string, error) {
	if !allowedTables[table] {
		return "", fmt.Errorf("%w: %q", ErrTableNotAllowed, table)
	}
	return pgx.Identifier{table}.Sanitize(), nil
}

func checkColumn(col string) (string, error) {
	if !columnPattern.MatchString(col) {
		return "", fmt.Errorf("%w: %q", ErrInvalidColumn, col)
	}
	return pgx.Identifier{col}.Sanitize(), nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// whereClause turns filters into ANDed equality clauses. A nil value matches
// NULL and a list matches any of its elements.
func whereClause(filters map[string]interface{}, start int) (string, []interface{}, error) {
	var (
		parts []string
		args  []interface{}
	)
	idx := start
	for _, k := range sortedKeys(filters) {
		col, err := checkColumn(k)
		if err != nil {
			return "", nil, err
		}
		switch v := filters[k].(type) {
		case nil:
			parts = append(parts, col+" IS NULL")
		case []interface{}:
			parts = append(parts, fmt.Sprintf("%s = ANY($%d)", col, idx))
			args = append(args, v)
			idx++
		default:
			parts = append(parts, fmt.Sprintf("%s = $%d", col, idx))
			args = append(args, v)
			idx++
		}
	}
	if len(parts) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func buildSelect(table string, filters map[string]interface{}, orderBy string, ascending bool, limit, offset int) (Statement, error) {
	tbl, err := checkTable(table)
	if err != nil {
		return Statement{}, err
	}
	where, args, err := whereClause(filters, 1)
	if err != nil {
		return Statement{}, err
	}
	sql := "SELECT * FROM " + tbl + where
	if orderBy != "" {
		col, err := checkColumn(orderBy)
		if err != nil {
			return Statement{}, err
		}
		dir := "DESC"
		if ascending {
			dir = "ASC"
		}
		sql += " ORDER BY " + col + " " + dir
	}
	if offset < 0 {
		offset = 0
	}
	n := len(args)
	sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", n+1, n+2)
	return Statement{SQL: sql, Args: append(args, clampLimit(limit), offset)}, nil
}

func buildCount(table string, filters map[string]interface{}) (Statement, error) {
	tbl, err := checkTable(table)
	if err != nil {
		return Statement{}, err
	}
	where, args, err := whereClause(filters, 1)
	if err != nil {
		return Statement{}, err
	}
	return Statement{SQL: "SELECT COUNT(*) AS count FROM " + tbl + where, Args: args}, nil
}

func buildGet(table, id string) (Statement, error) {
	tbl, err := checkTable(table)
	if err != nil {
		return Statement{}, err
	}
	return Statement{SQL: "SELECT * FROM " + tbl + " WHERE id = $1", Args: []interface{}{id}}, nil
}

func buildInsert(table string, data map[string]interface{}) (Statement, error) {
	tbl, err := checkTable(table)
	if err != nil {
		return Statement{}, err
	}
	if len(data) == 0 {
		return Statement{}, fmt.Errorf("%w: data is required", ErrBadRequest)
	}
	keys := sortedKeys(data)
	cols := make([]string, len(keys))
	marks := make([]string, len(keys))
	args := make([]interface{}, len(keys))
	for i, k := range keys {
		col, err := checkColumn(k)
		if err != nil {
			return Statement{}, err
		}
		cols[i] = col
		marks[i] = fmt.Sprintf("$%d", i+1)
		args[i] = data[k]
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *", tbl, strings.Join(cols, ", "), strings.Join(marks, ", "))
	return Statement{SQL: sql, Args: args}, nil
}

func buildUpdate(table, id string, data map[string]interface{}) (Statement, error) {
	tbl, err := checkTable(table)
	if err != nil {
		return Statement{}, err
	}
	delete(data, "id")
	if len(data) == 0 {
		return Statement{}, fmt.Errorf("%w: data is required", ErrBadRequest)
	}
	keys := sortedKeys(data)
	sets := make([]string, len(keys))
	args := make([]interface{}, 0, len(keys)+1)
	args = append(args, id)
	for i, k := range keys {
		col, err := checkColumn(k)
		if err != nil {
			return Statement{}, err
		}
		sets[i] = fmt.Sprintf("%s = $%d", col, i+2)
		args = append(args, data[k])
	}
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE id = $1 RETURNING *", tbl, strings.Join(sets, ", "))
	return Statement{SQL: sql, Args: args}, nil
}

func buildDelete(table, id string) (Statement, error) {
	tbl, err := checkTable(table)
	if err != nil {
		return Statement{}, err
	}
	return Statement{SQL: "DELETE FROM " + tbl + " WHERE id = $1", Args: []interface{}{id}}, nil
}
