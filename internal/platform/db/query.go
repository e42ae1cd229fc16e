package db

import (
	"fmt"
	"strings"
)

// Query builds the filtered count and page queries list endpoints share.
// Clauses are ANDed; values are always bind parameters.
type Query struct {
	table   string
	cols    string
	where   string
	args    []interface{}
	idx     int
	orderBy string
}

func NewQuery(table, cols string) *Query {
	return &Query{table: table, cols: cols, idx: 1}
}

// Idx returns the next free placeholder index.
func (q *Query) Idx() int { return q.idx }

// Add appends a raw clause. Placeholders in clause must start at Idx().
func (q *Query) Add(clause string, args ...interface{}) {
	q.where += " AND " + clause
	q.args = append(q.args, args...)
	q.idx += len(args)
}

// Eq adds column = value.
func (q *Query) Eq(column string, value interface{}) {
	q.Add(fmt.Sprintf("%s = $%d", column, q.idx), value)
}

// Contains adds a case-insensitive substring match on any of columns.
func (q *Query) Contains(value string, columns ...string) {
	if len(columns) == 0 {
		return
	}
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = fmt.Sprintf("%s ILIKE $%d", c, q.idx)
	}
	q.Add("("+strings.Join(parts, " OR ")+")", "%"+escapeLike(value)+"%")
}

// Since adds column >= value.
func (q *Query) Since(column string, value interface{}) {
	q.Add(fmt.Sprintf("%s >= $%d", column, q.idx), value)
}

// Before adds column < value.
func (q *Query) Before(column string, value interface{}) {
	q.Add(fmt.Sprintf("%s < $%d", column, q.idx), value)
}

func (q *Query) OrderBy(orderBy string) {
	q.orderBy = orderBy
}

func (q *Query) CountSQL() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE 1=1%s", q.table, q.where)
}

func (q *Query) CountArgs() []interface{} {
	return q.args
}

func (q *Query) DataSQL() string {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE 1=1%s", q.cols, q.table, q.where)
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	return sql + fmt.Sprintf(" LIMIT $%d OFFSET $%d", q.idx, q.idx+1)
}

// DataArgs returns the filter args followed by limit and offset.
func (q *Query) DataArgs(limit, offset int) []interface{} {
	out := make([]interface{}, len(q.args)+2)
	copy(out, q.args)
	out[len(q.args)] = limit
	out[len(q.args)+1] = offset
	return out
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
