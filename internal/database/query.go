package database

import (
	"fmt"
	"strings"
)

// FilterOp is a comparison operator in a run query. The set is deliberately
// small: equality for the dashboard's field:op:value filters, and the
// less-than / not-equal pair the retention pruner needs for its cutoff scan.
type FilterOp string

const (
	OpEq FilterOp = "eq"
	OpNe FilterOp = "ne"
	OpLt FilterOp = "lt"
)

var filterClauses = map[FilterOp]string{
	OpEq: "=",
	OpNe: "!=",
	OpLt: "<",
}

// Filter is one WHERE condition. Every supported operator binds a single
// placeholder value.
type Filter struct {
	Field string
	Op    FilterOp
	Value any
}

func (f Filter) clause() string {
	cmp, ok := filterClauses[f.Op]
	if !ok {
		cmp = "="
	}
	return fmt.Sprintf("%s %s ?", f.Field, cmp)
}

type SortOrder string

const (
	SortAsc  SortOrder = "ASC"
	SortDesc SortOrder = "DESC"
)

// QueryBuilder assembles SELECT statements for the runs table.
type QueryBuilder struct {
	table   string
	selects []string
	filters []Filter
	orderBy []string
	limit   int
	offset  int
}

func NewQuery(table string) *QueryBuilder {
	return &QueryBuilder{table: table, selects: []string{"*"}}
}

func (q *QueryBuilder) Select(fields ...string) *QueryBuilder {
	q.selects = fields
	return q
}

func (q *QueryBuilder) Filter(field string, op FilterOp, value any) *QueryBuilder {
	q.filters = append(q.filters, Filter{Field: field, Op: op, Value: value})
	return q
}

func (q *QueryBuilder) Where(field string, value any) *QueryBuilder {
	return q.Filter(field, OpEq, value)
}

func (q *QueryBuilder) OrderBy(field string) *QueryBuilder {
	q.orderBy = append(q.orderBy, fmt.Sprintf("%s %s", field, SortAsc))
	return q
}

func (q *QueryBuilder) OrderByDesc(field string) *QueryBuilder {
	q.orderBy = append(q.orderBy, fmt.Sprintf("%s %s", field, SortDesc))
	return q
}

func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.limit = n
	return q
}

func (q *QueryBuilder) Offset(n int) *QueryBuilder {
	q.offset = n
	return q
}

func (q *QueryBuilder) Build() (string, []any) {
	var sb strings.Builder
	var args []any

	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(q.selects, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(q.table)

	if len(q.filters) > 0 {
		conditions := make([]string, len(q.filters))
		for i, f := range q.filters {
			conditions[i] = f.clause()
			args = append(args, f.Value)
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conditions, " AND "))
	}

	if len(q.orderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(q.orderBy, ", "))
	}

	if q.limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.limit)
	}
	if q.offset > 0 {
		fmt.Fprintf(&sb, " OFFSET %d", q.offset)
	}

	return sb.String(), args
}

// InsertBuilder assembles the INSERT for a new run record.
type InsertBuilder struct {
	table  string
	fields []string
	values []any
}

func NewInsert(table string) *InsertBuilder {
	return &InsertBuilder{table: table}
}

func (b *InsertBuilder) Set(field string, value any) *InsertBuilder {
	b.fields = append(b.fields, field)
	b.values = append(b.values, value)
	return b
}

func (b *InsertBuilder) Build() (string, []any) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(b.fields)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		b.table, strings.Join(b.fields, ", "), placeholders)
	return query, b.values
}

// UpdateBuilder assembles the UPDATE that finalizes a run record.
type UpdateBuilder struct {
	table  string
	sets   []string
	wheres []string
	args   []any
}

func NewUpdate(table string) *UpdateBuilder {
	return &UpdateBuilder{table: table}
}

func (b *UpdateBuilder) Set(field string, value any) *UpdateBuilder {
	b.sets = append(b.sets, field+" = ?")
	b.args = append(b.args, value)
	return b
}

func (b *UpdateBuilder) Where(field string, value any) *UpdateBuilder {
	b.wheres = append(b.wheres, field+" = ?")
	b.args = append(b.args, value)
	return b
}

func (b *UpdateBuilder) Build() (string, []any) {
	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(b.table)
	sb.WriteString(" SET ")
	sb.WriteString(strings.Join(b.sets, ", "))
	if len(b.wheres) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.wheres, " AND "))
	}
	return sb.String(), b.args
}

// DeleteBuilder assembles the DELETE used when pruning run records.
type DeleteBuilder struct {
	table  string
	wheres []string
	args   []any
}

func NewDelete(table string) *DeleteBuilder {
	return &DeleteBuilder{table: table}
}

func (b *DeleteBuilder) Where(field string, value any) *DeleteBuilder {
	b.wheres = append(b.wheres, field+" = ?")
	b.args = append(b.args, value)
	return b
}

func (b *DeleteBuilder) Build() (string, []any) {
	var sb strings.Builder
	sb.WriteString("DELETE FROM ")
	sb.WriteString(b.table)
	if len(b.wheres) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.wheres, " AND "))
	}
	return sb.String(), b.args
}

// ParseSortString parses a dashboard sort parameter. A leading "-" means
// descending, a leading "+" or no prefix means ascending.
func ParseSortString(s string) (field string, order SortOrder) {
	switch {
	case strings.HasPrefix(s, "-"):
		return s[1:], SortDesc
	case strings.HasPrefix(s, "+"):
		return s[1:], SortAsc
	default:
		return s, SortAsc
	}
}

// ParseFilterString parses a field:op:value dashboard filter parameter.
// Unknown operators are rejected rather than silently treated as equality.
func ParseFilterString(s string) (*Filter, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid filter format: %s", s)
	}

	op := FilterOp(parts[1])
	if _, ok := filterClauses[op]; !ok {
		return nil, fmt.Errorf("unsupported filter op: %s", parts[1])
	}

	var value any
	if len(parts) > 2 {
		value = parts[2]
	}
	return &Filter{Field: parts[0], Op: op, Value: value}, nil
}
