// ABOUTME: Builds parameterized SELECT and GROUP BY statements from Query and Aggregate values
// ABOUTME: Every identifier is checked against a per-table column whitelist

package store

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

var tableColumns = map[string][]string{
	TableOrders: {
		"id", "transaction_id", "name", "amount", "status",
		"product_id", "quantity", "created_at", "updated_at",
	},
	TableProducts: {
		"id", "name", "description", "price", "stock_quantity",
		"category", "is_active", "created_at", "updated_at",
	},
	TableOrderDetails: {
		"id", "transaction_id", "customer_name", "amount", "status",
		"product_id", "product_name", "quantity", "created_at", "updated_at",
	},
}

// Columns returns the columns a table exposes, in declaration order.
func Columns(table string) []string {
	return slices.Clone(tableColumns[table])
}

type builder struct {
	d     dialect
	sql   strings.Builder
	args  []any
	table string
	cols  []string
}

func newBuilder(d dialect, table string) (*builder, error) {
	cols, ok := tableColumns[table]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	return &builder{d: d, table: table, cols: cols}, nil
}

func (b *builder) column(name string) (string, error) {
	if !slices.Contains(b.cols, name) {
		return "", fmt.Errorf("%w: %s.%s", ErrUnknownColumn, b.table, name)
	}
	return name, nil
}

func (b *builder) bind(v any) string {
	b.args = append(b.args, v)
	return b.d.placeholder(len(b.args))
}

func (b *builder) where(filters []Filter) error {
	if len(filters) == 0 {
		return nil
	}
	conds := make([]string, 0, len(filters))
	for _, f := range filters {
		col, err := b.column(f.Column)
		if err != nil {
			return err
		}
		switch f.Op {
		case OpEq, "":
			conds = append(conds, col+" = "+b.bind(f.Value))
		case OpLike:
			conds = append(conds, col+" "+b.d.likeOp()+" "+b.bind(containsPattern(f.Value))+" ESCAPE '"+likeEscape+"'")
		case OpGte:
			conds = append(conds, col+" >= "+b.bind(f.Value))
		case OpLte:
			conds = append(conds, col+" <= "+b.bind(f.Value))
		case OpDateGte:
			conds = append(conds, b.d.dateOf(col)+" >= "+b.bind(f.Value))
		case OpDateLte:
			conds = append(conds, b.d.dateOf(col)+" <= "+b.bind(f.Value))
		default:
			return fmt.Errorf("unsupported filter operator %q", f.Op)
		}
	}
	b.sql.WriteString(" WHERE ")
	b.sql.WriteString(strings.Join(conds, " AND "))
	return nil
}

func (b *builder) orderBy(sorts []Sort, allowed func(string) bool) error {
	if len(sorts) == 0 {
		return nil
	}
	parts := make([]string, 0, len(sorts))
	for _, s := range sorts {
		if !allowed(s.Column) {
			return fmt.Errorf("%w: cannot sort %s by %q", ErrUnknownColumn, b.table, s.Column)
		}
		dir := "ASC"
		if s.Desc {
			dir = "DESC"
		}
		parts = append(parts, s.Column+" "+dir)
	}
	b.sql.WriteString(" ORDER BY ")
	b.sql.WriteString(strings.Join(parts, ", "))
	return nil
}

func (b *builder) limit(n int) {
	if n > 0 {
		b.sql.WriteString(" LIMIT ")
		b.sql.WriteString(strconv.Itoa(n))
	}
}

// buildSelect renders a Query as SQL plus bind arguments.
func buildSelect(d dialect, q Query) (string, []any, error) {
	b, err := newBuilder(d, q.Table)
	if err != nil {
		return "", nil, err
	}

	cols := q.Columns
	if len(cols) == 0 {
		cols = b.cols
	}
	for _, c := range cols {
		if _, err := b.column(c); err != nil {
			return "", nil, err
		}
	}

	b.sql.WriteString("SELECT ")
	b.sql.WriteString(strings.Join(cols, ", "))
	b.sql.WriteString(" FROM ")
	b.sql.WriteString(q.Table)

	if err := b.where(q.Filters); err != nil {
		return "", nil, err
	}
	if err := b.orderBy(q.Sort, func(c string) bool { return slices.Contains(b.cols, c) }); err != nil {
		return "", nil, err
	}
	b.limit(q.Limit)
	return b.sql.String(), b.args, nil
}

// buildAggregate renders an Aggregate as SQL plus bind arguments.
func buildAggregate(d dialect, a Aggregate) (string, []any, error) {
	b, err := newBuilder(d, a.Table)
	if err != nil {
		return "", nil, err
	}
	if len(a.Metrics) == 0 && len(a.GroupBy) == 0 {
		return "", nil, fmt.Errorf("aggregate on %s has no metrics or groups", a.Table)
	}

	var selects, groups, aliases []string
	for _, g := range a.GroupBy {
		col, err := b.column(g.Column)
		if err != nil {
			return "", nil, err
		}
		alias := g.Alias
		if alias == "" {
			alias = col
		}
		expr := d.part(col, g.Part)
		groups = append(groups, expr)
		if expr == alias {
			selects = append(selects, expr)
		} else {
			selects = append(selects, expr+" AS "+alias)
		}
		aliases = append(aliases, alias)
	}

	for _, m := range a.Metrics {
		expr, err := b.metric(m)
		if err != nil {
			return "", nil, err
		}
		if m.Alias == "" {
			return "", nil, fmt.Errorf("metric %s(%s) needs an alias", m.Func, m.Column)
		}
		selects = append(selects, expr+" AS "+m.Alias)
		aliases = append(aliases, m.Alias)
	}

	b.sql.WriteString("SELECT ")
	b.sql.WriteString(strings.Join(selects, ", "))
	b.sql.WriteString(" FROM ")
	b.sql.WriteString(a.Table)

	if err := b.where(a.Filters); err != nil {
		return "", nil, err
	}
	if len(groups) > 0 {
		b.sql.WriteString(" GROUP BY ")
		b.sql.WriteString(strings.Join(groups, ", "))
	}
	if err := b.orderBy(a.Sort, func(c string) bool { return slices.Contains(aliases, c) }); err != nil {
		return "", nil, err
	}
	b.limit(a.Limit)
	return b.sql.String(), b.args, nil
}

func (b *builder) metric(m Metric) (string, error) {
	if m.Func == FuncCount {
		return "COUNT(*)", nil
	}
	col, err := b.column(m.Column)
	if err != nil {
		return "", err
	}
	switch m.Func {
	case FuncCountDistinct:
		return "COUNT(DISTINCT " + col + ")", nil
	case FuncSum:
		return "SUM(" + col + ")", nil
	case FuncAvg:
		return "AVG(" + col + ")", nil
	case FuncMin:
		return "MIN(" + col + ")", nil
	case FuncMax:
		return "MAX(" + col + ")", nil
	default:
		return "", fmt.Errorf("unsupported aggregate function %q", m.Func)
	}
}
