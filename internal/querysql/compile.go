package querysql

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/gall/internal/queryexpr"
)

// ErrNotPortable is returned for a lambda outside the fragment that maps
// onto a flat row. See queryexpr.Validate.
var ErrNotPortable = errors.New("lambda is not portable to SQL")

// stableOrderKey is appended to every ORDER BY so that rows with equal sort
// keys come back in the same order on every run.
const stableOrderKey = "id COLLATE BINARY ASC"

// SQLCompiler lowers compiled lambdas to parameterized SQL for SQLite.
//
// Every statement built by CompileSearch has an ORDER BY ending in the id
// tie-breaker, and every value is passed as a ? parameter, never
// interpolated into the SQL text.
type SQLCompiler struct {
	// Table is the table the search reads.
	Table string

	// Columns maps entry property names to column names.
	Columns map[string]string

	// TextColumns are matched by the free-text part of a search.
	TextColumns []string
}

// NewSQLCompiler creates a compiler for table with the given property to
// column mapping. The free text searches the name and description columns.
func NewSQLCompiler(table string, columns map[string]string) *SQLCompiler {
	return &SQLCompiler{
		Table:       table,
		Columns:     columns,
		TextColumns: []string{"name", "description"},
	}
}

// SearchQuery is everything a search statement is built from. Nil lambdas
// and pointers are omitted from the statement.
type SearchQuery struct {
	Text       string
	Where      *queryexpr.Lambda
	OrderBy    *queryexpr.Lambda
	Descending bool
	Skip       *int
	Take       *int
}

// CompileSearch builds the full SELECT for q.
// Returns (sql, params, error) tuple.
func (c *SQLCompiler) CompileSearch(q SearchQuery) (string, []any, error) {
	var conds []string
	var params []any

	if text := strings.TrimSpace(q.Text); text != "" {
		sql, textParams := c.compileText(text)
		conds = append(conds, sql)
		params = append(params, textParams...)
	}
	if q.Where != nil {
		sql, whereParams, err := c.CompileWhere(q.Where)
		if err != nil {
			return "", nil, fmt.Errorf("compile where: %w", err)
		}
		conds = append(conds, sql)
		params = append(params, whereParams...)
	}

	order, err := c.CompileOrderBy(q.OrderBy, q.Descending)
	if err != nil {
		return "", nil, fmt.Errorf("compile order by: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", c.selectList(), c.Table)
	if len(conds) > 0 {
		b.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	b.WriteString(" ORDER BY " + order)

	switch {
	case q.Take != nil && *q.Take < 0:
		return "", nil, fmt.Errorf("take must not be negative: %d", *q.Take)
	case q.Skip != nil && *q.Skip < 0:
		return "", nil, fmt.Errorf("skip must not be negative: %d", *q.Skip)
	}
	if q.Take != nil || q.Skip != nil {
		// SQLite only accepts OFFSET after a LIMIT; -1 means no limit.
		limit := -1
		if q.Take != nil {
			limit = *q.Take
		}
		b.WriteString(" LIMIT ?")
		params = append(params, int64(limit))
		if q.Skip != nil {
			b.WriteString(" OFFSET ?")
			params = append(params, int64(*q.Skip))
		}
	}
	return b.String(), params, nil
}

// selectList returns the mapped columns, sorted for deterministic output.
func (c *SQLCompiler) selectList() string {
	if len(c.Columns) == 0 {
		return "*"
	}
	cols := make([]string, 0, len(c.Columns))
	for _, col := range c.Columns {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return strings.Join(cols, ", ")
}

// compileText matches text anywhere in any text column, ignoring ASCII case.
func (c *SQLCompiler) compileText(text string) (string, []any) {
	pattern := "%" + escapeLike(strings.ToLower(text)) + "%"
	parts := make([]string, len(c.TextColumns))
	params := make([]any, len(c.TextColumns))
	for i, col := range c.TextColumns {
		parts[i] = fmt.Sprintf(`lower(%s) LIKE ? ESCAPE '\'`, col)
		params[i] = pattern
	}
	return "(" + strings.Join(parts, " OR ") + ")", params
}

// CompileWhere lowers a predicate lambda to a WHERE clause fragment.
// A nil lambda is always true.
func (c *SQLCompiler) CompileWhere(l *queryexpr.Lambda) (string, []any, error) {
	if l == nil {
		return "1 = 1", nil, nil
	}
	if l.Result != queryexpr.BoolType {
		return "", nil, fmt.Errorf("where lambda must return bool, not %s", l.Result)
	}
	if err := portable(l); err != nil {
		return "", nil, err
	}
	return c.compilePredicate(l.Body)
}

// CompileOrderBy lowers a selector lambda to an ORDER BY list. The
// selector must pick a property of the parameter. A nil lambda orders by
// id only.
func (c *SQLCompiler) CompileOrderBy(l *queryexpr.Lambda, descending bool) (string, error) {
	if l == nil {
		return stableOrderKey, nil
	}
	if err := portable(l); err != nil {
		return "", err
	}
	body := l.Body
	if conv, ok := body.(*queryexpr.Convert); ok {
		body = conv.Operand
	}
	prop, ok := body.(*queryexpr.PropertyAccess)
	if !ok {
		return "", fmt.Errorf("order by must select a property, not %s", body)
	}
	col, err := c.column(prop)
	if err != nil {
		return "", err
	}
	dir := "ASC"
	if descending {
		dir = "DESC"
	}
	return fmt.Sprintf("%s %s, %s", col, dir, stableOrderKey), nil
}

func portable(l *queryexpr.Lambda) error {
	if res := queryexpr.Validate(l); !res.IsPortable {
		return fmt.Errorf("%w: %s", ErrNotPortable, strings.Join(res.Warnings, "; "))
	}
	return nil
}

// compilePredicate compiles a bool expression to a WHERE fragment.
// Returns (sql, params, error).
func (c *SQLCompiler) compilePredicate(e queryexpr.Expr) (string, []any, error) {
	switch e := e.(type) {
	case *queryexpr.Logical:
		return c.compileLogical(e)
	case *queryexpr.Comparison:
		return c.compileComparison(e)
	case *queryexpr.Membership:
		return c.compileMembership(e)
	case *queryexpr.SubstringMatch:
		return c.compileSubstring(e)
	case *queryexpr.PropertyAccess:
		col, err := c.column(e)
		if err != nil {
			return "", nil, err
		}
		return col + " = 1", nil, nil
	case *queryexpr.Constant:
		if b, ok := e.Value.(bool); ok {
			if b {
				return "1 = 1", nil, nil
			}
			return "0 = 1", nil, nil
		}
	}
	return "", nil, fmt.Errorf("unsupported predicate: %s", e)
}

func (c *SQLCompiler) compileLogical(e *queryexpr.Logical) (string, []any, error) {
	left, lp, err := c.compilePredicate(e.Left)
	if err != nil {
		return "", nil, err
	}
	right, rp, err := c.compilePredicate(e.Right)
	if err != nil {
		return "", nil, err
	}
	op := " AND "
	if e.Op == queryexpr.Or {
		op = " OR "
	}
	return "(" + left + op + right + ")", append(lp, rp...), nil
}

func (c *SQLCompiler) compileComparison(e *queryexpr.Comparison) (string, []any, error) {
	op, left, right := e.Op, e.Left, e.Right
	if _, ok := left.(*queryexpr.Constant); ok {
		op, left, right = op.Flip(), right, left
	}

	if k, ok := right.(*queryexpr.Constant); ok && k.IsNull() {
		return c.compileNull(op, left)
	}

	l, lp, err := c.operand(left)
	if err != nil {
		return "", nil, err
	}
	r, rp, err := c.operand(right)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("%s %s %s", l, sqlOperators[op], r), append(lp, rp...), nil
}

var sqlOperators = map[queryexpr.CompareOp]string{
	queryexpr.Eq: "=",
	queryexpr.Ne: "<>",
	queryexpr.Ge: ">=",
	queryexpr.Gt: ">",
	queryexpr.Le: "<=",
	queryexpr.Lt: "<",
}

// compileNull handles a comparison against null. An empty string equals
// null, matching in-process evaluation.
func (c *SQLCompiler) compileNull(op queryexpr.CompareOp, e queryexpr.Expr) (string, []any, error) {
	col, params, err := c.operand(e)
	if err != nil {
		return "", nil, err
	}
	if e.Type().Kind() == reflect.String {
		if op == queryexpr.Eq {
			return fmt.Sprintf("COALESCE(%s, '') = ''", col), params, nil
		}
		return fmt.Sprintf("COALESCE(%s, '') <> ''", col), params, nil
	}
	if op == queryexpr.Eq {
		return col + " IS NULL", params, nil
	}
	return col + " IS NOT NULL", params, nil
}

func (c *SQLCompiler) compileMembership(e *queryexpr.Membership) (string, []any, error) {
	left, params, err := c.operand(e.Left)
	if err != nil {
		return "", nil, err
	}
	k, ok := e.Right.(*queryexpr.Constant)
	if !ok {
		return "", nil, fmt.Errorf("the list of %s must be a constant", e)
	}
	list, _ := k.Value.([]string)
	if len(list) == 0 {
		return "0 = 1", nil, nil
	}
	marks := make([]string, len(list))
	for i, s := range list {
		marks[i] = "?"
		params = append(params, s)
	}
	return fmt.Sprintf("%s IN (%s)", left, strings.Join(marks, ", ")), params, nil
}

func (c *SQLCompiler) compileSubstring(e *queryexpr.SubstringMatch) (string, []any, error) {
	left, params, err := c.operand(e.Left)
	if err != nil {
		return "", nil, err
	}
	pattern := "%" + escapeLike(e.Pattern()) + "%"
	return left + ` LIKE ? ESCAPE '\'`, append(params, pattern), nil
}

// operand renders a value position: a column or a ? parameter.
func (c *SQLCompiler) operand(e queryexpr.Expr) (string, []any, error) {
	switch e := e.(type) {
	case *queryexpr.PropertyAccess:
		col, err := c.column(e)
		return col, nil, err
	case *queryexpr.Constant:
		v, err := DriverValue(e.Value)
		if err != nil {
			return "", nil, fmt.Errorf("convert %s: %w", e, err)
		}
		return "?", []any{v}, nil
	case *queryexpr.Convert:
		return c.operand(e.Operand)
	}
	return "", nil, fmt.Errorf("unsupported operand: %s", e)
}

func (c *SQLCompiler) column(p *queryexpr.PropertyAccess) (string, error) {
	col, ok := c.Columns[p.Name]
	if !ok {
		return "", fmt.Errorf("property %s has no column", p.Name)
	}
	return col, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// DriverValue converts a constant to the value stored in its column:
// times as Unix nanoseconds (the zero time as 0), versions as their
// sortable key, UUIDs as strings, and every integer as int64.
func DriverValue(v any) (any, error) {
	switch x := v.(type) {
	case nil, string, bool, int64, float64, []byte:
		return x, nil
	case time.Time:
		if x.IsZero() {
			return int64(0), nil
		}
		return x.UnixNano(), nil
	case uuid.UUID:
		return x.String(), nil
	case float32:
		return float64(x), nil
	case driver.Valuer:
		return x.Value()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return nil, fmt.Errorf("unsigned value %d overflows int64", u)
		}
		return int64(u), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String(), nil
	}
	return nil, fmt.Errorf("unsupported parameter type %T", v)
}
