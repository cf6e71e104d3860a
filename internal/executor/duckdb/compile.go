package duckdb

import (
	"fmt"
	"strings"

	"github.com/linkreach/linkreach/internal/predicate"
)

var dateFormats = []string{
	"%d %b %Y",
	"%Y-%m-%d",
	"%m/%d/%Y",
	"%b %d, %Y",
	"%B %d, %Y",
	"%Y-%m-%d %H:%M:%S",
}

// compiler turns a predicate into a DuckDB boolean expression. Literals are
// bound as numbered parameters, so a fragment may appear more than once in
// the output without duplicating arguments. The expression yields NULL for
// rows the interpreter would report as evaluation errors.
type compiler struct {
	args []any
}

func compile(expr predicate.Expr) (string, []any, error) {
	c := &compiler{}
	sqlText, err := c.condition(expr)
	if err != nil {
		return "", nil, err
	}
	return sqlText, c.args, nil
}

func (c *compiler) condition(expr predicate.Expr) (string, error) {
	switch typed := expr.(type) {
	case predicate.Logical:
		left, err := c.condition(typed.Left)
		if err != nil {
			return "", err
		}
		right, err := c.condition(typed.Right)
		if err != nil {
			return "", err
		}
		// A NULL on the left stays NULL even when the right side would decide
		// the result, matching the interpreter's left-to-right evaluation.
		if typed.Op == predicate.And {
			return fmt.Sprintf("(CASE (%s) WHEN TRUE THEN (%s) WHEN FALSE THEN FALSE END)", left, right), nil
		}
		return fmt.Sprintf("(CASE (%s) WHEN TRUE THEN TRUE WHEN FALSE THEN (%s) END)", left, right), nil
	case predicate.Not:
		operand, err := c.condition(typed.Operand)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(NOT (%s))", operand), nil
	case predicate.Compare:
		return c.compare(typed)
	case predicate.Literal:
		if typed.Kind == predicate.BoolLiteral {
			return c.bind(typed.Bool) + "::BOOLEAN", nil
		}
	}
	return "", fmt.Errorf("%s is not a condition", expr)
}

func (c *compiler) compare(cmp predicate.Compare) (string, error) {
	left, err := c.value(cmp.Left)
	if err != nil {
		return "", err
	}

	// in and matches bind their right side themselves.
	switch cmp.Op {
	case predicate.OpIn:
		list, ok := cmp.Right.(predicate.List)
		if !ok || len(list.Items) == 0 {
			return "", fmt.Errorf("right side of in must be a non-empty list")
		}
		parts := make([]string, 0, len(list.Items))
		for _, item := range list.Items {
			parts = append(parts, equal(left, c.bind(item.Text)+"::VARCHAR"))
		}
		return "(" + strings.Join(parts, " OR ") + ")", nil
	case predicate.OpMatches:
		pattern, ok := cmp.Right.(predicate.Literal)
		if !ok || pattern.Kind != predicate.StringLiteral {
			return "", fmt.Errorf("matches requires a string pattern")
		}
		return fmt.Sprintf("regexp_matches(%s, %s::VARCHAR)", left, c.bind("(?i)"+pattern.Text)), nil
	}

	right, err := c.value(cmp.Right)
	if err != nil {
		return "", err
	}

	switch cmp.Op {
	case predicate.OpEq:
		return equal(left, right), nil
	case predicate.OpNe:
		return "(NOT " + equal(left, right) + ")", nil
	case predicate.OpContains:
		return fmt.Sprintf("contains(lower(%s), lower(%s))", left, right), nil
	case predicate.OpStartsWith:
		return fmt.Sprintf("starts_with(lower(%s), lower(%s))", left, right), nil
	case predicate.OpEndsWith:
		return fmt.Sprintf("suffix(lower(%s), lower(%s))", left, right), nil
	case predicate.OpLt, predicate.OpLe, predicate.OpGt, predicate.OpGe:
		op := string(cmp.Op)
		return fmt.Sprintf(
			"(CASE WHEN %s AND %s THEN %s %s %s WHEN %s IS NOT NULL AND %s IS NOT NULL THEN %s %s %s ELSE NULL END)",
			isNumber(left), isNumber(right), number(left), op, number(right),
			date(left), date(right), date(left), op, date(right),
		), nil
	}
	return "", fmt.Errorf("unsupported operator %q", cmp.Op)
}

func (c *compiler) value(expr predicate.Expr) (string, error) {
	switch typed := expr.(type) {
	case predicate.Column:
		return quoteIdent(typed.Name), nil
	case predicate.Literal:
		return c.bind(typed.Text) + "::VARCHAR", nil
	}
	return "", fmt.Errorf("%s is not a value", expr)
}

func (c *compiler) bind(value any) string {
	c.args = append(c.args, value)
	return fmt.Sprintf("$%d", len(c.args))
}

// equal compares numerically when both sides are finite numbers and as exact
// text otherwise.
func equal(left, right string) string {
	return fmt.Sprintf("(CASE WHEN %s AND %s THEN %s = %s ELSE %s = %s END)",
		isNumber(left), isNumber(right), number(left), number(right), left, right)
}

func number(value string) string {
	return fmt.Sprintf("TRY_CAST(trim(%s) AS DOUBLE)", value)
}

func isNumber(value string) string {
	return fmt.Sprintf("coalesce(isfinite(%s), FALSE)", number(value))
}

func date(value string) string {
	return fmt.Sprintf("try_strptime(trim(%s), %s)", value, quoteStringArray(dateFormats))
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `'`+strings.ReplaceAll(value, `'`, `''`)+`'`)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}
