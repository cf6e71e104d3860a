package predicate

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/linkreach/linkreach/internal/dataset"
)

// ErrEvaluation marks a failure to evaluate the predicate for one row, for
// example an ordering comparison between values that are neither numbers
// nor dates.
var ErrEvaluation = errors.New("row evaluation error")

var dateLayouts = []string{
	"02 Jan 2006",
	"2 Jan 2006",
	"2006-01-02",
	"01/02/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// Matcher evaluates a validated expression against rows. Patterns are
// compiled once, so a Matcher is safe for concurrent use.
type Matcher struct {
	expr     Expr
	patterns map[string]*regexp.Regexp
}

func NewMatcher(expr Expr) (*Matcher, error) {
	if expr == nil {
		return nil, fmt.Errorf("%w: expression is empty", ErrInvalid)
	}
	m := &Matcher{expr: expr, patterns: map[string]*regexp.Regexp{}}
	var compileErr error
	Walk(expr, func(node Expr, _ int) bool {
		cmp, ok := node.(Compare)
		if !ok || cmp.Op != OpMatches {
			return compileErr == nil
		}
		pattern, ok := cmp.Right.(Literal)
		if !ok {
			compileErr = fmt.Errorf("%w: matches requires a string pattern", ErrInvalid)
			return false
		}
		if _, done := m.patterns[pattern.Text]; done {
			return true
		}
		re, err := compilePattern(pattern.Text)
		if err != nil {
			compileErr = fmt.Errorf("%w: bad pattern: %v", ErrInvalid, err)
			return false
		}
		m.patterns[pattern.Text] = re
		return true
	})
	if compileErr != nil {
		return nil, compileErr
	}
	return m, nil
}

func (m *Matcher) Expr() Expr {
	return m.expr
}

// Match reports whether row satisfies the expression. Logical operators
// short-circuit, so an error on the right of a decided and/or is never seen.
func (m *Matcher) Match(row dataset.Row) (bool, error) {
	return m.eval(m.expr, row)
}

func (m *Matcher) eval(expr Expr, row dataset.Row) (bool, error) {
	switch typed := expr.(type) {
	case Logical:
		left, err := m.eval(typed.Left, row)
		if err != nil {
			return false, err
		}
		if typed.Op == And && !left {
			return false, nil
		}
		if typed.Op == Or && left {
			return true, nil
		}
		return m.eval(typed.Right, row)
	case Not:
		value, err := m.eval(typed.Operand, row)
		if err != nil {
			return false, err
		}
		return !value, nil
	case Compare:
		return m.compare(typed, row)
	case Literal:
		if typed.Kind == BoolLiteral {
			return typed.Bool, nil
		}
	}
	return false, fmt.Errorf("%w: %s is not a condition", ErrEvaluation, expr)
}

func (m *Matcher) compare(cmp Compare, row dataset.Row) (bool, error) {
	left, err := operandText(cmp.Left, row)
	if err != nil {
		return false, err
	}

	if cmp.Op == OpIn {
		list, ok := cmp.Right.(List)
		if !ok {
			return false, fmt.Errorf("%w: right side of in must be a list", ErrEvaluation)
		}
		for _, item := range list.Items {
			if equalValues(left, item.Text) {
				return true, nil
			}
		}
		return false, nil
	}

	right, err := operandText(cmp.Right, row)
	if err != nil {
		return false, err
	}

	switch cmp.Op {
	case OpEq:
		return equalValues(left, right), nil
	case OpNe:
		return !equalValues(left, right), nil
	case OpContains:
		return strings.Contains(strings.ToLower(left), strings.ToLower(right)), nil
	case OpStartsWith:
		return strings.HasPrefix(strings.ToLower(left), strings.ToLower(right)), nil
	case OpEndsWith:
		return strings.HasSuffix(strings.ToLower(left), strings.ToLower(right)), nil
	case OpMatches:
		re, ok := m.patterns[right]
		if !ok {
			return false, fmt.Errorf("%w: pattern %q was not compiled", ErrEvaluation, right)
		}
		return re.MatchString(left), nil
	}

	if cmp.Op.ordering() {
		order, err := orderValues(left, right)
		if err != nil {
			return false, fmt.Errorf("%w: %s: %v", ErrEvaluation, cmp, err)
		}
		switch cmp.Op {
		case OpLt:
			return order < 0, nil
		case OpLe:
			return order <= 0, nil
		case OpGt:
			return order > 0, nil
		case OpGe:
			return order >= 0, nil
		}
	}
	return false, fmt.Errorf("%w: unsupported operator %q", ErrEvaluation, cmp.Op)
}

func operandText(expr Expr, row dataset.Row) (string, error) {
	switch typed := expr.(type) {
	case Column:
		value, ok := row[typed.Name]
		if !ok {
			return "", fmt.Errorf("%w: row has no column %q", ErrEvaluation, typed.Name)
		}
		return value, nil
	case Literal:
		return typed.Text, nil
	}
	return "", fmt.Errorf("%w: %s is not a value", ErrEvaluation, expr)
}

// equalValues compares numerically when both sides are numbers and as exact
// text otherwise.
func equalValues(left, right string) bool {
	if l, lok := parseNumber(left); lok {
		if r, rok := parseNumber(right); rok {
			return l == r
		}
	}
	return left == right
}

func orderValues(left, right string) (int, error) {
	if l, lok := parseNumber(left); lok {
		if r, rok := parseNumber(right); rok {
			return compareFloat(l, r), nil
		}
	}
	if l, lok := parseDate(left); lok {
		if r, rok := parseDate(right); rok {
			return l.Compare(r), nil
		}
	}
	return 0, fmt.Errorf("cannot order %q and %q", left, right)
}

func compareFloat(l, r float64) int {
	switch {
	case l < r:
		return -1
	case l > r:
		return 1
	}
	return 0
}

func parseNumber(value string) (float64, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, false
	}
	parsed, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0, false
	}
	return parsed, true
}

func parseDate(value string) (time.Time, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}
