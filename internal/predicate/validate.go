package predicate

import (
	"fmt"
	"regexp"
)

type Limits struct {
	MaxDepth      int
	MaxNodes      int
	MaxListLength int
	MaxPatternLen int
}

func DefaultLimits() Limits {
	return Limits{
		MaxDepth:      32,
		MaxNodes:      256,
		MaxListLength: 100,
		MaxPatternLen: 256,
	}
}

// Validate checks that expr is a boolean predicate over the given columns
// and stays inside limits. Zero-valued limits fall back to DefaultLimits.
func Validate(expr Expr, columns []string, limits Limits) error {
	if expr == nil {
		return fmt.Errorf("%w: expression is empty", ErrInvalid)
	}
	limits = limits.withDefaults()

	known := make(map[string]struct{}, len(columns))
	for _, column := range columns {
		known[column] = struct{}{}
	}

	if !isBoolean(expr) {
		return fmt.Errorf("%w: %s is not a condition; compare a column with a value", ErrInvalid, expr)
	}

	var (
		nodes    int
		firstErr error
	)
	Walk(expr, func(node Expr, depth int) bool {
		if firstErr != nil {
			return false
		}
		nodes++
		if depth > limits.MaxDepth {
			firstErr = fmt.Errorf("%w: nesting deeper than %d", ErrInvalid, limits.MaxDepth)
			return false
		}
		if nodes > limits.MaxNodes {
			firstErr = fmt.Errorf("%w: more than %d nodes", ErrInvalid, limits.MaxNodes)
			return false
		}
		switch typed := node.(type) {
		case Column:
			if _, ok := known[typed.Name]; !ok {
				firstErr = fmt.Errorf("%w: unknown column %q", ErrInvalid, typed.Name)
			}
		case Logical:
			if !isBoolean(typed.Left) || !isBoolean(typed.Right) {
				firstErr = fmt.Errorf("%w: operands of %s must be conditions", ErrInvalid, typed.Op)
			}
		case Not:
			if !isBoolean(typed.Operand) {
				firstErr = fmt.Errorf("%w: operand of not must be a condition", ErrInvalid)
			}
		case Compare:
			firstErr = validateCompare(typed, limits)
		case List:
			if len(typed.Items) > limits.MaxListLength {
				firstErr = fmt.Errorf("%w: list longer than %d items", ErrInvalid, limits.MaxListLength)
			}
		}
		return firstErr == nil
	})
	return firstErr
}

func validateCompare(cmp Compare, limits Limits) error {
	if !isValue(cmp.Left) {
		return fmt.Errorf("%w: left side of %s must be a column or value", ErrInvalid, cmp.Op)
	}
	_, rightIsList := cmp.Right.(List)
	if cmp.Op == OpIn {
		if !rightIsList {
			return fmt.Errorf("%w: right side of in must be a list", ErrInvalid)
		}
		return nil
	}
	if rightIsList {
		return fmt.Errorf("%w: lists are only allowed after in", ErrInvalid)
	}
	if !isValue(cmp.Right) {
		return fmt.Errorf("%w: right side of %s must be a column or value", ErrInvalid, cmp.Op)
	}
	if cmp.Op == OpMatches {
		pattern, ok := cmp.Right.(Literal)
		if !ok || pattern.Kind != StringLiteral {
			return fmt.Errorf("%w: matches requires a string pattern", ErrInvalid)
		}
		if len(pattern.Text) > limits.MaxPatternLen {
			return fmt.Errorf("%w: pattern longer than %d characters", ErrInvalid, limits.MaxPatternLen)
		}
		if _, err := compilePattern(pattern.Text); err != nil {
			return fmt.Errorf("%w: bad pattern: %v", ErrInvalid, err)
		}
	}
	return nil
}

func isBoolean(expr Expr) bool {
	switch expr.(type) {
	case Compare, Logical, Not:
		return true
	}
	return false
}

func isValue(expr Expr) bool {
	switch expr.(type) {
	case Column, Literal:
		return true
	}
	return false
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + pattern)
}

func (l Limits) withDefaults() Limits {
	defaults := DefaultLimits()
	if l.MaxDepth <= 0 {
		l.MaxDepth = defaults.MaxDepth
	}
	if l.MaxNodes <= 0 {
		l.MaxNodes = defaults.MaxNodes
	}
	if l.MaxListLength <= 0 {
		l.MaxListLength = defaults.MaxListLength
	}
	if l.MaxPatternLen <= 0 {
		l.MaxPatternLen = defaults.MaxPatternLen
	}
	return l
}
