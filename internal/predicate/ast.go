// Package predicate implements the small row-filter language the generator
// is asked to write. Expressions are parsed into an AST, validated against
// the dataset columns and interpreted; they are never executed as code.
package predicate

import (
	"strconv"
	"strings"
)

type Op string

const (
	OpEq         Op = "=="
	OpNe         Op = "!="
	OpLt         Op = "<"
	OpLe         Op = "<="
	OpGt         Op = ">"
	OpGe         Op = ">="
	OpContains   Op = "contains"
	OpStartsWith Op = "startswith"
	OpEndsWith   Op = "endswith"
	OpMatches    Op = "matches"
	OpIn         Op = "in"
)

func (o Op) ordering() bool {
	switch o {
	case OpLt, OpLe, OpGt, OpGe:
		return true
	}
	return false
}

type LogicalOp string

const (
	And LogicalOp = "and"
	Or  LogicalOp = "or"
)

type LiteralKind int

const (
	StringLiteral LiteralKind = iota
	NumberLiteral
	BoolLiteral
)

// Expr is one of Column, Literal, List, Compare, Logical or Not.
type Expr interface {
	String() string
	node()
}

type Column struct {
	Name string
}

type Literal struct {
	Kind   LiteralKind
	Text   string
	Number float64
	Bool   bool
}

type List struct {
	Items []Literal
}

type Compare struct {
	Op    Op
	Left  Expr
	Right Expr
}

type Logical struct {
	Op    LogicalOp
	Left  Expr
	Right Expr
}

type Not struct {
	Operand Expr
}

func (Column) node()  {}
func (Literal) node() {}
func (List) node()    {}
func (Compare) node() {}
func (Logical) node() {}
func (Not) node()     {}

func StringValue(text string) Literal {
	return Literal{Kind: StringLiteral, Text: text}
}

func NumberValue(value float64) Literal {
	return Literal{Kind: NumberLiteral, Text: strconv.FormatFloat(value, 'f', -1, 64), Number: value}
}

func BoolValue(value bool) Literal {
	return Literal{Kind: BoolLiteral, Text: strconv.FormatBool(value), Bool: value}
}

func (c Column) String() string {
	if isPlainIdent(c.Name) {
		return c.Name
	}
	return "`" + strings.ReplaceAll(c.Name, "`", "``") + "`"
}

func (l Literal) String() string {
	switch l.Kind {
	case StringLiteral:
		return strconv.Quote(l.Text)
	default:
		return l.Text
	}
}

func (l List) String() string {
	parts := make([]string, 0, len(l.Items))
	for _, item := range l.Items {
		parts = append(parts, item.String())
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (c Compare) String() string {
	return c.Left.String() + " " + string(c.Op) + " " + c.Right.String()
}

func (l Logical) String() string {
	return l.operand(l.Left) + " " + string(l.Op) + " " + l.operand(l.Right)
}

func (l Logical) operand(expr Expr) string {
	if inner, ok := expr.(Logical); ok && inner.Op != l.Op {
		return "(" + inner.String() + ")"
	}
	return expr.String()
}

func (n Not) String() string {
	switch n.Operand.(type) {
	case Compare, Logical:
		return "not (" + n.Operand.String() + ")"
	}
	return "not " + n.Operand.String()
}

// Walk visits expr and its children depth first, passing the nesting depth
// of each node. Returning false from fn skips the node's children.
func Walk(expr Expr, fn func(expr Expr, depth int) bool) {
	walk(expr, 1, fn)
}

func walk(expr Expr, depth int, fn func(Expr, int) bool) {
	if expr == nil || !fn(expr, depth) {
		return
	}
	switch typed := expr.(type) {
	case Compare:
		walk(typed.Left, depth+1, fn)
		walk(typed.Right, depth+1, fn)
	case Logical:
		walk(typed.Left, depth+1, fn)
		walk(typed.Right, depth+1, fn)
	case Not:
		walk(typed.Operand, depth+1, fn)
	case List:
		for _, item := range typed.Items {
			walk(item, depth+1, fn)
		}
	}
}

// Columns returns the distinct column names referenced by expr in order of
// first appearance.
func Columns(expr Expr) []string {
	seen := map[string]struct{}{}
	out := []string{}
	Walk(expr, func(node Expr, _ int) bool {
		if column, ok := node.(Column); ok {
			if _, dup := seen[column.Name]; !dup {
				seen[column.Name] = struct{}{}
				out = append(out, column.Name)
			}
		}
		return true
	})
	return out
}

func isPlainIdent(value string) bool {
	if value == "" {
		return false
	}
	if _, reserved := keywords[strings.ToLower(value)]; reserved {
		return false
	}
	for i, r := range value {
		if !isIdentRune(r, i == 0) {
			return false
		}
	}
	return true
}
