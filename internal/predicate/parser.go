package predicate

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSyntax  = errors.New("predicate syntax error")
	ErrInvalid = errors.New("invalid predicate")
)

// maxParseDepth bounds recursion while parsing; Validate applies the
// configurable nesting limit afterwards.
const maxParseDepth = 128

var comparisonOps = map[string]Op{
	"==":         OpEq,
	"!=":         OpNe,
	"<":          OpLt,
	"<=":         OpLe,
	">":          OpGt,
	">=":         OpGe,
	"contains":   OpContains,
	"startswith": OpStartsWith,
	"endswith":   OpEndsWith,
	"matches":    OpMatches,
	"in":         OpIn,
}

type parser struct {
	tokens []token
	pos    int
	depth  int
}

// Parse turns expression text into an AST. It only checks the grammar; use
// Validate to check it against a dataset.
func Parse(input string) (Expr, error) {
	if strings.TrimSpace(input) == "" {
		return nil, fmt.Errorf("%w: expression is empty", ErrSyntax)
	}
	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected %s at offset %d", ErrSyntax, tok, tok.pos)
	}
	return expr, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > maxParseDepth {
		return fmt.Errorf("%w: expression nested too deeply", ErrSyntax)
	}
	return nil
}

func (p *parser) leave() {
	p.depth--
}

func (p *parser) parseOr() (Expr, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.matchLogical("or", "||") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = Logical{Op: Or, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.matchLogical("and", "&&") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = Logical{Op: And, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) matchLogical(keyword, symbol string) bool {
	tok := p.peek()
	if (tok.kind == tokKeyword && tok.text == keyword) || (tok.kind == tokOp && tok.text == symbol) {
		p.next()
		return true
	}
	return false
}

func (p *parser) parseNot() (Expr, error) {
	if p.matchLogical("not", "!") {
		if err := p.enter(); err != nil {
			return nil, err
		}
		defer p.leave()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return Not{Operand: operand}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	tok := p.peek()
	if tok.kind != tokOp && tok.kind != tokKeyword {
		return left, nil
	}
	op, ok := comparisonOps[tok.text]
	if !ok {
		return left, nil
	}
	p.next()
	right, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if next := p.peek(); next.kind == tokOp || next.kind == tokKeyword {
		if _, chained := comparisonOps[next.text]; chained {
			return nil, fmt.Errorf("%w: chained comparison at offset %d; combine comparisons with and", ErrSyntax, next.pos)
		}
	}
	return Compare{Op: op, Left: left, Right: right}, nil
}

func (p *parser) parsePrimary() (Expr, error) {
	tok := p.next()
	switch tok.kind {
	case tokIdent, tokQuotedIdent:
		if p.peek().kind == tokLParen {
			return nil, fmt.Errorf("%w: function calls are not supported (%s at offset %d)", ErrSyntax, tok, tok.pos)
		}
		return Column{Name: tok.text}, nil
	case tokString:
		return StringValue(tok.text), nil
	case tokNumber:
		return Literal{Kind: NumberLiteral, Text: tok.text, Number: tok.num}, nil
	case tokKeyword:
		switch tok.text {
		case "true":
			return BoolValue(true), nil
		case "false":
			return BoolValue(false), nil
		}
	case tokLBracket:
		return p.parseList(tok)
	case tokLParen:
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, fmt.Errorf("%w: expected ) at offset %d, found %s", ErrSyntax, closing.pos, closing)
		}
		return expr, nil
	}
	return nil, fmt.Errorf("%w: unexpected %s at offset %d", ErrSyntax, tok, tok.pos)
}

func (p *parser) parseList(open token) (Expr, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	items := []Literal{}
	if p.peek().kind == tokRBracket {
		return nil, fmt.Errorf("%w: empty list at offset %d", ErrSyntax, open.pos)
	}
	for {
		item, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		literal, ok := item.(Literal)
		if !ok {
			return nil, fmt.Errorf("%w: list items must be literals (list at offset %d)", ErrSyntax, open.pos)
		}
		items = append(items, literal)

		tok := p.next()
		switch tok.kind {
		case tokComma:
			continue
		case tokRBracket:
			return List{Items: items}, nil
		default:
			return nil, fmt.Errorf("%w: expected , or ] at offset %d, found %s", ErrSyntax, tok.pos, tok)
		}
	}
}
