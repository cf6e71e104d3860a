package predicate

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokQuotedIdent
	tokString
	tokNumber
	tokKeyword
	tokOp
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of expression"
	case tokString:
		return strconv.Quote(t.text)
	case tokQuotedIdent:
		return "`" + t.text + "`"
	}
	return fmt.Sprintf("%q", t.text)
}

var keywords = map[string]struct{}{
	"and":        {},
	"or":         {},
	"not":        {},
	"true":       {},
	"false":      {},
	"contains":   {},
	"startswith": {},
	"endswith":   {},
	"matches":    {},
	"in":         {},
}

func tokenize(input string) ([]token, error) {
	tokens := make([]token, 0, 16)
	pos := 0
	for pos < len(input) {
		r, width := utf8.DecodeRuneInString(input[pos:])
		if r == utf8.RuneError && width <= 1 {
			return nil, fmt.Errorf("%w: invalid UTF-8 at offset %d", ErrSyntax, pos)
		}
		if unicode.IsSpace(r) {
			pos += width
			continue
		}

		start := pos
		switch {
		case r == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: start})
			pos++
		case r == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: start})
			pos++
		case r == '[':
			tokens = append(tokens, token{kind: tokLBracket, text: "[", pos: start})
			pos++
		case r == ']':
			tokens = append(tokens, token{kind: tokRBracket, text: "]", pos: start})
			pos++
		case r == ',':
			tokens = append(tokens, token{kind: tokComma, text: ",", pos: start})
			pos++
		case r == '"' || r == '\'':
			text, next, err := scanString(input, pos, byte(r))
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokString, text: text, pos: start})
			pos = next
		case r == '`':
			text, next, err := scanQuotedIdent(input, pos)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokQuotedIdent, text: text, pos: start})
			pos = next
		case isDigit(r) || (r == '-' && pos+1 < len(input) && isDigit(rune(input[pos+1]))):
			text, value, next, err := scanNumber(input, pos)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokNumber, text: text, num: value, pos: start})
			pos = next
		case isIdentRune(r, true):
			next := pos + width
			for next < len(input) {
				r2, w2 := utf8.DecodeRuneInString(input[next:])
				if !isIdentRune(r2, false) {
					break
				}
				next += w2
			}
			word := input[pos:next]
			lower := strings.ToLower(word)
			if _, ok := keywords[lower]; ok {
				tokens = append(tokens, token{kind: tokKeyword, text: lower, pos: start})
			} else {
				tokens = append(tokens, token{kind: tokIdent, text: word, pos: start})
			}
			pos = next
		default:
			op, ok := scanOperator(input[pos:])
			if !ok {
				return nil, fmt.Errorf("%w: unexpected character %q at offset %d", ErrSyntax, r, pos)
			}
			tokens = append(tokens, token{kind: tokOp, text: op, pos: start})
			pos += len(op)
		}
	}
	tokens = append(tokens, token{kind: tokEOF, pos: len(input)})
	return tokens, nil
}

func scanOperator(rest string) (string, bool) {
	for _, op := range []string{"==", "!=", "<=", ">=", "&&", "||", "<", ">", "!"} {
		if strings.HasPrefix(rest, op) {
			return op, true
		}
	}
	return "", false
}

func scanString(input string, pos int, quote byte) (string, int, error) {
	var b strings.Builder
	i := pos + 1
	for i < len(input) {
		c := input[i]
		switch c {
		case quote:
			return b.String(), i + 1, nil
		case '\\':
			if i+1 >= len(input) {
				return "", 0, fmt.Errorf("%w: unterminated string starting at offset %d", ErrSyntax, pos)
			}
			switch input[i+1] {
			case '\\':
				b.WriteByte('\\')
			case '"':
				b.WriteByte('"')
			case '\'':
				b.WriteByte('\'')
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				// Regex escapes such as \d and \s pass through untouched.
				b.WriteByte('\\')
				b.WriteByte(input[i+1])
			}
			i += 2
		default:
			b.WriteByte(c)
			i++
		}
	}
	return "", 0, fmt.Errorf("%w: unterminated string starting at offset %d", ErrSyntax, pos)
}

func scanQuotedIdent(input string, pos int) (string, int, error) {
	var b strings.Builder
	i := pos + 1
	for i < len(input) {
		if input[i] == '`' {
			if i+1 < len(input) && input[i+1] == '`' {
				b.WriteByte('`')
				i += 2
				continue
			}
			name := b.String()
			if strings.TrimSpace(name) == "" {
				return "", 0, fmt.Errorf("%w: empty column name at offset %d", ErrSyntax, pos)
			}
			return name, i + 1, nil
		}
		b.WriteByte(input[i])
		i++
	}
	return "", 0, fmt.Errorf("%w: unterminated column name starting at offset %d", ErrSyntax, pos)
}

func scanNumber(input string, pos int) (string, float64, int, error) {
	i := pos
	if input[i] == '-' {
		i++
	}
	for i < len(input) && isDigit(rune(input[i])) {
		i++
	}
	if i < len(input) && input[i] == '.' {
		i++
		for i < len(input) && isDigit(rune(input[i])) {
			i++
		}
	}
	text := input[pos:i]
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("%w: invalid number %q at offset %d", ErrSyntax, text, pos)
	}
	if i < len(input) {
		if r, _ := utf8.DecodeRuneInString(input[i:]); isIdentRune(r, false) {
			return "", 0, 0, fmt.Errorf("%w: invalid number at offset %d", ErrSyntax, pos)
		}
	}
	return text, value, i, nil
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isIdentRune(r rune, first bool) bool {
	if r == '_' || unicode.IsLetter(r) {
		return true
	}
	return !first && unicode.IsDigit(r)
}
