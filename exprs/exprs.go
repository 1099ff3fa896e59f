// Package exprs evaluates the small test-expression grammar used by dynamic
// SQL conditions: property paths, string/number literals, comparisons, and
// the and/or/not connectives. Operands are resolved against the evaluation
// scope first; scalar comparisons are rendered as literals and delegated to
// geval, null tests are folded before delegation.
package exprs

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/myfstd/geval"
)

// Resolver reads a property path out of the evaluation scope. The second
// result reports whether the path resolved at all.
type Resolver func(path string) (any, bool)

// SyntaxError reports an unparsable expression.
type SyntaxError struct {
	Expr   string
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("exprs: cannot parse %q: %s", e.Expr, e.Reason)
}

// Truthy evaluates expr to a boolean.
func Truthy(expr string, resolve Resolver) (bool, error) {
	v, err := Value(expr, resolve)
	if err != nil {
		return false, err
	}
	return truthiness(v), nil
}

// Value evaluates expr to its value: the test grammar plus '+' concatenation
// for bind expressions.
func Value(expr string, resolve Resolver) (any, error) {
	p := &parser{expr: expr, toks: lex(expr), resolve: resolve}
	v, err := p.orExpr()
	if err != nil {
		return nil, err
	}
	if !p.at(tokEOF) {
		return nil, &SyntaxError{Expr: expr, Reason: "trailing input"}
	}
	return v, nil
}

func truthiness(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() != 0
	case reflect.Ptr, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokNumber
	tokString
	tokOp     // == != < <= > >=
	tokPlus   // +
	tokLParen // (
	tokRParen // )
	tokAnd
	tokOr
	tokNot
	tokNull
	tokTrue
	tokFalse
	tokBad
)

type token struct {
	kind tokKind
	text string
}

func lex(s string) []token {
	var toks []token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case c == '+':
			toks = append(toks, token{tokPlus, "+"})
			i++
		case c == '\'' || c == '"':
			quote := c
			j := i + 1
			var b strings.Builder
			for j < len(s) && s[j] != quote {
				b.WriteByte(s[j])
				j++
			}
			if j >= len(s) {
				toks = append(toks, token{tokBad, s[i:]})
				return toks
			}
			toks = append(toks, token{tokString, b.String()})
			i = j + 1
		case strings.HasPrefix(s[i:], "=="), strings.HasPrefix(s[i:], "!="),
			strings.HasPrefix(s[i:], "<="), strings.HasPrefix(s[i:], ">="):
			toks = append(toks, token{tokOp, s[i : i+2]})
			i += 2
		case c == '<' || c == '>':
			toks = append(toks, token{tokOp, string(c)})
			i++
		case strings.HasPrefix(s[i:], "&&"):
			toks = append(toks, token{tokAnd, "&&"})
			i += 2
		case strings.HasPrefix(s[i:], "||"):
			toks = append(toks, token{tokOr, "||"})
			i += 2
		case c == '!':
			toks = append(toks, token{tokNot, "!"})
			i++
		case c == '-' || c >= '0' && c <= '9':
			j := i + 1
			for j < len(s) && (s[j] >= '0' && s[j] <= '9' || s[j] == '.') {
				j++
			}
			toks = append(toks, token{tokNumber, s[i:j]})
			i = j
		case isIdentStart(c):
			j := i
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			word := s[i:j]
			switch word {
			case "and":
				toks = append(toks, token{tokAnd, word})
			case "or":
				toks = append(toks, token{tokOr, word})
			case "not":
				toks = append(toks, token{tokNot, word})
			case "null", "nil":
				toks = append(toks, token{tokNull, word})
			case "true":
				toks = append(toks, token{tokTrue, word})
			case "false":
				toks = append(toks, token{tokFalse, word})
			default:
				toks = append(toks, token{tokIdent, word})
			}
			i = j
		default:
			toks = append(toks, token{tokBad, string(c)})
			i++
		}
	}
	toks = append(toks, token{kind: tokEOF})
	return toks
}

func isIdentStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9' || c == '.' || c == '[' || c == ']'
}

type parser struct {
	expr    string
	toks    []token
	pos     int
	resolve Resolver
}

func (p *parser) next() token       { t := p.toks[p.pos]; p.pos++; return t }
func (p *parser) at(k tokKind) bool { return p.toks[p.pos].kind == k }

func (p *parser) orExpr() (any, error) {
	left, err := p.andExpr()
	if err != nil {
		return nil, err
	}
	for p.at(tokOr) {
		p.next()
		right, err := p.andExpr()
		if err != nil {
			return nil, err
		}
		left = truthiness(left) || truthiness(right)
	}
	return left, nil
}

func (p *parser) andExpr() (any, error) {
	left, err := p.notExpr()
	if err != nil {
		return nil, err
	}
	for p.at(tokAnd) {
		p.next()
		right, err := p.notExpr()
		if err != nil {
			return nil, err
		}
		left = truthiness(left) && truthiness(right)
	}
	return left, nil
}

func (p *parser) notExpr() (any, error) {
	if p.at(tokNot) {
		p.next()
		v, err := p.notExpr()
		if err != nil {
			return nil, err
		}
		return !truthiness(v), nil
	}
	return p.comparison()
}

func (p *parser) comparison() (any, error) {
	left, err := p.additive()
	if err != nil {
		return nil, err
	}
	if !p.at(tokOp) {
		return left, nil
	}
	op := p.next().text
	right, err := p.additive()
	if err != nil {
		return nil, err
	}
	return compare(p.expr, left, op, right)
}

func (p *parser) additive() (any, error) {
	left, err := p.primary()
	if err != nil {
		return nil, err
	}
	for p.at(tokPlus) {
		p.next()
		right, err := p.primary()
		if err != nil {
			return nil, err
		}
		left, err = add(p.expr, left, right)
		if err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (p *parser) primary() (any, error) {
	tok := p.next()
	switch tok.kind {
	case tokLParen:
		v, err := p.orExpr()
		if err != nil {
			return nil, err
		}
		if !p.at(tokRParen) {
			return nil, &SyntaxError{Expr: p.expr, Reason: "missing ')'"}
		}
		p.next()
		return v, nil
	case tokString:
		return tok.text, nil
	case tokNumber:
		if strings.ContainsRune(tok.text, '.') {
			f, err := strconv.ParseFloat(tok.text, 64)
			if err != nil {
				return nil, &SyntaxError{Expr: p.expr, Reason: "bad number " + tok.text}
			}
			return f, nil
		}
		n, err := strconv.ParseInt(tok.text, 10, 64)
		if err != nil {
			return nil, &SyntaxError{Expr: p.expr, Reason: "bad number " + tok.text}
		}
		return n, nil
	case tokNull:
		return nil, nil
	case tokTrue:
		return true, nil
	case tokFalse:
		return false, nil
	case tokIdent:
		v, _ := p.resolve(tok.text)
		return v, nil
	default:
		return nil, &SyntaxError{Expr: p.expr, Reason: "unexpected " + tok.text}
	}
}

// compare folds null tests, then renders both operands as literals and hands
// the comparison text to geval.
func compare(expr string, left any, op string, right any) (any, error) {
	if left == nil || right == nil {
		switch op {
		case "==":
			return left == nil && right == nil, nil
		case "!=":
			return !(left == nil && right == nil), nil
		default:
			return false, nil
		}
	}
	lr, lok := render(left)
	rr, rok := render(right)
	if !lok || !rok {
		// composite operands compare natively
		switch op {
		case "==":
			return reflect.DeepEqual(left, right), nil
		case "!=":
			return !reflect.DeepEqual(left, right), nil
		}
		return nil, &SyntaxError{Expr: expr, Reason: fmt.Sprintf("cannot order %T and %T", left, right)}
	}
	result := geval.Eval(lr + " " + op + " " + rr)
	b, ok := result.(bool)
	if !ok {
		return nil, &SyntaxError{Expr: expr, Reason: fmt.Sprintf("non-boolean comparison %v", result)}
	}
	return b, nil
}

func add(expr string, left, right any) (any, error) {
	ln, lok := numeric(left)
	rn, rok := numeric(right)
	if lok && rok {
		return ln + rn, nil
	}
	ls, lsok := stringish(left)
	rs, rsok := stringish(right)
	if lsok && rsok {
		return ls + rs, nil
	}
	return nil, &SyntaxError{Expr: expr, Reason: fmt.Sprintf("cannot add %T and %T", left, right)}
}

func numeric(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

func stringish(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case nil:
		return "", false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.String {
		return rv.String(), true
	}
	if f, ok := numeric(v); ok {
		if f == float64(int64(f)) {
			return strconv.FormatInt(int64(f), 10), true
		}
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	return "", false
}

// render produces the geval literal form of a scalar operand.
func render(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(t, "'", "''") + "'", true
	case bool:
		return strconv.FormatBool(t), true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), true
	case reflect.String:
		return "'" + strings.ReplaceAll(rv.String(), "'", "''") + "'", true
	}
	return "", false
}
