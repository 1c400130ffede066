package workflow

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zenovak/2100-AAA/internal/types"
)

const ErrCodeExpressionInvalid types.ErrorCode = "EXPRESSION_INVALID"

// Condition evaluation for workflow branching.
//
// Expressions are parsed with a recursive descent parser and evaluated
// against the run's variable registry. Supported syntax:
//
//   - Registry references: score, $score, parse_result.title
//   - Comparison operators: ==, !=, <, >, <=, >=
//   - Boolean operators: && / and, || / or, ! / not
//   - Membership: "x" in items (substring, slice element, or map key)
//   - Literals: true, false, numbers, quoted strings
//   - Parentheses for grouping
//   - Built-in functions: len(), empty(), exists()
//   - Array/map indexing with []
//
// A reference to a key that does not exist yet resolves to nil and is falsy,
// so conditions over not-yet-written results fail the branch rather than the
// run. The final result is coerced to a boolean by truthiness: nil, false,
// "", 0, and empty collections are false, everything else true.

// ConditionFunc is a function callable from within condition expressions.
type ConditionFunc func(args []any) (any, error)

// ConditionEvaluator parses and evaluates condition expressions.
type ConditionEvaluator struct {
	functions map[string]ConditionFunc
}

// NewConditionEvaluator creates an evaluator with the builtin functions.
func NewConditionEvaluator() *ConditionEvaluator {
	evaluator := &ConditionEvaluator{
		functions: make(map[string]ConditionFunc),
	}

	evaluator.RegisterFunction("len", func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("len() requires exactly 1 argument, got %d", len(args))
		}
		switch v := args[0].(type) {
		case nil:
			return float64(0), nil
		case string:
			return float64(len(v)), nil
		case []any:
			return float64(len(v)), nil
		case map[string]any:
			return float64(len(v)), nil
		default:
			return nil, fmt.Errorf("len() requires string, array, or map argument")
		}
	})

	evaluator.RegisterFunction("empty", func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("empty() requires exactly 1 argument, got %d", len(args))
		}
		switch v := args[0].(type) {
		case nil:
			return true, nil
		case string:
			return len(v) == 0, nil
		case []any:
			return len(v) == 0, nil
		case map[string]any:
			return len(v) == 0, nil
		default:
			return false, nil
		}
	})

	evaluator.RegisterFunction("exists", func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("exists() requires exactly 1 argument, got %d", len(args))
		}
		return args[0] != nil, nil
	})

	return evaluator
}

// RegisterFunction adds a custom function callable in expressions.
func (ce *ConditionEvaluator) RegisterFunction(name string, fn ConditionFunc) {
	ce.functions[name] = fn
}

// Evaluate parses expr and evaluates it against the registry.
func (ce *ConditionEvaluator) Evaluate(expr string, reg *Registry) (bool, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return false, types.WrapError(ErrCodeExpressionInvalid,
			fmt.Sprintf("failed to tokenize expression %q", expr), err)
	}

	p := &parser{
		tokens:    tokens,
		reg:       reg,
		evaluator: ce,
	}

	result, err := p.parseExpression()
	if err != nil {
		return false, types.WrapError(ErrCodeExpressionInvalid,
			fmt.Sprintf("failed to evaluate expression %q", expr), err)
	}

	if p.current().typ != tokenEOF {
		return false, types.NewError(ErrCodeExpressionInvalid,
			fmt.Sprintf("trailing input in expression %q", expr))
	}

	return truthy(result), nil
}

// truthy coerces a value to a boolean the way conditions treat it.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case float64:
		return val != 0
	case int:
		return val != 0
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}

type tokenType int

const (
	tokenEOF tokenType = iota
	tokenIdentifier
	tokenNumber
	tokenString
	tokenBool
	tokenDot
	tokenComma
	tokenLParen
	tokenRParen
	tokenLBracket
	tokenRBracket
	tokenEQ
	tokenNE
	tokenLT
	tokenLE
	tokenGT
	tokenGE
	tokenAnd
	tokenOr
	tokenNot
	tokenIn
)

type token struct {
	typ   tokenType
	value string
}

// tokenize converts an expression string into a slice of tokens.
func tokenize(expr string) ([]token, error) {
	var tokens []token
	i := 0

	for i < len(expr) {
		if expr[i] == ' ' || expr[i] == '\t' || expr[i] == '\n' || expr[i] == '\r' {
			i++
			continue
		}

		switch expr[i] {
		case '.':
			tokens = append(tokens, token{typ: tokenDot, value: "."})
			i++
			continue
		case ',':
			tokens = append(tokens, token{typ: tokenComma, value: ","})
			i++
			continue
		case '(':
			tokens = append(tokens, token{typ: tokenLParen, value: "("})
			i++
			continue
		case ')':
			tokens = append(tokens, token{typ: tokenRParen, value: ")"})
			i++
			continue
		case '[':
			tokens = append(tokens, token{typ: tokenLBracket, value: "["})
			i++
			continue
		case ']':
			tokens = append(tokens, token{typ: tokenRBracket, value: "]"})
			i++
			continue
		}

		if i+1 < len(expr) {
			switch expr[i : i+2] {
			case "==":
				tokens = append(tokens, token{typ: tokenEQ, value: "=="})
				i += 2
				continue
			case "!=":
				tokens = append(tokens, token{typ: tokenNE, value: "!="})
				i += 2
				continue
			case "<=":
				tokens = append(tokens, token{typ: tokenLE, value: "<="})
				i += 2
				continue
			case ">=":
				tokens = append(tokens, token{typ: tokenGE, value: ">="})
				i += 2
				continue
			case "&&":
				tokens = append(tokens, token{typ: tokenAnd, value: "&&"})
				i += 2
				continue
			case "||":
				tokens = append(tokens, token{typ: tokenOr, value: "||"})
				i += 2
				continue
			}
		}

		switch expr[i] {
		case '<':
			tokens = append(tokens, token{typ: tokenLT, value: "<"})
			i++
			continue
		case '>':
			tokens = append(tokens, token{typ: tokenGT, value: ">"})
			i++
			continue
		case '!':
			tokens = append(tokens, token{typ: tokenNot, value: "!"})
			i++
			continue
		}

		if expr[i] == '"' || expr[i] == '\'' {
			quote := expr[i]
			i++
			start := i
			for i < len(expr) && expr[i] != quote {
				if expr[i] == '\\' && i+1 < len(expr) {
					i += 2
				} else {
					i++
				}
			}
			if i >= len(expr) {
				return nil, fmt.Errorf("unterminated string literal")
			}
			tokens = append(tokens, token{typ: tokenString, value: expr[start:i]})
			i++
			continue
		}

		if expr[i] >= '0' && expr[i] <= '9' {
			start := i
			for i < len(expr) && ((expr[i] >= '0' && expr[i] <= '9') || expr[i] == '.') {
				i++
			}
			tokens = append(tokens, token{typ: tokenNumber, value: expr[start:i]})
			continue
		}

		// Identifiers and keywords. A leading $ marks a registry reference
		// and is stripped; bare identifiers resolve the same way.
		if isIdentStart(expr[i]) || expr[i] == '$' {
			start := i
			if expr[i] == '$' {
				i++
				start = i
				if i >= len(expr) || !isIdentStart(expr[i]) {
					return nil, fmt.Errorf("expected identifier after '$'")
				}
			}
			for i < len(expr) && isIdentPart(expr[i]) {
				i++
			}
			value := expr[start:i]

			switch value {
			case "true", "false":
				tokens = append(tokens, token{typ: tokenBool, value: value})
			case "and":
				tokens = append(tokens, token{typ: tokenAnd, value: value})
			case "or":
				tokens = append(tokens, token{typ: tokenOr, value: value})
			case "not":
				tokens = append(tokens, token{typ: tokenNot, value: value})
			case "in":
				tokens = append(tokens, token{typ: tokenIn, value: value})
			default:
				tokens = append(tokens, token{typ: tokenIdentifier, value: value})
			}
			continue
		}

		return nil, fmt.Errorf("unexpected character at position %d: %c", i, expr[i])
	}

	tokens = append(tokens, token{typ: tokenEOF})
	return tokens, nil
}

func isIdentStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// parser implements a recursive descent parser for condition expressions.
type parser struct {
	tokens    []token
	pos       int
	reg       *Registry
	evaluator *ConditionEvaluator
}

func (p *parser) current() token {
	if p.pos >= len(p.tokens) {
		return token{typ: tokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *parser) advance() {
	if p.pos < len(p.tokens) {
		p.pos++
	}
}

func (p *parser) expect(typ tokenType) error {
	if p.current().typ != typ {
		return fmt.Errorf("expected %v, got %v", typ, p.current().typ)
	}
	p.advance()
	return nil
}

// parseExpression parses the top-level expression (OR has lowest precedence).
func (p *parser) parseExpression() (any, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (any, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for p.current().typ == tokenOr {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = truthy(left) || truthy(right)
	}

	return left, nil
}

func (p *parser) parseAnd() (any, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}

	for p.current().typ == tokenAnd {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = truthy(left) && truthy(right)
	}

	return left, nil
}

func (p *parser) parseNot() (any, error) {
	if p.current().typ == tokenNot {
		p.advance()
		expr, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return !truthy(expr), nil
	}

	return p.parseComparison()
}

// parseComparison parses comparison and membership expressions.
func (p *parser) parseComparison() (any, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	tok := p.current()
	switch tok.typ {
	case tokenEQ, tokenNE, tokenLT, tokenLE, tokenGT, tokenGE:
		p.advance()
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return compare(left, right, tok.typ)

	case tokenIn:
		p.advance()
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return contains(right, left)
	}

	return left, nil
}

// parsePrimary parses literals, identifiers, function calls, and parentheses.
func (p *parser) parsePrimary() (any, error) {
	tok := p.current()

	switch tok.typ {
	case tokenBool:
		p.advance()
		return tok.value == "true", nil

	case tokenNumber:
		p.advance()
		return strconv.ParseFloat(tok.value, 64)

	case tokenString:
		p.advance()
		return tok.value, nil

	case tokenLParen:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokenRParen); err != nil {
			return nil, err
		}
		return expr, nil

	case tokenIdentifier:
		return p.parseIdentifierOrFunction()

	default:
		return nil, fmt.Errorf("unexpected token: %v", tok.typ)
	}
}

func (p *parser) parseIdentifierOrFunction() (any, error) {
	name := p.current().value
	p.advance()

	if p.current().typ == tokenLParen {
		return p.parseFunctionCall(name)
	}

	return p.resolveReference(name)
}

func (p *parser) parseFunctionCall(name string) (any, error) {
	fn, ok := p.evaluator.functions[name]
	if !ok {
		return nil, fmt.Errorf("unknown function: %s", name)
	}

	p.advance() // consume '('

	var args []any
	if p.current().typ != tokenRParen {
		for {
			arg, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)

			if p.current().typ != tokenComma {
				break
			}
			p.advance()
		}
	}

	if err := p.expect(tokenRParen); err != nil {
		return nil, err
	}

	return fn(args)
}

// resolveReference resolves an identifier path like "parse_result.title"
// against the registry. Unset keys and unwalkable paths yield nil, which is
// falsy, so conditions over missing data fail the branch instead of the run.
func (p *parser) resolveReference(name string) (any, error) {
	path := []string{name}

	for p.current().typ == tokenDot {
		p.advance()
		if p.current().typ != tokenIdentifier {
			return nil, fmt.Errorf("expected identifier after '.'")
		}
		path = append(path, p.current().value)
		p.advance()
	}

	current, _ := p.reg.ResolvePath(strings.Join(path, "."))

	// Array/map indexing with [].
	for p.current().typ == tokenLBracket {
		p.advance()
		index, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokenRBracket); err != nil {
			return nil, err
		}

		switch v := current.(type) {
		case map[string]any:
			key, ok := index.(string)
			if !ok {
				return nil, fmt.Errorf("map index must be string")
			}
			current = v[key]
		case []any:
			num, ok := index.(float64)
			if !ok {
				return nil, fmt.Errorf("array index must be number")
			}
			idx := int(num)
			if idx < 0 || idx >= len(v) {
				current = nil
			} else {
				current = v[idx]
			}
		default:
			current = nil
		}

		// Dots after an index walk from the indexed value.
		for p.current().typ == tokenDot {
			p.advance()
			if p.current().typ != tokenIdentifier {
				return nil, fmt.Errorf("expected identifier after '.'")
			}
			field := p.current().value
			p.advance()
			if m, ok := current.(map[string]any); ok {
				current = m[field]
			} else {
				current = nil
			}
		}
	}

	return current, nil
}

// compare performs comparison operations.
func compare(left, right any, op tokenType) (bool, error) {
	switch op {
	case tokenEQ:
		return equals(left, right), nil
	case tokenNE:
		return !equals(left, right), nil
	case tokenLT, tokenLE, tokenGT, tokenGE:
		return compareOrdered(left, right, op)
	default:
		return false, fmt.Errorf("unknown comparison operator: %v", op)
	}
}

// equals checks equality between two values.
func equals(left, right any) bool {
	if left == nil && right == nil {
		return true
	}
	if left == nil || right == nil {
		return false
	}

	if ln, ok := toNumber(left); ok {
		if rn, ok := toNumber(right); ok {
			return ln == rn
		}
	}

	switch l := left.(type) {
	case bool:
		r, ok := right.(bool)
		return ok && l == r
	case string:
		r, ok := right.(string)
		return ok && l == r
	default:
		return false
	}
}

// compareOrdered performs ordered comparisons (<, <=, >, >=).
func compareOrdered(left, right any, op tokenType) (bool, error) {
	leftNum, leftOk := toNumber(left)
	rightNum, rightOk := toNumber(right)

	if !leftOk || !rightOk {
		leftStr, leftStrOk := left.(string)
		rightStr, rightStrOk := right.(string)
		if !leftStrOk || !rightStrOk {
			return false, fmt.Errorf("cannot compare %T and %T", left, right)
		}

		switch op {
		case tokenLT:
			return leftStr < rightStr, nil
		case tokenLE:
			return leftStr <= rightStr, nil
		case tokenGT:
			return leftStr > rightStr, nil
		case tokenGE:
			return leftStr >= rightStr, nil
		}
	}

	switch op {
	case tokenLT:
		return leftNum < rightNum, nil
	case tokenLE:
		return leftNum <= rightNum, nil
	case tokenGT:
		return leftNum > rightNum, nil
	case tokenGE:
		return leftNum >= rightNum, nil
	default:
		return false, fmt.Errorf("unknown comparison operator: %v", op)
	}
}

// contains implements the "in" operator: substring for strings, element for
// slices, key for maps.
func contains(container, needle any) (bool, error) {
	switch c := container.(type) {
	case nil:
		return false, nil
	case string:
		s, ok := needle.(string)
		if !ok {
			s = stringify(needle)
		}
		return strings.Contains(c, s), nil
	case []any:
		for _, item := range c {
			if equals(item, needle) {
				return true, nil
			}
		}
		return false, nil
	case map[string]any:
		key, ok := needle.(string)
		if !ok {
			return false, fmt.Errorf("map membership requires string key")
		}
		_, found := c[key]
		return found, nil
	default:
		return false, fmt.Errorf("cannot test membership in %T", container)
	}
}

// toNumber attempts to convert a value to float64.
func toNumber(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	}
	return 0, false
}
