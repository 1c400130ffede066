package workflow

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/zenovak/2100-AAA/internal/types"
)

// ParseDSL parses the text workflow definition language.
//
// A definition is line-oriented:
//
//	# comments run to end of line
//	workflow: research_flow
//
//	topic := "large language models"
//	limit := 3
//
//	node: prompt(name=draft, service=claude, model=claude-3-5-haiku-20241022,
//	      user="Write a paragraph about {{topic}}", output=text)
//	node: condition(name=check, expression="len(text) > 0")
//	node: return(name=done, output=[text])
//
//	draft --> check
//	check ==> done
//
// `name := value` lines bind typed workflow variables. `node:` lines declare
// nodes with comma-separated key=value parameters. Arrow lines declare
// connections: --> sequence, ==> true branch, =/> false branch.
func ParseDSL(src string) (*Agent, error) {
	agent := &Agent{
		Variables: make(map[string]any),
	}

	// node: declarations may wrap onto continuation lines until their
	// parentheses balance.
	lines := splitLogicalLines(src)

	for _, ln := range lines {
		line := ln.text

		switch {
		case strings.HasPrefix(line, "workflow:"):
			agent.Name = strings.TrimSpace(strings.TrimPrefix(line, "workflow:"))

		case strings.HasPrefix(line, "node:"):
			node, err := parseNodeDecl(strings.TrimSpace(strings.TrimPrefix(line, "node:")), ln.number)
			if err != nil {
				return nil, err
			}
			agent.Chain = append(agent.Chain, node)

		case strings.Contains(line, ":="):
			name, value, err := parseBinding(line, ln.number)
			if err != nil {
				return nil, err
			}
			agent.Variables[name] = value

		case strings.Contains(line, "-->") || strings.Contains(line, "==>") || strings.Contains(line, "=/>"):
			conn, err := parseConnection(line, ln.number)
			if err != nil {
				return nil, err
			}
			agent.Connections = append(agent.Connections, conn)

		default:
			return nil, types.NewError(types.WORKFLOW_PARSE_FAILED,
				fmt.Sprintf("line %d: unrecognized statement %q", ln.number, line))
		}
	}

	if err := agent.Validate(); err != nil {
		return nil, err
	}
	return agent, nil
}

type logicalLine struct {
	number int
	text   string
}

// splitLogicalLines strips comments and blanks and joins lines whose
// parentheses have not balanced yet.
func splitLogicalLines(src string) []logicalLine {
	var out []logicalLine
	var pending strings.Builder
	pendingStart := 0
	depth := 0

	for i, raw := range strings.Split(src, "\n") {
		line := stripComment(raw)
		line = strings.TrimSpace(line)
		if line == "" && depth == 0 {
			continue
		}

		if depth == 0 {
			pendingStart = i + 1
			pending.Reset()
		} else {
			pending.WriteByte(' ')
		}
		pending.WriteString(line)
		depth += bracketDelta(line)

		if depth <= 0 {
			depth = 0
			text := strings.TrimSpace(pending.String())
			if text != "" {
				out = append(out, logicalLine{number: pendingStart, text: text})
			}
		}
	}

	if depth > 0 {
		out = append(out, logicalLine{number: pendingStart, text: strings.TrimSpace(pending.String())})
	}
	return out
}

// stripComment removes a # comment unless the # sits inside a quoted string.
func stripComment(line string) string {
	var quote byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '#':
			return line[:i]
		}
	}
	return line
}

// bracketDelta counts unbalanced parentheses outside quoted strings.
func bracketDelta(line string) int {
	delta := 0
	var quote byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '(':
			delta++
		case c == ')':
			delta--
		}
	}
	return delta
}

// parseBinding parses a `name := value` variable binding.
func parseBinding(line string, lineo int) (string, any, error) {
	name, rawValue, ok := strings.Cut(line, ":=")
	if !ok {
		return "", nil, types.NewError(types.WORKFLOW_PARSE_FAILED,
			fmt.Sprintf("line %d: malformed binding %q", lineo, line))
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil, types.NewError(types.WORKFLOW_PARSE_FAILED,
			fmt.Sprintf("line %d: binding missing name", lineo))
	}

	value, err := parseValue(strings.TrimSpace(rawValue))
	if err != nil {
		return "", nil, types.WrapError(types.WORKFLOW_PARSE_FAILED,
			fmt.Sprintf("line %d: bad value for %s", lineo, name), err)
	}
	return name, value, nil
}

// parseNodeDecl parses `kind(key=value, ...)`.
func parseNodeDecl(decl string, lineno int) (*Node, error) {
	open := strings.IndexByte(decl, '(')
	if open < 0 || !strings.HasSuffix(decl, ")") {
		return nil, types.NewError(types.WORKFLOW_PARSE_FAILED,
			fmt.Sprintf("line %d: malformed node declaration %q", lineno, decl))
	}

	kind := NodeType(strings.TrimSpace(decl[:open]))
	if !kind.Valid() {
		return nil, types.NewError(types.WORKFLOW_PARSE_FAILED,
			fmt.Sprintf("line %d: unknown node type %q", lineno, kind))
	}

	node := &Node{Type: kind}
	params := splitParams(decl[open+1 : len(decl)-1])

	for _, param := range params {
		key, raw, ok := strings.Cut(param, "=")
		if !ok {
			return nil, types.NewError(types.WORKFLOW_PARSE_FAILED,
				fmt.Sprintf("line %d: malformed parameter %q", lineno, param))
		}
		key = strings.TrimSpace(key)
		raw = strings.TrimSpace(raw)

		if err := applyParam(node, key, raw); err != nil {
			return nil, types.WrapError(types.WORKFLOW_PARSE_FAILED,
				fmt.Sprintf("line %d: bad parameter %q", lineno, key), err)
		}
	}

	return node, nil
}

// applyParam assigns one key=value parameter to its node field.
func applyParam(node *Node, key, raw string) error {
	switch key {
	case "name":
		node.Name = unquote(raw)
	case "output":
		node.Output = parseKeyList(raw)
	case "system":
		node.System = unquote(raw)
	case "user":
		node.User = unquote(raw)
	case "service", "llm":
		node.Service = unquote(raw)
	case "model":
		node.Model = unquote(raw)
	case "api_key", "apikey":
		node.APIKey = unquote(raw)
	case "temperature":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		node.Temperature = f
	case "max_tokens":
		n, err := strconv.Atoi(raw)
		if err != nil {
			return err
		}
		node.MaxTokens = n
	case "function":
		node.Function = unquote(raw)
	case "input":
		value, err := parseValue(raw)
		if err != nil {
			return err
		}
		m, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("input must be an object")
		}
		node.Input = m
	case "expression", "statement":
		node.Expression = unquote(raw)
	case "data":
		node.Data = unquote(raw)
	case "parser":
		node.Parser = unquote(raw)
	case "schema":
		value, err := parseValue(raw)
		if err != nil {
			return err
		}
		m, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("schema must be an object")
		}
		schema := make(map[string]string, len(m))
		for k, v := range m {
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("schema field %q must name a type", k)
			}
			schema[k] = s
		}
		node.Schema = schema
	case "endpoint":
		node.Endpoint = unquote(raw)
	case "method":
		node.Method = unquote(raw)
	case "key":
		node.Key = unquote(raw)
	case "value":
		value, err := parseValue(raw)
		if err != nil {
			return err
		}
		node.Value = value
	default:
		return fmt.Errorf("unknown parameter %q", key)
	}
	return nil
}

// parseConnection parses an arrow line like `a ==> b`.
func parseConnection(line string, lineno int) (Connection, error) {
	for _, edge := range []ConnectionType{ConnectionSequence, ConnectionTrue, ConnectionFalse} {
		source, target, ok := strings.Cut(line, string(edge))
		if !ok {
			continue
		}
		conn := Connection{
			Source: strings.TrimSpace(source),
			Target: strings.TrimSpace(target),
			Type:   edge,
		}
		if conn.Source == "" || conn.Target == "" {
			return Connection{}, types.NewError(types.WORKFLOW_PARSE_FAILED,
				fmt.Sprintf("line %d: malformed connection %q", lineno, line))
		}
		return conn, nil
	}
	return Connection{}, types.NewError(types.WORKFLOW_PARSE_FAILED,
		fmt.Sprintf("line %d: malformed connection %q", lineno, line))
}

// splitParams splits a parameter list on commas that sit outside quotes,
// brackets, and braces.
func splitParams(s string) []string {
	var params []string
	var quote byte
	depth := 0
	start := 0

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '[' || c == '{' || c == '(':
			depth++
		case c == ']' || c == '}' || c == ')':
			depth--
		case c == ',' && depth == 0:
			if param := strings.TrimSpace(s[start:i]); param != "" {
				params = append(params, param)
			}
			start = i + 1
		}
	}
	if param := strings.TrimSpace(s[start:]); param != "" {
		params = append(params, param)
	}
	return params
}

// parseValue parses a typed literal: quoted string, number, bool, or a JSON
// array/object. Anything else is taken as a bare string.
func parseValue(raw string) (any, error) {
	if raw == "" {
		return "", nil
	}

	switch raw[0] {
	case '"', '\'':
		return unquote(raw), nil
	case '[', '{':
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			return nil, err
		}
		return value, nil
	}

	if raw == "true" {
		return true, nil
	}
	if raw == "false" {
		return false, nil
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return n, nil
	}
	return raw, nil
}

// parseKeyList parses an output target: either a bare key or [a, b, c].
func parseKeyList(raw string) OutputField {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "[") {
		if key := unquote(raw); key != "" {
			return OutputField{key}
		}
		return nil
	}

	raw = strings.TrimSuffix(strings.TrimPrefix(raw, "["), "]")
	var keys OutputField
	for _, part := range strings.Split(raw, ",") {
		if key := unquote(strings.TrimSpace(part)); key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}

// unquote strips matching surrounding quotes and unescapes the contents.
func unquote(s string) string {
	if len(s) < 2 {
		return s
	}
	quote := s[0]
	if (quote != '"' && quote != '\'') || s[len(s)-1] != quote {
		return s
	}

	body := s[1 : len(s)-1]
	if !strings.ContainsRune(body, '\\') {
		return body
	}

	var b strings.Builder
	for i := 0; i < len(body); i++ {
		if body[i] == '\\' && i+1 < len(body) {
			i++
			switch body[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(body[i])
			}
			continue
		}
		b.WriteByte(body[i])
	}
	return b.String()
}
