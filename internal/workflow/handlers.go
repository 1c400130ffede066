package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/zenovak/2100-AAA/internal/llm"
	"github.com/zenovak/2100-AAA/internal/llm/providers"
	"github.com/zenovak/2100-AAA/internal/types"
)

// execInput copies a caller-supplied value into the node's output key. The
// source key defaults to the node name. A missing value is a warning, not an
// error, and resolves to nil like any other unset key.
func (e *Executor) execInput(rs *runState, node *Node) (any, []string) {
	source := node.Key
	if source == "" {
		source = node.Name
	}

	value, existed := rs.reg.Resolve(source)
	var warnings []string
	if !existed {
		warnings = append(warnings, fmt.Sprintf("no input supplied for %q", source))
	}
	return value, warnings
}

// execOutput resolves the node's value template and writes it to the output
// key, both in the registry and in the run's accumulated output.
func (e *Executor) execOutput(rs *runState, node *Node) (any, []string) {
	value, warnings := rs.resolver.ExpandValue(node.Value)

	key := node.Output.Key()
	if key == "" {
		key = node.Key
	}
	rs.reg.Set(key, value)
	rs.output[key] = value
	return value, warnings
}

// execPrompt resolves the message templates and performs one completion
// against the node's service. Registered providers win; otherwise one is
// constructed from the node's own service, model, and api key.
func (e *Executor) execPrompt(ctx context.Context, rs *runState, node *Node) (any, []string, error) {
	var warnings []string

	user, w := rs.resolver.ExpandString(node.User)
	warnings = append(warnings, w...)

	var messages []llm.Message
	if node.System != "" {
		system, w := rs.resolver.ExpandString(node.System)
		warnings = append(warnings, w...)
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: user})

	provider, err := e.promptProvider(node)
	if err != nil {
		return nil, warnings, err
	}

	resp, err := provider.Complete(ctx, llm.CompletionRequest{
		Model:       node.Model,
		Messages:    messages,
		Temperature: node.Temperature,
		MaxTokens:   node.MaxTokens,
	})
	if err != nil {
		return nil, warnings, err
	}

	return resp.Message.Content, warnings, nil
}

func (e *Executor) promptProvider(node *Node) (llm.LLMProvider, error) {
	if e.llms.Has(node.Service) {
		return e.llms.Get(node.Service)
	}
	return providers.NewProvider(llm.ProviderConfig{
		Type:         node.Service,
		APIKey:       node.APIKey,
		DefaultModel: node.Model,
	})
}

// execFunction resolves the node's input map and dispatches to the named
// registered function. Agent nodes use the same path: an agent is a
// registered callable that happens to wrap another workflow or model.
func (e *Executor) execFunction(ctx context.Context, rs *runState, node *Node) (any, []string, error) {
	input, warnings := rs.resolver.ExpandMap(node.Input)

	output, err := e.functions.Call(ctx, node.Function, input)
	if err != nil {
		return nil, warnings, err
	}
	return output, warnings, nil
}

// execCondition evaluates the node's expression against the registry.
func (e *Executor) execCondition(rs *runState, node *Node) (bool, error) {
	return e.evaluator.Evaluate(node.Expression, rs.reg)
}

// execParser resolves the data template and parses it in the declared
// format, then checks the result against the node's schema. A parse or
// schema failure is a handler error and halts the run, naming the offending
// field.
func (e *Executor) execParser(rs *runState, node *Node) (any, []string, error) {
	raw, warnings := rs.resolver.ExpandString(node.Data)

	format := node.Parser
	if format == "" {
		format = "json"
	}
	if format != "json" {
		return nil, warnings, types.NewError(types.NODE_EXECUTION_FAILED,
			fmt.Sprintf("unsupported parser format %q", format))
	}

	// Models often wrap JSON in a markdown fence; strip it before parsing.
	raw = stripCodeFence(raw)

	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, warnings, types.WrapError(types.NODE_EXECUTION_FAILED,
			fmt.Sprintf("node %s could not parse data as json", node.Name), err)
	}

	if len(node.Schema) > 0 {
		if err := checkSchema(parsed, node.Schema); err != nil {
			return nil, warnings, err
		}
	}

	return parsed, warnings, nil
}

// checkSchema verifies that parsed is an object carrying every declared
// field with the declared type.
func checkSchema(parsed any, schema map[string]string) error {
	obj, ok := parsed.(map[string]any)
	if !ok {
		return types.NewError(types.NODE_EXECUTION_FAILED,
			fmt.Sprintf("schema check requires an object, got %T", parsed))
	}

	for field, want := range schema {
		value, present := obj[field]
		if !present {
			return types.NewError(types.NODE_EXECUTION_FAILED,
				fmt.Sprintf("schema check failed: missing field %q", field))
		}
		if !matchesSchemaType(value, want) {
			return types.NewError(types.NODE_EXECUTION_FAILED,
				fmt.Sprintf("schema check failed: field %q is not %s", field, want))
		}
	}
	return nil
}

func matchesSchemaType(value any, want string) bool {
	switch want {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		_, ok := value.(float64)
		return ok
	case "bool", "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array", "list":
		_, ok := value.([]any)
		return ok
	case "any":
		return true
	default:
		return false
	}
}

// stripCodeFence removes a surrounding markdown code fence if present.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// execEvent resolves the endpoint and body templates and performs one HTTP
// call. A JSON response body becomes a structured output; anything else is
// stored as text. Non-2xx responses are handler errors.
func (e *Executor) execEvent(ctx context.Context, rs *runState, node *Node) (any, []string, error) {
	var warnings []string

	endpoint, w := rs.resolver.ExpandString(node.Endpoint)
	warnings = append(warnings, w...)

	method := strings.ToUpper(node.Method)
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	contentType := ""
	switch {
	case node.Data != "":
		data, w := rs.resolver.ExpandString(node.Data)
		warnings = append(warnings, w...)
		body = strings.NewReader(data)
		contentType = "application/json"
	case len(node.Input) > 0:
		input, w := rs.resolver.ExpandMap(node.Input)
		warnings = append(warnings, w...)
		encoded, err := json.Marshal(input)
		if err != nil {
			return nil, warnings, types.WrapError(types.NODE_EXECUTION_FAILED,
				fmt.Sprintf("node %s could not encode request body", node.Name), err)
		}
		body = bytes.NewReader(encoded)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, warnings, types.WrapError(types.NODE_EXECUTION_FAILED,
			fmt.Sprintf("node %s has invalid endpoint %q", node.Name, endpoint), err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, warnings, types.WrapError(types.NODE_EXECUTION_FAILED,
			fmt.Sprintf("node %s request to %s failed", node.Name, endpoint), err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, warnings, types.WrapError(types.NODE_EXECUTION_FAILED,
			fmt.Sprintf("node %s could not read response from %s", node.Name, endpoint), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, warnings, types.NewError(types.NODE_EXECUTION_FAILED,
			fmt.Sprintf("node %s got status %d from %s", node.Name, resp.StatusCode, endpoint))
	}

	var parsed any
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return string(payload), warnings, nil
	}
	return parsed, warnings, nil
}

// execReturn collects the named registry keys into the run's final output.
// Keys that were never written resolve to nil like everywhere else.
func (e *Executor) execReturn(rs *runState, node *Node) map[string]any {
	output := make(map[string]any, len(node.Output))
	for _, key := range node.Output {
		value, _ := rs.reg.ResolvePath(key)
		output[key] = value
	}
	return output
}
