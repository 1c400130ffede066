package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/zenovak/2100-AAA/internal/types"
)

// NodeType identifies what a node does when executed.
type NodeType string

const (
	NodeInput     NodeType = "input"
	NodeOutput    NodeType = "output"
	NodePrompt    NodeType = "prompt"
	NodeAgent     NodeType = "agent"
	NodeFunction  NodeType = "function"
	NodeCondition NodeType = "condition"
	NodeParser    NodeType = "parser"
	NodeEvent     NodeType = "event"
	NodeReturn    NodeType = "return"
)

// Valid reports whether t is a known node type.
func (t NodeType) Valid() bool {
	switch t {
	case NodeInput, NodeOutput, NodePrompt, NodeAgent, NodeFunction,
		NodeCondition, NodeParser, NodeEvent, NodeReturn:
		return true
	}
	return false
}

// OutputField holds the registry key(s) a node writes or collects. It
// unmarshals from either a bare string or a list of strings; Return nodes
// commonly list several keys while every other node names at most one.
type OutputField []string

// Key returns the primary output key, or "" when none was declared.
func (o OutputField) Key() string {
	if len(o) > 0 {
		return o[0]
	}
	return ""
}

func (o *OutputField) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*o = nil
		} else {
			*o = OutputField{single}
		}
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*o = list
	return nil
}

func (o OutputField) MarshalJSON() ([]byte, error) {
	if len(o) == 1 {
		return json.Marshal(o[0])
	}
	return json.Marshal([]string(o))
}

// Node is one step in a workflow. The Type field selects which of the
// kind-specific fields are meaningful; everything else is ignored.
type Node struct {
	Type NodeType `json:"type"`
	Name string   `json:"name"`

	// Output names the registry key(s) this node writes. Return nodes use
	// it as the list of keys to collect into the task output.
	Output OutputField `json:"output,omitempty"`

	// Prompt node fields.
	System      string  `json:"system,omitempty"`
	User        string  `json:"user,omitempty"`
	Service     string  `json:"service,omitempty"`
	Model       string  `json:"model,omitempty"`
	APIKey      string  `json:"api_key,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`

	// Function and Agent node fields.
	Function string         `json:"function,omitempty"`
	Input    map[string]any `json:"input,omitempty"`

	// Condition node field.
	Expression string `json:"expression,omitempty"`

	// Parser node fields. Data doubles as the request body template for
	// Event nodes.
	Data   string            `json:"data,omitempty"`
	Parser string            `json:"parser,omitempty"`
	Schema map[string]string `json:"schema,omitempty"`

	// Event node fields.
	Endpoint string `json:"endpoint,omitempty"`
	Method   string `json:"method,omitempty"`

	// Input node field: the key in the caller-supplied input to read.
	// Defaults to the node name.
	Key string `json:"key,omitempty"`

	// Output node field: the value template written to the output key.
	Value any `json:"value,omitempty"`
}

// ResultKey returns the reserved registry key this node's result is stored
// under, "<name>_result".
func (n *Node) ResultKey() string {
	return n.Name + "_result"
}

// Validate checks that the node declares everything its type requires.
func (n *Node) Validate() error {
	if n.Name == "" {
		return types.NewError(types.WORKFLOW_INVALID, "node missing name")
	}
	if !n.Type.Valid() {
		return types.NewError(types.WORKFLOW_INVALID,
			fmt.Sprintf("node %s has unknown type %q", n.Name, n.Type))
	}

	switch n.Type {
	case NodePrompt:
		if n.User == "" {
			return types.NewError(types.WORKFLOW_INVALID,
				fmt.Sprintf("prompt node %s missing user message", n.Name))
		}
		if n.Service == "" {
			return types.NewError(types.WORKFLOW_INVALID,
				fmt.Sprintf("prompt node %s missing service", n.Name))
		}
	case NodeFunction, NodeAgent:
		if n.Function == "" {
			return types.NewError(types.WORKFLOW_INVALID,
				fmt.Sprintf("%s node %s missing function name", n.Type, n.Name))
		}
	case NodeCondition:
		if n.Expression == "" {
			return types.NewError(types.WORKFLOW_INVALID,
				fmt.Sprintf("condition node %s missing expression", n.Name))
		}
	case NodeParser:
		if n.Data == "" {
			return types.NewError(types.WORKFLOW_INVALID,
				fmt.Sprintf("parser node %s missing data", n.Name))
		}
	case NodeEvent:
		if n.Endpoint == "" {
			return types.NewError(types.WORKFLOW_INVALID,
				fmt.Sprintf("event node %s missing endpoint", n.Name))
		}
	case NodeOutput:
		if n.Output.Key() == "" && n.Key == "" {
			return types.NewError(types.WORKFLOW_INVALID,
				fmt.Sprintf("output node %s missing output key", n.Name))
		}
	}

	return nil
}

// ConnectionType is the edge kind between two nodes.
type ConnectionType string

const (
	// ConnectionSequence is an unconditional edge, written A --> B.
	ConnectionSequence ConnectionType = "-->"
	// ConnectionTrue is followed when the source condition held, written A ==> B.
	ConnectionTrue ConnectionType = "==>"
	// ConnectionFalse is followed when the source condition failed, written A =/> B.
	ConnectionFalse ConnectionType = "=/>"
)

// Connection is a directed edge between two named nodes.
type Connection struct {
	Source string         `json:"source"`
	Target string         `json:"target"`
	Type   ConnectionType `json:"type"`
}
